package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Happy-Ferret/eden"
)

func TestPutGetBlobRoundTrip(t *testing.T) {
	req := require.New(t)
	s := New()

	key, err := s.PutBlob(context.Background(), []byte("hello"), eden.EntryRegular)
	req.NoError(err)

	blob, err := s.GetBlob(context.Background(), key)
	req.NoError(err)
	req.Equal([]byte("hello"), blob.Data)
	req.True(s.Exists(key))
}

func TestPutGetTreeRoundTrip(t *testing.T) {
	req := require.New(t)
	s := New()

	entries := []eden.TreeEntry{{Name: "a.txt", Mode: 0644, Key: eden.ObjectKey{Hash: eden.HashBytes([]byte("a")), Type: eden.EntryRegular}}}
	key := eden.ObjectKey{Hash: eden.HashBytes([]byte("tree-a")), Type: eden.EntryTree}
	tree := eden.NewTree(key, entries)

	gotKey, err := s.PutTree(context.Background(), tree)
	req.NoError(err)
	req.Equal(tree.Hash(), gotKey.Hash)

	got, err := s.GetTree(context.Background(), gotKey)
	req.NoError(err)
	req.Equal(entries, got.Entries())
}

func TestGetMissingTreeReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.GetTree(context.Background(), eden.ObjectKey{Hash: eden.HashBytes([]byte("nope")), Type: eden.EntryTree})
	require.Error(t, err)
	require.Equal(t, eden.NotFound, eden.KindOf(err))
}

func TestGetMissingBlobReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.GetBlob(context.Background(), eden.ObjectKey{Hash: eden.HashBytes([]byte("nope")), Type: eden.EntryRegular})
	require.Error(t, err)
	require.Equal(t, eden.NotFound, eden.KindOf(err))
}

func TestExistsFalseForUnknownKey(t *testing.T) {
	s := New()
	require.False(t, s.Exists(eden.ObjectKey{Hash: eden.HashBytes([]byte("unknown"))}))
}

func TestPutBlobIsContentAddressed(t *testing.T) {
	req := require.New(t)
	s := New()

	k1, err := s.PutBlob(context.Background(), []byte("same"), eden.EntryRegular)
	req.NoError(err)
	k2, err := s.PutBlob(context.Background(), []byte("same"), eden.EntryRegular)
	req.NoError(err)
	req.Equal(k1.Hash, k2.Hash)
}
