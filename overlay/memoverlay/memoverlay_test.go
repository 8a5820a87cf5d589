package memoverlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Happy-Ferret/eden"
)

func TestLoadDirMissingReturnsFalse(t *testing.T) {
	o := New()
	_, ok, err := o.LoadDir(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveThenLoadDirRoundTrip(t *testing.T) {
	req := require.New(t)
	o := New()

	rec := &eden.DirRecord{
		Entries: []eden.DirEntryRecord{{Name: "a", Mode: 0644, HasHash: true}},
	}
	req.NoError(o.SaveDir(context.Background(), 1, rec))

	got, ok, err := o.LoadDir(context.Background(), 1)
	req.NoError(err)
	req.True(ok)
	req.Equal(rec.Entries, got.Entries)
}

func TestLoadDirReturnsACopyNotTheLiveRecord(t *testing.T) {
	req := require.New(t)
	o := New()

	rec := &eden.DirRecord{Entries: []eden.DirEntryRecord{{Name: "a"}}}
	req.NoError(o.SaveDir(context.Background(), 1, rec))

	got, _, err := o.LoadDir(context.Background(), 1)
	req.NoError(err)
	got.Entries[0].Name = "mutated"

	got2, _, err := o.LoadDir(context.Background(), 1)
	req.NoError(err)
	req.Equal("a", got2.Entries[0].Name, "mutating a loaded copy must not affect the stored record")
}

func TestCreateFileThenOpenAndReadWrite(t *testing.T) {
	req := require.New(t)
	o := New()

	req.NoError(o.CreateFile(context.Background(), 7))
	f, err := o.OpenFile(context.Background(), 7)
	req.NoError(err)

	n, err := f.WriteAt([]byte("hello"), 0)
	req.NoError(err)
	req.Equal(5, n)

	buf := make([]byte, 5)
	n, err = f.ReadAt(buf, 0)
	req.NoError(err)
	req.Equal(5, n)
	req.Equal("hello", string(buf))

	size, err := f.Size()
	req.NoError(err)
	req.EqualValues(5, size)
}

func TestCreateFileTwiceFails(t *testing.T) {
	o := New()
	require.NoError(t, o.CreateFile(context.Background(), 1))
	err := o.CreateFile(context.Background(), 1)
	require.Error(t, err)
	require.Equal(t, eden.Exists, eden.KindOf(err))
}

func TestOpenFileMissingFails(t *testing.T) {
	o := New()
	_, err := o.OpenFile(context.Background(), 99)
	require.Error(t, err)
	require.Equal(t, eden.NotFound, eden.KindOf(err))
}

func TestFileTruncateGrowsAndShrinks(t *testing.T) {
	req := require.New(t)
	o := New()
	req.NoError(o.CreateFile(context.Background(), 1))
	f, err := o.OpenFile(context.Background(), 1)
	req.NoError(err)

	_, err = f.WriteAt([]byte("hello world"), 0)
	req.NoError(err)

	req.NoError(f.Truncate(5))
	size, _ := f.Size()
	req.EqualValues(5, size)

	req.NoError(f.Truncate(8))
	size, _ = f.Size()
	req.EqualValues(8, size)
}

func TestRemoveDataClearsDirAndFile(t *testing.T) {
	req := require.New(t)
	o := New()
	req.NoError(o.SaveDir(context.Background(), 1, &eden.DirRecord{}))
	req.NoError(o.CreateFile(context.Background(), 1))

	req.NoError(o.RemoveData(context.Background(), 1))

	_, ok, _ := o.LoadDir(context.Background(), 1)
	req.False(ok)
	_, err := o.OpenFile(context.Background(), 1)
	req.Error(err)
}
