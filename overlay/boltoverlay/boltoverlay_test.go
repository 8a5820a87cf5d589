package boltoverlay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Happy-Ferret/eden"
)

func openTestOverlay(t *testing.T) *Overlay {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.db")
	o, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o
}

func TestSaveThenLoadDirRoundTrip(t *testing.T) {
	req := require.New(t)
	o := openTestOverlay(t)

	rec := &eden.DirRecord{
		Entries:  []eden.DirEntryRecord{{Name: "a", Mode: 0644, HasHash: true}},
		TreeHash: eden.HashBytes([]byte("x")),
	}
	req.NoError(o.SaveDir(context.Background(), 5, rec))

	got, ok, err := o.LoadDir(context.Background(), 5)
	req.NoError(err)
	req.True(ok)
	req.Equal(rec.Entries, got.Entries)
	req.Equal(rec.TreeHash, got.TreeHash)
}

func TestLoadDirMissingReturnsFalseNotError(t *testing.T) {
	o := openTestOverlay(t)
	_, ok, err := o.LoadDir(context.Background(), 123)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileContentSurvivesCloseAndReopen(t *testing.T) {
	req := require.New(t)
	o := openTestOverlay(t)

	req.NoError(o.CreateFile(context.Background(), 1))
	f, err := o.OpenFile(context.Background(), 1)
	req.NoError(err)
	_, err = f.WriteAt([]byte("persisted content"), 0)
	req.NoError(err)
	req.NoError(f.Close())

	f2, err := o.OpenFile(context.Background(), 1)
	req.NoError(err)
	buf := make([]byte, len("persisted content"))
	n, err := f2.ReadAt(buf, 0)
	req.NoError(err)
	req.Equal(len(buf), n)
	req.Equal("persisted content", string(buf))
}

func TestCreateFileTwiceFails(t *testing.T) {
	o := openTestOverlay(t)
	require.NoError(t, o.CreateFile(context.Background(), 1))
	err := o.CreateFile(context.Background(), 1)
	require.Error(t, err)
	require.Equal(t, eden.Exists, eden.KindOf(err))
}

func TestOpenFileMissingFails(t *testing.T) {
	o := openTestOverlay(t)
	_, err := o.OpenFile(context.Background(), 99)
	require.Error(t, err)
	require.Equal(t, eden.NotFound, eden.KindOf(err))
}

func TestRemoveDataClearsDirAndFile(t *testing.T) {
	req := require.New(t)
	o := openTestOverlay(t)

	req.NoError(o.SaveDir(context.Background(), 1, &eden.DirRecord{}))
	req.NoError(o.CreateFile(context.Background(), 1))

	req.NoError(o.RemoveData(context.Background(), 1))

	_, ok, _ := o.LoadDir(context.Background(), 1)
	req.False(ok)
	_, err := o.OpenFile(context.Background(), 1)
	req.Error(err)
}

func TestFilePathIncludesInodeNumber(t *testing.T) {
	o := openTestOverlay(t)
	require.Contains(t, o.FilePath(42), "42")
}
