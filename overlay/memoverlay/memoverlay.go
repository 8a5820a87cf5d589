// Package memoverlay is an in-memory eden.Overlay, grounded on the
// teacher's processlocal datastore: directory records and per-inode file
// content both live in maps guarded by a single RWMutex. Used by tests
// and by a daemon run with no local persistence.
package memoverlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/Happy-Ferret/eden"
)

// Overlay is an in-memory, process-local eden.Overlay.
type Overlay struct {
	mu    sync.RWMutex
	dirs  map[uint64]*eden.DirRecord
	files map[uint64]*memFile
}

func New() *Overlay {
	return &Overlay{
		dirs:  make(map[uint64]*eden.DirRecord),
		files: make(map[uint64]*memFile),
	}
}

func cloneDirRecord(rec *eden.DirRecord) *eden.DirRecord {
	out := *rec
	out.Entries = append([]eden.DirEntryRecord(nil), rec.Entries...)
	return &out
}

func (o *Overlay) LoadDir(ctx context.Context, inodeNum uint64) (*eden.DirRecord, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.dirs[inodeNum]
	if !ok {
		return nil, false, nil
	}
	return cloneDirRecord(rec), true, nil
}

func (o *Overlay) SaveDir(ctx context.Context, inodeNum uint64, rec *eden.DirRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dirs[inodeNum] = cloneDirRecord(rec)
	return nil
}

func (o *Overlay) RemoveData(ctx context.Context, inodeNum uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.dirs, inodeNum)
	delete(o.files, inodeNum)
	return nil
}

func (o *Overlay) CreateFile(ctx context.Context, inodeNum uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.files[inodeNum]; ok {
		return eden.Errorf(eden.Exists, "overlay file %d already exists", inodeNum)
	}
	o.files[inodeNum] = &memFile{}
	return nil
}

func (o *Overlay) OpenFile(ctx context.Context, inodeNum uint64) (eden.OverlayFile, error) {
	o.mu.RLock()
	f, ok := o.files[inodeNum]
	o.mu.RUnlock()
	if !ok {
		return nil, eden.Errorf(eden.NotFound, "overlay file %d not found", inodeNum)
	}
	return f, nil
}

func (o *Overlay) FilePath(inodeNum uint64) string {
	return fmt.Sprintf("memoverlay://%d", inodeNum)
}

// memFile is a single in-memory backing file, safe for concurrent use by
// the same caller discipline TreeInode/FileInode already apply (callers
// serialize writes with the owning inode's lock; memFile adds its own
// lock only so ReadAt/WriteAt/Size/Truncate are each atomic).
type memFile struct {
	mu   sync.Mutex
	data []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], p)
	return len(p), nil
}

func (f *memFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

func (f *memFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), nil
}

func (f *memFile) Close() error { return nil }
