package inodes

import (
	"syscall"
	"time"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/utils"
)

// FileInode is a regular (or executable) file inode. Its content lives
// either in the Overlay, once materialized, or is fetched lazily from the
// ObjectStore by Blob hash (spec §4.2.2: "No blob data is fetched
// eagerly").
type FileInode struct {
	InodeCommon

	lock utils.DeferableRwMutex

	hash    eden.Hash
	hasHash bool

	size  uint64
	atime time.Time
	ctime time.Time
	mtime time.Time
}

func newFileInode(imap *InodeMap, id uint64, mode uint32, parent *TreeInode) *FileInode {
	f := &FileInode{}
	f.id = id
	f.mode = mode
	f.state = &TreeState{imap: imap, renameLock: imap.RenameLock()}
	f.parent = parent
	now := time.Now()
	f.atime, f.ctime, f.mtime = now, now, now
	return f
}

func newFileInodeFromStore(imap *InodeMap, id uint64, mode uint32, parent *TreeInode, hash eden.Hash) *FileInode {
	f := newFileInode(imap, id, mode, parent)
	f.hash = hash
	f.hasHash = true
	return f
}

func (f *FileInode) GetAttr(c *eden.Ctx) (Attr, error) {
	defer f.lock.RLock().RUnlock()
	return f.attrLocked(c), nil
}

// attrLocked builds the Attr value; caller must hold at least the read
// lock.
func (f *FileInode) attrLocked(c *eden.Ctx) Attr {
	size := f.size
	if f.hasHash && size == 0 {
		key := eden.ObjectKey{Hash: f.hash, Type: entryTypeOf(f.mode)}
		if blob, err := f.state.imap.ObjectStore().GetBlob(c, key); err == nil {
			size = uint64(len(blob.Data))
		}
	}
	return Attr{
		Mode: f.mode, Size: size, Nlink: 1,
		Atime: f.atime, Ctime: f.ctime, Mtime: f.mtime,
	}
}

func (f *FileInode) SetAttr(c *eden.Ctx, req AttrRequest) (Attr, error) {
	parent := f.Parent(c)
	if parent != nil {
		parent.materialize(c)
	}

	defer f.lock.Lock().Unlock()
	if req.SetMode {
		f.mode = (f.mode & syscall.S_IFMT) | (req.Mode &^ syscall.S_IFMT)
	}
	if req.SetSize {
		f.size = req.Size
		f.hasHash = false
	}
	if req.SetAtime {
		f.atime = req.Atime
	}
	if req.SetMtime {
		f.mtime = req.Mtime
	}
	f.ctime = time.Now()
	return f.attrLocked(c), nil
}

// ReadAt reads file content, fetching from the ObjectStore on first access
// to an unmaterialized file and from the Overlay once materialized.
func (f *FileInode) ReadAt(c *eden.Ctx, p []byte, off int64) (int, error) {
	defer f.lock.RLock().RUnlock()
	if !f.hasHash {
		file, err := f.state.imap.Overlay().OpenFile(c, f.id)
		if err != nil {
			return 0, eden.Wrap(eden.IO, err, "opening overlay file %d", f.id)
		}
		defer file.Close()
		return file.ReadAt(p, off)
	}
	key := eden.ObjectKey{Hash: f.hash, Type: entryTypeOf(f.mode)}
	blob, err := f.state.imap.ObjectStore().GetBlob(c, key)
	if err != nil {
		return 0, eden.Wrap(eden.IO, err, "fetching blob %s", f.hash)
	}
	if off >= int64(len(blob.Data)) {
		return 0, nil
	}
	n := copy(p, blob.Data[off:])
	return n, nil
}

// WriteAt materializes this file's parent (and, by extension, this file)
// and writes to its overlay backing file.
func (f *FileInode) WriteAt(c *eden.Ctx, p []byte, off int64) (int, error) {
	if parent := f.Parent(c); parent != nil {
		unlockRename := f.state.renameLock.Lock()
		parent.materializeLocked(c, true)
		parent.childMaterialized(c, f.Name(), f.id)
		unlockRename.Unlock()
	}
	defer f.lock.Lock().Unlock()
	f.hasHash = false

	file, err := f.state.imap.Overlay().OpenFile(c, f.id)
	if err != nil {
		return 0, eden.Wrap(eden.IO, err, "opening overlay file %d", f.id)
	}
	defer file.Close()
	n, err := file.WriteAt(p, off)
	if err != nil {
		return n, eden.Wrap(eden.IO, err, "writing overlay file %d", f.id)
	}
	if sz, err := file.Size(); err == nil && uint64(sz) > f.size {
		f.size = uint64(sz)
	}
	f.mtime = time.Now()
	return n, nil
}
