package inodes

import (
	"time"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/utils"
)

// SymlinkInode holds a symlink's target string, loaded lazily from the
// Overlay (materialized) or the ObjectStore (clean) exactly like
// FileInode's content, but cached in memory since targets are tiny and
// Readlink is called far more often than any file is read in full.
type SymlinkInode struct {
	InodeCommon

	lock utils.DeferableRwMutex

	target    string
	hasTarget bool
	hash      eden.Hash
	hasHash   bool

	atime, ctime, mtime time.Time
}

func newSymlinkInode(imap *InodeMap, id uint64, mode uint32, parent *TreeInode, target string) *SymlinkInode {
	s := &SymlinkInode{target: target, hasTarget: true}
	s.id = id
	s.mode = mode
	s.state = &TreeState{imap: imap, renameLock: imap.RenameLock()}
	s.parent = parent
	now := time.Now()
	s.atime, s.ctime, s.mtime = now, now, now
	return s
}

func newSymlinkInodeFromStore(imap *InodeMap, id uint64, mode uint32, parent *TreeInode, hash eden.Hash) *SymlinkInode {
	s := newSymlinkInode(imap, id, mode, parent, "")
	s.hasTarget = false
	s.hash = hash
	s.hasHash = true
	return s
}

// newSymlinkInodeMaterialized constructs a symlink whose target lives in
// the Overlay, fetched lazily on first Readlink.
func newSymlinkInodeMaterialized(imap *InodeMap, id uint64, mode uint32, parent *TreeInode) *SymlinkInode {
	s := newSymlinkInode(imap, id, mode, parent, "")
	s.hasTarget = false
	return s
}

// Readlink returns the symlink's target, fetching it from the Overlay or
// ObjectStore on first access.
func (s *SymlinkInode) Readlink(c *eden.Ctx) (string, error) {
	defer s.lock.Lock().Unlock()
	if s.hasTarget {
		return s.target, nil
	}
	if s.hasHash {
		key := eden.ObjectKey{Hash: s.hash, Type: eden.EntrySymlink}
		blob, err := s.state.imap.ObjectStore().GetBlob(c, key)
		if err != nil {
			return "", eden.Wrap(eden.IO, err, "fetching symlink blob %s", s.hash)
		}
		s.target = string(blob.Data)
		s.hasTarget = true
		return s.target, nil
	}
	file, err := s.state.imap.Overlay().OpenFile(c, s.id)
	if err != nil {
		return "", eden.Wrap(eden.IO, err, "opening overlay symlink %d", s.id)
	}
	defer file.Close()
	sz, err := file.Size()
	if err != nil {
		return "", eden.Wrap(eden.IO, err, "sizing overlay symlink %d", s.id)
	}
	buf := make([]byte, sz)
	if _, err := file.ReadAt(buf, 0); err != nil {
		return "", eden.Wrap(eden.IO, err, "reading overlay symlink %d", s.id)
	}
	s.target = string(buf)
	s.hasTarget = true
	return s.target, nil
}

func (s *SymlinkInode) GetAttr(c *eden.Ctx) (Attr, error) {
	defer s.lock.RLock().RUnlock()
	size := uint64(len(s.target))
	return Attr{Mode: s.mode, Size: size, Nlink: 1, Atime: s.atime, Ctime: s.ctime, Mtime: s.mtime}, nil
}

func (s *SymlinkInode) SetAttr(c *eden.Ctx, req AttrRequest) (Attr, error) {
	defer s.lock.Lock().Unlock()
	if req.SetAtime {
		s.atime = req.Atime
	}
	if req.SetMtime {
		s.mtime = req.Mtime
	}
	s.ctime = time.Now()
	return Attr{Mode: s.mode, Size: uint64(len(s.target)), Nlink: 1, Atime: s.atime, Ctime: s.ctime, Mtime: s.mtime}, nil
}
