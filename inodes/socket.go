package inodes

import (
	"time"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/utils"
)

// SocketInode represents a unix-domain socket special file, the only
// device type mknod accepts (spec.md Non-goals: block/character devices
// are refused). It carries no content, only attributes.
type SocketInode struct {
	InodeCommon

	lock utils.DeferableMutex

	atime, ctime, mtime time.Time
}

func newSocketInode(imap *InodeMap, id uint64, mode uint32, parent *TreeInode) *SocketInode {
	s := &SocketInode{}
	s.id = id
	s.mode = mode
	s.state = &TreeState{imap: imap, renameLock: imap.RenameLock()}
	s.parent = parent
	now := time.Now()
	s.atime, s.ctime, s.mtime = now, now, now
	return s
}

func (s *SocketInode) GetAttr(c *eden.Ctx) (Attr, error) {
	defer s.lock.Lock().Unlock()
	return Attr{Mode: s.mode, Nlink: 1, Atime: s.atime, Ctime: s.ctime, Mtime: s.mtime}, nil
}

func (s *SocketInode) SetAttr(c *eden.Ctx, req AttrRequest) (Attr, error) {
	defer s.lock.Lock().Unlock()
	if req.SetAtime {
		s.atime = req.Atime
	}
	if req.SetMtime {
		s.mtime = req.Mtime
	}
	s.ctime = time.Now()
	return Attr{Mode: s.mode, Nlink: 1, Atime: s.atime, Ctime: s.ctime, Mtime: s.mtime}, nil
}
