package inodes

import (
	"syscall"
	"time"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/utils"
)

// ApiInodeNum is the fixed inode number of ".eden/api", the command
// channel described in spec.md's administrative surface section,
// grounded on the teacher's quantumfs.InodeIdApi.
const ApiInodeNum uint64 = 3

// ApiInode represents ".eden/api". It carries no real content of its
// own; the mount package gives Open/Read/Write on this specific inode
// number special handling to drive the admin command protocol. Its
// GetAttr/SetAttr exist only so it satisfies the Inode interface like
// every other entry in ".eden".
type ApiInode struct {
	InodeCommon

	lock utils.DeferableMutex

	mtime time.Time
}

func newApiInode(imap *InodeMap) *ApiInode {
	a := &ApiInode{}
	a.id = ApiInodeNum
	a.mode = syscall.S_IFREG | 0666
	a.state = &TreeState{imap: imap, renameLock: imap.RenameLock()}
	a.mtime = time.Now()
	a.setName("api")
	return a
}

func (a *ApiInode) GetAttr(c *eden.Ctx) (Attr, error) {
	defer a.lock.Lock().Unlock()
	return Attr{Mode: a.mode, Nlink: 1, Atime: a.mtime, Ctime: a.mtime, Mtime: a.mtime}, nil
}

// SetAttr does nothing but report the current attributes: the api file
// can never be chmod'd or truncated, mirroring the teacher's
// ApiInode.dirty, which is a deliberate no-op.
func (a *ApiInode) SetAttr(c *eden.Ctx, req AttrRequest) (Attr, error) {
	return a.GetAttr(c)
}
