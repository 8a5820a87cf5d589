// Package inodes implements the core named in spec §1-§5: the InodeMap and
// loader, the TreeInode directory inode, the checkout engine, and the diff
// engine. It depends only on the eden package's interfaces (ObjectStore,
// Overlay, Journal) and never on go-fuse; the mount package adapts this
// core onto the kernel FUSE protocol.
//
// Structured after the teacher's daemon package: inode.go here plays the
// role of daemon/inode.go, tree.go plays directory.go, and so on.
package inodes

import (
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/utils"
)

// RootInodeNum is the inode number of the mount root. Like the other
// reserved numbers below firstAllocatableInodeNum, it is never returned
// by InodeMap.AllocateInodeNumber.
const RootInodeNum uint64 = 1

// DotEdenInodeNum is the fixed inode number of the immutable ".eden"
// directory at the mount root (spec §3 invariant 6).
const DotEdenInodeNum uint64 = 2

// firstAllocatableInodeNum is the first number InodeMap.AllocateInodeNumber will hand
// out; RootInodeNum, DotEdenInodeNum, and ApiInodeNum are reserved below it.
const firstAllocatableInodeNum uint64 = 4

// Attr is the subset of POSIX stat(2) fields the core tracks and the mount
// package translates into a fuse.Attr.
type Attr struct {
	Mode  uint32
	Size  uint64
	Nlink uint32
	Atime time.Time
	Ctime time.Time
	Mtime time.Time
}

// AttrRequest carries the fields setattr is asked to change; a false Set*
// flag means "leave this field alone," matching the teacher's SetAttrIn
// valid-bitmask idiom without importing fuse.SetAttrIn into the core.
type AttrRequest struct {
	SetMode bool
	Mode    uint32
	SetSize bool
	Size    uint64
	SetAtime bool
	Atime   time.Time
	SetMtime bool
	Mtime   time.Time
}

// Kind tags which concrete Inode implementation backs an InodeNum, the
// language-neutral equivalent of the source's dynamic_cast between
// FileInode and TreeInode (spec §9 open question). kindOf derives it from
// an entry's mode bits, and the loader picks the concrete type by
// switching on it, which keeps the tag consistent with the concrete type.
type Kind uint8

const (
	KindTree Kind = iota
	KindFile
	KindSymlink
	KindSocket
)

func kindOf(mode uint32) Kind {
	switch mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		return KindTree
	case syscall.S_IFLNK:
		return KindSymlink
	case syscall.S_IFSOCK:
		return KindSocket
	default:
		return KindFile
	}
}

func entryTypeOf(mode uint32) eden.EntryType {
	switch mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		return eden.EntryTree
	case syscall.S_IFLNK:
		return eden.EntrySymlink
	case syscall.S_IFSOCK:
		return eden.EntrySocket
	default:
		if mode&0111 != 0 {
			return eden.EntryExecutable
		}
		return eden.EntryRegular
	}
}

func modeForEntryType(t eden.EntryType, perm uint32) uint32 {
	switch t {
	case eden.EntryTree:
		return syscall.S_IFDIR | perm
	case eden.EntrySymlink:
		return syscall.S_IFLNK | perm
	case eden.EntrySocket:
		return syscall.S_IFSOCK | perm
	default:
		return syscall.S_IFREG | perm
	}
}

// Inode is the capability set shared by every inode kind, the sum type
// spec §9 calls for: "any inode" is file | directory | symlink | socket,
// and the sum provides GetAttr/markUnlinked/updateLocation while
// directory-only operations (create, mkdir, ...) live on TreeInode and
// file-only operations live on FileInode.
type Inode interface {
	InodeNum() uint64
	Kind() Kind
	Mode() uint32

	Name() string
	setName(name string)

	Parent(c *eden.Ctx) *TreeInode
	setParent(c *eden.Ctx, parent *TreeInode)

	GetAttr(c *eden.Ctx) (Attr, error)
	SetAttr(c *eden.Ctx, req AttrRequest) (Attr, error)

	// isUnlinked reports whether this inode has been removed from its
	// parent's entries but is kept alive by an outstanding reference
	// (spec §3 Lifecycle / Invariant 5).
	isUnlinked() bool
	markUnlinked(c *eden.Ctx)

	// updateLocation is called by rename's commit step on the moved
	// inode, after its directory-entry value has already been spliced
	// into the destination slot.
	updateLocation(c *eden.Ctx, newParent *TreeInode, newName string)

	treeState() *TreeState
}

// TreeState is the mount-wide state every inode is stamped with at
// construction: a handle back to the InodeMap and the single rename lock
// shared by the whole mount, mirroring the teacher's per-workspace
// TreeState/skipFlush handle but scoped to the whole mount since this spec
// has exactly one rename lock, not one per workspace.
type TreeState struct {
	imap       *InodeMap
	renameLock *utils.DeferableMutex
}

// InodeCommon holds the fields every concrete inode kind embeds: its
// number, name, parent backpointer, unlinked flag, and tree state. Parent
// is a raw pointer rather than an owning reference (spec §9 "cyclic
// ownership": children back-reference their parent, but the InodeMap is
// the authoritative owner).
type InodeCommon struct {
	id    uint64
	mode  uint32
	state *TreeState

	parentLock utils.DeferableRwMutex
	parent     *TreeInode

	nameLock utils.DeferableMutex
	name     string

	unlinked atomic.Bool
}

func (c *InodeCommon) InodeNum() uint64 { return c.id }
func (c *InodeCommon) Mode() uint32     { return c.mode }
func (c *InodeCommon) Kind() Kind       { return kindOf(c.mode) }

func (c *InodeCommon) Name() string {
	defer c.nameLock.Lock().Unlock()
	return c.name
}

func (c *InodeCommon) setName(name string) {
	defer c.nameLock.Lock().Unlock()
	c.name = name
}

func (c *InodeCommon) Parent(ctx *eden.Ctx) *TreeInode {
	defer c.parentLock.RLock().RUnlock()
	return c.parent
}

func (c *InodeCommon) setParent(ctx *eden.Ctx, parent *TreeInode) {
	defer c.parentLock.Lock().Unlock()
	c.parent = parent
}

func (c *InodeCommon) isUnlinked() bool { return c.unlinked.Load() }

func (c *InodeCommon) markUnlinked(ctx *eden.Ctx) { c.unlinked.Store(true) }

func (c *InodeCommon) treeState() *TreeState { return c.state }

func (c *InodeCommon) updateLocation(ctx *eden.Ctx, newParent *TreeInode, newName string) {
	c.setParent(ctx, newParent)
	c.setName(newName)
}
