package inodes

import (
	"syscall"
	"time"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/qlog"
)

// journal appends d to the mount's journal, best effort: a journal write failure is logged but does not fail the
// filesystem operation, matching spec §7's "propagation" rule that only
// the ObjectStore/Overlay's own errors, not the journal's, surface to the
// kernel.
func (t *TreeInode) journal(c *eden.Ctx, d eden.Delta) {
	if err := t.state.imap.Journal().AddDelta(c, d); err != nil {
		c.Wlog(qlog.LogJournal, "failed to append journal delta: %v", err)
	}
}

func (t *TreeInode) invalidate(c *eden.Ctx, name string) {
	if c.FromKernel {
		return
	}
	if inv := t.state.imap.invalidateFunc; inv != nil {
		inv(t.id, name)
	}
}

// checkMutable returns EPERM for any mutation aimed at or inside the
// immutable ".eden" directory (spec §3 Invariant 6).
func (t *TreeInode) checkMutable() error {
	if t.immutable {
		return eden.Errorf(eden.PermissionDenied, "%q is immutable", t.Name())
	}
	return nil
}

// mutationPrologue runs the shared prefix of every mutating operation's
// skeleton (spec §4.2.4): materialize, take the write lock, verify this
// directory has not itself been unlinked. Returns the unlock handle; the
// caller must Unlock() it.
func (t *TreeInode) mutationPrologue(c *eden.Ctx) (unlock func(), err error) {
	if err := t.checkMutable(); err != nil {
		return nil, err
	}
	t.materialize(c)

	u := t.lock.Lock()
	if t.isUnlinked() {
		u.Unlock()
		return nil, eden.Errorf(eden.NotFound, "directory has been removed")
	}
	return u.Unlock, nil
}

// Create implements spec §4.2.4's create(name, mode, flags): the name must
// not already exist (FUSE guarantees this; a collision is EBUG/InternalBug
// not a user-visible EEXIST).
func (t *TreeInode) Create(c *eden.Ctx, name string, mode uint32) (*FileInode, error) {
	unlock, err := t.mutationPrologue(c)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, exists := t.indexFor(name); exists {
		return nil, eden.Errorf(eden.InternalBug, "create: %q already exists", name)
	}

	childMode := syscall.S_IFREG | (mode &^ syscall.S_IFMT)
	n := t.state.imap.AllocateInodeNumber()
	if err := t.state.imap.Overlay().CreateFile(c, n); err != nil {
		return nil, eden.Wrap(eden.IO, err, "creating overlay file for %q", name)
	}

	e := &entry{name: name, mode: uint32(childMode), hasInodeNum: true, inodeNum: n}
	child := newFileInode(t.state.imap, n, e.mode, t)
	child.setName(name)
	e.loaded = child
	t.insertSorted(e)
	t.touch()

	if err := t.persistLocked(c); err != nil {
		return nil, err
	}
	t.state.imap.LoadComplete(c, child)
	t.invalidate(c, name)
	t.journal(c, eden.Delta{Kind: eden.DeltaCreated, Path: t.childPath(name)})
	return child, nil
}

// Mknod only accepts S_IFSOCK per spec.md's Non-goals; any other device
// type fails EPERM.
func (t *TreeInode) Mknod(c *eden.Ctx, name string, mode uint32) (*SocketInode, error) {
	if mode&syscall.S_IFMT != syscall.S_IFSOCK {
		return nil, eden.Errorf(eden.PermissionDenied, "mknod only supports unix-domain sockets")
	}

	unlock, err := t.mutationPrologue(c)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, exists := t.indexFor(name); exists {
		return nil, eden.Errorf(eden.Exists, "%q already exists", name)
	}

	n := t.state.imap.AllocateInodeNumber()
	if err := t.state.imap.Overlay().CreateFile(c, n); err != nil {
		return nil, eden.Wrap(eden.IO, err, "creating overlay file for %q", name)
	}

	e := &entry{name: name, mode: mode, hasInodeNum: true, inodeNum: n}
	child := newSocketInode(t.state.imap, n, mode, t)
	child.setName(name)
	e.loaded = child
	t.insertSorted(e)
	t.touch()

	if err := t.persistLocked(c); err != nil {
		return nil, err
	}
	t.state.imap.LoadComplete(c, child)
	t.invalidate(c, name)
	t.journal(c, eden.Delta{Kind: eden.DeltaCreated, Path: t.childPath(name)})
	return child, nil
}

// Symlink writes target to the new overlay file; if the write fails the
// partially-created overlay file is removed (spec §4.2.4).
func (t *TreeInode) Symlink(c *eden.Ctx, name, target string) (*SymlinkInode, error) {
	unlock, err := t.mutationPrologue(c)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, exists := t.indexFor(name); exists {
		return nil, eden.Errorf(eden.Exists, "%q already exists", name)
	}

	n := t.state.imap.AllocateInodeNumber()
	if err := t.state.imap.Overlay().CreateFile(c, n); err != nil {
		return nil, eden.Wrap(eden.IO, err, "creating overlay file for %q", name)
	}
	f, err := t.state.imap.Overlay().OpenFile(c, n)
	if err != nil {
		_ = t.state.imap.Overlay().RemoveData(c, n)
		return nil, eden.Wrap(eden.IO, err, "opening overlay file for %q", name)
	}
	if _, err := f.WriteAt([]byte(target), 0); err != nil {
		f.Close()
		_ = t.state.imap.Overlay().RemoveData(c, n)
		return nil, eden.Wrap(eden.IO, err, "writing symlink target for %q", name)
	}
	f.Close()

	e := &entry{name: name, mode: syscall.S_IFLNK | 0777, hasInodeNum: true, inodeNum: n}
	child := newSymlinkInode(t.state.imap, n, e.mode, t, target)
	child.setName(name)
	e.loaded = child
	t.insertSorted(e)
	t.touch()

	if err := t.persistLocked(c); err != nil {
		return nil, err
	}
	t.state.imap.LoadComplete(c, child)
	t.invalidate(c, name)
	t.journal(c, eden.Delta{Kind: eden.DeltaCreated, Path: t.childPath(name)})
	return child, nil
}

// Mkdir inserts an empty, freshly-materialized child directory.
func (t *TreeInode) Mkdir(c *eden.Ctx, name string, mode uint32) (*TreeInode, error) {
	unlock, err := t.mutationPrologue(c)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, exists := t.indexFor(name); exists {
		return nil, eden.Errorf(eden.Exists, "%q already exists", name)
	}

	n := t.state.imap.AllocateInodeNumber()
	child := newTreeInode(t.state.imap, n, mode, t)
	child.setName(name)
	child.hasTreeHash = false
	if err := child.persistLocked(c); err != nil {
		return nil, err
	}

	e := &entry{name: name, mode: child.mode, hasInodeNum: true, inodeNum: n, loaded: child}
	t.insertSorted(e)
	t.touch()

	if err := t.persistLocked(c); err != nil {
		return nil, err
	}
	t.state.imap.LoadComplete(c, child)
	t.invalidate(c, name)
	t.journal(c, eden.Delta{Kind: eden.DeltaCreated, Path: t.childPath(name)})
	return child, nil
}

// Link always fails EPERM: hard links are not representable (spec §3
// Invariant 7).
func (t *TreeInode) Link(c *eden.Ctx, name string, target Inode) error {
	return eden.Errorf(eden.PermissionDenied, "hard links are not supported")
}

func (t *TreeInode) touch() {
	t.mtime = time.Now()
	t.ctime = t.mtime
}

func (t *TreeInode) childPath(name string) string {
	// Path reconstruction is best-effort and used only for journal
	// records; it does not need to handle every rename race perfectly
	// since the journal is an append-only audit trail, not a source of
	// truth for current state.
	if t.id == RootInodeNum {
		return "/" + name
	}
	return t.Name() + "/" + name
}
