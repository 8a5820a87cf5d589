package inodes

import (
	"sort"
	"syscall"
	"time"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/qlog"
	"github.com/Happy-Ferret/eden/utils"
)

// removeRetryBudget is the number of times remove_impl retries after a
// StaleReference before giving up with EIO. spec §9 flags this as an open
// question ("is 3 the right bound?") and directs implementations to
// preserve the source's value absent evidence otherwise.
const removeRetryBudget = 3

// entry is one directory entry inside a TreeInode's contents, the live
// in-memory form of eden.DirEntryRecord plus the optional loaded Inode
// pointer spec §3 describes as the three content states (unloaded
// unmaterialized / unloaded materialized / loaded).
type entry struct {
	name string
	mode uint32

	hash    eden.Hash
	hasHash bool

	inodeNum    uint64
	hasInodeNum bool

	loaded Inode
}

func (e *entry) isDir() bool { return kindOf(e.mode) == KindTree }

func (e *entry) record() eden.DirEntryRecord {
	return eden.DirEntryRecord{
		Name:         e.name,
		Mode:         e.mode,
		Hash:         e.hash,
		HasHash:      e.hasHash,
		InodeNum:     e.inodeNum,
		HasInodeNum:  e.hasInodeNum,
		Materialized: e.hasInodeNum && !e.hasHash,
	}
}

func entryFromRecord(r eden.DirEntryRecord) *entry {
	return &entry{
		name: r.Name, mode: r.Mode,
		hash: r.Hash, hasHash: r.HasHash,
		inodeNum: r.InodeNum, hasInodeNum: r.HasInodeNum,
	}
}

func entryFromTreeEntry(te eden.TreeEntry) *entry {
	return &entry{name: te.Name, mode: te.Mode, hash: te.Key.Hash, hasHash: true}
}

// TreeInode is the directory inode named throughout spec §3-§4.2: its
// mutable contents, its materialization state machine, and the
// create/mknod/symlink/mkdir/unlink/rmdir/rename/getattr/setattr
// operations. Grounded on the teacher's daemon/directory.go Directory
// type, restructured around the ordered-by-name entries slice spec §3
// requires for the checkout/diff merge-walk.
type TreeInode struct {
	InodeCommon

	lock utils.DeferableRwMutex

	// entries is kept sorted by name; index maps name to its position so
	// lookups don't need a linear scan.
	entries []*entry
	index   map[string]int

	treeHash    eden.Hash
	hasTreeHash bool

	atime, ctime, mtime time.Time

	// immutable marks the fixed ".eden" directory (spec §3 Invariant 6):
	// every mutation on it fails with EPERM.
	immutable bool
}

// newTreeInode constructs a directory inode. It neither registers it with
// imap nor persists anything; callers that materialize a fresh,
// previously-nonexistent directory (mkdir) must also call persist.
func newTreeInode(imap *InodeMap, id uint64, mode uint32, parent *TreeInode) *TreeInode {
	t := &TreeInode{
		index: make(map[string]int),
	}
	t.id = id
	t.mode = mode | syscall.S_IFDIR
	t.state = &TreeState{imap: imap, renameLock: imap.RenameLock()}
	t.parent = parent
	now := time.Now()
	t.atime, t.ctime, t.mtime = now, now, now
	return t
}

func (t *TreeInode) indexFor(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

func (t *TreeInode) rebuildIndex() {
	t.index = make(map[string]int, len(t.entries))
	for i, e := range t.entries {
		t.index[e.name] = i
	}
}

// insertSorted inserts e keeping t.entries sorted by name; caller must
// hold the write lock.
func (t *TreeInode) insertSorted(e *entry) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].name >= e.name })
	t.entries = append(t.entries, nil)
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
	t.rebuildIndex()
}

// eraseLocked removes the entry named name; caller must hold the write
// lock.
func (t *TreeInode) eraseLocked(name string) {
	i, ok := t.indexFor(name)
	if !ok {
		return
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	t.rebuildIndex()
}

func (t *TreeInode) isMaterialized() bool {
	defer t.lock.RLock().RUnlock()
	return !t.hasTreeHash
}

// CurrentTreeHash reports the reference Tree this directory is checked
// out to, if it has not been locally modified since. Used by the
// administrative surface to report mount status without forcing a flush.
func (t *TreeInode) CurrentTreeHash() (hash eden.Hash, clean bool) {
	defer t.lock.RLock().RUnlock()
	return t.treeHash, t.hasTreeHash
}

// GetAttr synthesizes a directory stat, per spec §4.2.7: type S_IFDIR,
// mode 0755, nlink = entries.size()+2.
func (t *TreeInode) GetAttr(c *eden.Ctx) (Attr, error) {
	defer t.lock.RLock().RUnlock()
	return Attr{
		Mode:  syscall.S_IFDIR | 0755,
		Nlink: uint32(len(t.entries)) + 2,
		Atime: t.atime, Ctime: t.ctime, Mtime: t.mtime,
	}, nil
}

// SetAttr materializes the directory and updates timestamps per the
// request, then emits a journal delta (spec §4.2.7).
func (t *TreeInode) SetAttr(c *eden.Ctx, req AttrRequest) (Attr, error) {
	t.materialize(c)

	defer t.lock.Lock().Unlock()
	if req.SetAtime {
		t.atime = req.Atime
	}
	if req.SetMtime {
		t.mtime = req.Mtime
	}
	t.ctime = time.Now()
	if err := t.persistLocked(c); err != nil {
		return Attr{}, err
	}
	_ = t.state.imap.Journal().AddDelta(c, eden.Delta{Kind: eden.DeltaAttrChanged, Path: t.Name()})
	return Attr{
		Mode:  syscall.S_IFDIR | 0755,
		Nlink: uint32(len(t.entries)) + 2,
		Atime: t.atime, Ctime: t.ctime, Mtime: t.mtime,
	}, nil
}

// persistLocked writes the directory's current contents to the Overlay.
// Caller must hold at least the read lock. It does not check that the
// directory is materialized: checkout's insert and remove steps also call
// it on directories that may still be clean.
func (t *TreeInode) persistLocked(c *eden.Ctx) error {
	rec := &eden.DirRecord{
		ATimeUnixNano: t.atime.UnixNano(),
		CTimeUnixNano: t.ctime.UnixNano(),
		MTimeUnixNano: t.mtime.UnixNano(),
	}
	for _, e := range t.entries {
		rec.Entries = append(rec.Entries, e.record())
	}
	return t.state.imap.Overlay().SaveDir(c, t.id, rec)
}

// materialize transitions the directory from clean to materialized, per
// the algorithm in spec §4.2.3. Protected by the mount-wide rename lock
// unless the caller already holds it.
func (t *TreeInode) materialize(c *eden.Ctx) {
	if t.isMaterialized() {
		// fast path: already materialized
		return
	}
	t.materializeLocked(c, false)
}

// materializeLocked is materialize's body, usable both when the caller
// already holds the rename lock (renameLockHeld=true) and when it does
// not.
func (t *TreeInode) materializeLocked(c *eden.Ctx, renameLockHeld bool) {
	if !renameLockHeld {
		defer t.state.renameLock.Lock().Unlock()
	}

	unlock := t.lock.Lock()
	if !t.hasTreeHash {
		unlock.Unlock()
		return
	}
	t.hasTreeHash = false
	if err := t.persistLocked(c); err != nil {
		// The overlay write failing here is an invariant violation:
		// spec Invariant 1 requires a materialized directory to have
		// an overlay record. Surface as InternalBug rather than
		// silently leaving entries/treeHash inconsistent.
		unlock.Unlock()
		c.Assert(false, "failed to persist materialized directory %d: %v", t.id, err)
		return
	}
	unlock.Unlock()

	if parent := t.Parent(c); parent != nil {
		parent.childMaterialized(c, t.Name(), t.id)
	}
}

// childMaterialized removes any hash on the named child entry and records
// its inode number, then recursively materializes this directory (spec
// §4.2.3): materialization is upward-closed (Invariant 2).
func (t *TreeInode) childMaterialized(c *eden.Ctx, name string, childID uint64) {
	unlock := t.lock.Lock()
	i, ok := t.indexFor(name)
	if !ok {
		unlock.Unlock()
		return
	}
	e := t.entries[i]
	e.hasHash = false
	e.hasInodeNum = true
	e.inodeNum = childID
	unlock.Unlock()

	// Callers always reach childMaterialized with the rename lock already
	// held; materialize() would try to reacquire it and deadlock.
	t.materializeLocked(c, true)
}

// childDematerialized restores the child's hash entry, the counterpart of
// childMaterialized, called by save_overlay_post_checkout.
func (t *TreeInode) childDematerialized(c *eden.Ctx, name string, hash eden.Hash) {
	defer t.lock.Lock().Unlock()
	i, ok := t.indexFor(name)
	if !ok {
		return
	}
	e := t.entries[i]
	e.hasHash = true
	e.hash = hash
}

// GetOrLoadChild implements spec §4.2.1: resolve name to a live Inode,
// loading it on demand if necessary.
func (t *TreeInode) GetOrLoadChild(c *eden.Ctx, name string) (Inode, error) {
	if t.id == RootInodeNum && name == ".eden" {
		return t.state.imap.dotEden(), nil
	}

	unlock := t.lock.Lock()
	i, ok := t.indexFor(name)
	if !ok {
		unlock.Unlock()
		return nil, eden.Errorf(eden.NotFound, "no such entry %q", name)
	}
	e := t.entries[i]
	if e.loaded != nil {
		loaded := e.loaded
		unlock.Unlock()
		return loaded, nil
	}

	if !e.hasInodeNum {
		e.inodeNum = t.state.imap.AllocateInodeNumber()
		e.hasInodeNum = true
	}
	n := e.inodeNum

	future, shouldLoad := t.state.imap.ShouldLoadChild(n)
	unlock.Unlock()

	if !shouldLoad {
		return future.Wait(c)
	}

	inode, err := t.loadEntry(c, name, n)
	if err != nil {
		t.state.imap.LoadFailed(c, n, err)
		return nil, err
	}
	t.state.imap.LoadComplete(c, inode)

	unlock = t.lock.Lock()
	if i, ok := t.indexFor(name); ok {
		t.entries[i].loaded = inode
	}
	unlock.Unlock()

	return inode, nil
}

// DirListEntry is one name+mode pair returned by ListEntries, enough for
// a readdir response without forcing every child to be loaded.
type DirListEntry struct {
	Name string
	Mode uint32
}

// ListEntries returns a snapshot of this directory's entries in sorted
// order, for the mount package's ReadDir/ReadDirPlus handlers.
func (t *TreeInode) ListEntries(c *eden.Ctx) []DirListEntry {
	defer t.lock.RLock().RUnlock()
	out := make([]DirListEntry, len(t.entries))
	for i, e := range t.entries {
		out[i] = DirListEntry{Name: e.name, Mode: e.mode}
	}
	return out
}

// GetChildRecursive walks path component by component, per spec §4.2.1.
func (t *TreeInode) GetChildRecursive(c *eden.Ctx, path []string) (Inode, error) {
	var cur Inode = t
	for _, name := range path {
		dir, ok := cur.(*TreeInode)
		if !ok {
			return nil, eden.Errorf(eden.NotADirectory, "%q is not a directory", cur.Name())
		}
		next, err := dir.GetOrLoadChild(c, name)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// loadEntry implements the load algorithm of spec §4.2.2. It never
// panics/throws: any failure is returned as an error so the caller can
// notify the InodeMap exactly once.
func (t *TreeInode) loadEntry(c *eden.Ctx, name string, n uint64) (Inode, error) {
	defer c.FuncInName(qlog.LogInodeMap, "loadEntry", "name: %s inode: %d", name, n).Out()
	if s := t.state.imap.stats; s != nil {
		defer s.LoadTimer()()
	}

	unlock := t.lock.RLock()
	i, ok := t.indexFor(name)
	if !ok {
		unlock.RUnlock()
		return nil, eden.Errorf(eden.NotFound, "entry %q vanished before load", name)
	}
	e := *t.entries[i]
	unlock.RUnlock()

	materialized := e.hasInodeNum && !e.hasHash

	switch kindOf(e.mode) {
	case KindSocket:
		return newSocketInode(t.state.imap, n, e.mode, t), nil
	case KindSymlink:
		if materialized {
			return newSymlinkInodeMaterialized(t.state.imap, n, e.mode, t), nil
		}
		return newSymlinkInodeFromStore(t.state.imap, n, e.mode, t, e.hash), nil
	case KindFile:
		if materialized {
			return newFileInode(t.state.imap, n, e.mode, t), nil
		}
		return newFileInodeFromStore(t.state.imap, n, e.mode, t, e.hash), nil
	}

	if materialized {
		rec, found, err := t.state.imap.Overlay().LoadDir(c, n)
		if err != nil {
			return nil, eden.Wrap(eden.IO, err, "loading overlay dir %d", n)
		}
		if !found {
			return nil, eden.Errorf(eden.InternalBug, "materialized directory %d has no overlay record", n)
		}
		child := newTreeInode(t.state.imap, n, e.mode, t)
		child.setName(name)
		child.entries = make([]*entry, 0, len(rec.Entries))
		for _, r := range rec.Entries {
			child.entries = append(child.entries, entryFromRecord(r))
		}
		child.rebuildIndex()
		child.hasTreeHash = false
		child.atime = time.Unix(0, rec.ATimeUnixNano)
		child.ctime = time.Unix(0, rec.CTimeUnixNano)
		child.mtime = time.Unix(0, rec.MTimeUnixNano)
		return child, nil
	}

	key := eden.ObjectKey{Hash: e.hash, Type: eden.EntryTree}
	tree, err := t.state.imap.ObjectStore().GetTree(c, key)
	if err != nil {
		return nil, eden.Wrap(eden.IO, err, "fetching tree %s", e.hash)
	}
	child := newTreeInode(t.state.imap, n, e.mode, t)
	child.setName(name)
	for _, te := range tree.Entries() {
		child.entries = append(child.entries, entryFromTreeEntry(te))
	}
	child.rebuildIndex()
	child.treeHash = e.hash
	child.hasTreeHash = true
	return child, nil
}
