package inodes

import (
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/qlog"
)

// CheckoutMode selects how aggressively Checkout resolves conflicts.
type CheckoutMode uint8

const (
	// CheckoutNormal applies every change that has no conflict and
	// leaves conflicting entries untouched.
	CheckoutNormal CheckoutMode = iota
	// CheckoutDryRun computes conflicts without mutating anything.
	CheckoutDryRun
	// CheckoutForce applies every change, discarding local
	// modifications that would otherwise conflict.
	CheckoutForce
)

// ConflictType is one of the checkout conflict kinds from spec §4.3's
// decision table.
type ConflictType uint8

const (
	MissingRemoved ConflictType = iota
	RemovedModified
	UntrackedAdded
	ModifiedModified
	DirectoryNotEmpty
)

func (ct ConflictType) String() string {
	switch ct {
	case MissingRemoved:
		return "MISSING_REMOVED"
	case RemovedModified:
		return "REMOVED_MODIFIED"
	case UntrackedAdded:
		return "UNTRACKED_ADDED"
	case ModifiedModified:
		return "MODIFIED_MODIFIED"
	case DirectoryNotEmpty:
		return "DIRECTORY_NOT_EMPTY"
	default:
		return "UNKNOWN"
	}
}

// Conflict is one recorded checkout conflict.
type Conflict struct {
	Path string
	Type ConflictType
}

// CheckoutContext accumulates conflicts and errors across an entire
// checkout, per spec §4.3: "checkout accumulates errors and conflicts
// into the context rather than failing fast."
type CheckoutContext struct {
	Mode CheckoutMode

	mu        sync.Mutex
	Conflicts []Conflict
	Errors    []error
}

func (ctx *CheckoutContext) addConflict(path string, t ConflictType) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.Conflicts = append(ctx.Conflicts, Conflict{Path: path, Type: t})
}

func (ctx *CheckoutContext) addError(err error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.Errors = append(ctx.Errors, err)
}

// force reports whether non-conflicting-but-risky changes should still be
// applied.
func (ctx *CheckoutContext) force() bool { return ctx.Mode == CheckoutForce }
func (ctx *CheckoutContext) dryRun() bool { return ctx.Mode == CheckoutDryRun }

// Checkout transitions t from fromTree to toTree (either may be nil),
// per spec §4.3. It returns the accumulated CheckoutContext even when
// conflicts were found; only a genuine I/O error short-circuits with a
// non-nil error.
func Checkout(c *eden.Ctx, t *TreeInode, fromTree, toTree *eden.Tree, mode CheckoutMode) (*CheckoutContext, error) {
	cctx := &CheckoutContext{Mode: mode}
	if err := t.checkout(c, cctx, fromTree, toTree); err != nil {
		return cctx, err
	}
	return cctx, nil
}

func treeHashOf(tree *eden.Tree) (eden.Hash, bool) {
	if tree == nil {
		return eden.ZeroHash, false
	}
	return tree.Hash(), true
}

// checkout is the per-directory recursive step of spec §4.3.
func (t *TreeInode) checkout(c *eden.Ctx, cctx *CheckoutContext, fromTree, toTree *eden.Tree) error {
	defer c.FuncInName(qlog.LogCheckout, "checkout", "dir %s", t.Name()).Out()

	if short := t.checkoutShortCircuit(cctx, fromTree, toTree); short {
		return nil
	}

	names, fromByName, toByName := mergeNames(fromTree, toTree)

	unlock := t.lock.Lock()
	type work struct {
		name    string
		oldScm  *eden.TreeEntry
		newScm  *eden.TreeEntry
		local   *entry
	}
	var jobs []work
	for _, name := range names {
		oldScm, newScm := fromByName[name], toByName[name]
		var local *entry
		if i, ok := t.indexFor(name); ok {
			local = t.entries[i]
		}
		jobs = append(jobs, work{name, oldScm, newScm, local})
	}
	unlock.Unlock()

	g, gctx := errgroup.WithContext(c.Context)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			return t.checkoutEntry(c.WithRequest(gctx), cctx, j.name, j.oldScm, j.newScm, j.local)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return t.saveOverlayPostCheckout(c, toTree)
}

// checkoutShortCircuit implements spec §4.3's short-circuit: a clean
// directory whose hash already matches the relevant side of the
// transition, with no conflicts possible, needs no walk at all.
func (t *TreeInode) checkoutShortCircuit(cctx *CheckoutContext, fromTree, toTree *eden.Tree) bool {
	if t.isMaterialized() {
		return false
	}
	defer t.lock.RLock().RUnlock()
	if cctx.dryRun() {
		if h, ok := treeHashOf(fromTree); ok && t.treeHash == h {
			return true
		}
		return false
	}
	if h, ok := treeHashOf(toTree); ok && t.treeHash == h {
		return true
	}
	return false
}

func mergeNames(fromTree, toTree *eden.Tree) (names []string, fromByName, toByName map[string]*eden.TreeEntry) {
	fromByName = map[string]*eden.TreeEntry{}
	toByName = map[string]*eden.TreeEntry{}
	seen := map[string]bool{}
	if fromTree != nil {
		for _, e := range fromTree.Entries() {
			e := e
			fromByName[e.Name] = &e
			if !seen[e.Name] {
				seen[e.Name] = true
				names = append(names, e.Name)
			}
		}
	}
	if toTree != nil {
		for _, e := range toTree.Entries() {
			e := e
			toByName[e.Name] = &e
			if !seen[e.Name] {
				seen[e.Name] = true
				names = append(names, e.Name)
			}
		}
	}
	sort.Strings(names)
	return names, fromByName, toByName
}

func sameScmEntry(a, b *eden.TreeEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Key == b.Key && a.Mode == b.Mode
}

// checkoutEntry decides and, where appropriate, applies the action for
// one name, per the decision table in spec §4.3.
func (t *TreeInode) checkoutEntry(c *eden.Ctx, cctx *CheckoutContext, name string, oldScm, newScm *eden.TreeEntry, local *entry) error {
	path := t.childPath(name)

	if sameScmEntry(oldScm, newScm) && !cctx.force() {
		return nil
	}

	if local != nil && local.loaded != nil {
		return t.checkoutUpdateEntry(c, cctx, name, local, oldScm, newScm)
	}
	if local != nil && local.hasInodeNum && local.loaded == nil {
		loaded, err := t.GetOrLoadChild(c, name)
		if err != nil {
			cctx.addError(err)
			return nil
		}
		if i, ok := t.indexFor(name); ok {
			unlock := t.lock.Lock()
			t.entries[i].loaded = loaded
			unlock.Unlock()
		}
		return t.checkoutUpdateEntry(c, cctx, name, local, oldScm, newScm)
	}

	// local is nil or an unloaded, unmaterialized (pure-hash) entry.
	switch {
	case local == nil && oldScm == nil && newScm != nil:
		if !cctx.dryRun() {
			t.checkoutInsert(c, name, newScm)
		}
		return nil

	case local == nil && oldScm != nil && newScm == nil:
		cctx.addConflict(path, MissingRemoved)
		return nil

	case local == nil && oldScm != nil && newScm != nil:
		cctx.addConflict(path, RemovedModified)
		if cctx.force() {
			t.checkoutInsert(c, name, newScm)
		}
		return nil

	case local != nil && local.hasHash && oldScm != nil && local.hash == oldScm.Key.Hash:
		// Unmodified locally: safe to swap straight to the new hash
		// (or remove, if newScm is nil) with no conflict.
		if newScm == nil {
			t.checkoutRemoveClean(c, name)
		} else {
			t.checkoutInsert(c, name, newScm)
		}
		return nil

	case local != nil && oldScm == nil:
		cctx.addConflict(path, UntrackedAdded)
		if cctx.force() {
			if newScm == nil {
				t.checkoutRemoveClean(c, name)
			} else {
				t.checkoutInsert(c, name, newScm)
			}
		}
		return nil

	case local != nil:
		cctx.addConflict(path, ModifiedModified)
		if cctx.force() {
			if newScm == nil {
				t.checkoutRemoveClean(c, name)
			} else {
				t.checkoutInsert(c, name, newScm)
			}
		}
		return nil
	}
	return nil
}

func (t *TreeInode) checkoutInsert(c *eden.Ctx, name string, scm *eden.TreeEntry) {
	defer t.lock.Lock().Unlock()
	e := &entry{name: name, mode: scm.Mode, hash: scm.Key.Hash, hasHash: true}
	if i, ok := t.indexFor(name); ok {
		t.entries[i] = e
	} else {
		t.insertSorted(e)
	}
	t.touch()
	_ = t.persistLocked(c)
}

func (t *TreeInode) checkoutRemoveClean(c *eden.Ctx, name string) {
	defer t.lock.Lock().Unlock()
	t.eraseLocked(name)
	t.touch()
	_ = t.persistLocked(c)
}

// checkoutUpdateEntry handles an entry whose local inode is live, per
// spec §4.3's checkout_update_entry: files replace in place, directories
// recurse, and a directory<->file kind change is resolved by emptying the
// directory side first.
func (t *TreeInode) checkoutUpdateEntry(c *eden.Ctx, cctx *CheckoutContext, name string, local *entry, oldScm, newScm *eden.TreeEntry) error {
	child := local.loaded
	childIsDir := child.Kind() == KindTree
	newIsDir := newScm != nil && newScm.Key.Type == eden.EntryTree

	switch {
	case childIsDir && (newScm == nil || newIsDir):
		var fromSub, toSub *eden.Tree
		var err error
		if oldScm != nil && oldScm.Key.Type == eden.EntryTree {
			fromSub, err = t.state.imap.ObjectStore().GetTree(c, oldScm.Key)
			if err != nil {
				cctx.addError(err)
				return nil
			}
		}
		if newScm != nil {
			toSub, err = t.state.imap.ObjectStore().GetTree(c, newScm.Key)
			if err != nil {
				cctx.addError(err)
				return nil
			}
		}
		dir := child.(*TreeInode)
		return dir.checkout(c, cctx, fromSub, toSub)

	case childIsDir:
		// Directory -> file: recurse with an empty target tree to
		// clear it, then replace with the file entry if nothing
		// untracked remains.
		var fromSub *eden.Tree
		var err error
		if oldScm != nil && oldScm.Key.Type == eden.EntryTree {
			fromSub, err = t.state.imap.ObjectStore().GetTree(c, oldScm.Key)
			if err != nil {
				cctx.addError(err)
				return nil
			}
		}
		dir := child.(*TreeInode)
		if err := dir.checkout(c, cctx, fromSub, nil); err != nil {
			return err
		}
		dirEmpty := func() bool {
			defer dir.lock.RLock().RUnlock()
			return len(dir.entries) == 0
		}()
		path := t.childPath(name)
		if !dirEmpty {
			cctx.addConflict(path, DirectoryNotEmpty)
			return nil
		}
		unlock := t.lock.Lock()
		t.eraseLocked(name)
		if newScm != nil {
			t.insertSorted(&entry{name: name, mode: newScm.Mode, hash: newScm.Key.Hash, hasHash: true})
		}
		t.touch()
		err = t.persistLocked(c)
		unlock.Unlock()
		t.invalidate(c, name)
		return err

	default:
		// File/symlink/socket -> file/symlink/socket, or -> directory.
		unlock := t.lock.Lock()
		i, ok := t.indexFor(name)
		if !ok || t.entries[i].loaded != child {
			unlock.Unlock()
			c.Assert(false, "checkout_update_entry: entry %q no longer names this inode", name)
			return nil
		}
		if newScm == nil {
			t.eraseLocked(name)
		} else {
			t.entries[i] = &entry{name: name, mode: newScm.Mode, hash: newScm.Key.Hash, hasHash: true}
		}
		t.touch()
		err := t.persistLocked(c)
		unlock.Unlock()
		t.invalidate(c, name)
		return err
	}
}

// saveOverlayPostCheckout is spec §4.3's dematerialization step: if every
// entry now matches toTree exactly and no child is materialized, the
// directory can return to clean state; otherwise it stays materialized
// and is persisted as-is. Per spec §9's open question, this always
// rewrites the overlay record rather than detecting a no-op.
func (t *TreeInode) saveOverlayPostCheckout(c *eden.Ctx, toTree *eden.Tree) error {
	unlock := t.lock.Lock()

	if toTree != nil && t.matchesTreeLocked(toTree) {
		t.hasTreeHash = true
		t.treeHash = toTree.Hash()
		parent, name := t.parent, t.name
		unlock.Unlock()
		if parent != nil {
			parent.childDematerialized(c, name, toTree.Hash())
		}
		return nil
	}

	t.hasTreeHash = false
	err := t.persistLocked(c)
	empty := len(t.entries) == 0
	parent, name := t.parent, t.name
	unlock.Unlock()
	if err != nil {
		return err
	}

	if toTree == nil && empty && parent != nil {
		// checkout_try_remove_empty_dir: the directory has no
		// remaining entries and the checkout target has none for
		// it either, so remove it from the parent entirely.
		_ = parent.removeImpl(c, name, KindTree, true)
	}
	return nil
}

func (t *TreeInode) matchesTreeLocked(toTree *eden.Tree) bool {
	scmEntries := toTree.Entries()
	if len(scmEntries) != len(t.entries) {
		return false
	}
	for i, e := range t.entries {
		se := scmEntries[i]
		if e.name != se.Name || e.mode != se.Mode {
			return false
		}
		if !e.hasHash || e.hash != se.Key.Hash {
			return false
		}
		if e.loaded != nil {
			if dir, ok := e.loaded.(*TreeInode); ok && dir.isMaterialized() {
				return false
			}
		}
	}
	return true
}

