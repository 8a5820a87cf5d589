package inodes

import "github.com/Happy-Ferret/eden"

// Unlink removes a non-directory child, per spec §4.2.5.
func (t *TreeInode) Unlink(c *eden.Ctx, name string) error {
	return t.removeImpl(c, name, KindFile, false)
}

// Rmdir removes an empty directory child, per spec §4.2.5.
func (t *TreeInode) Rmdir(c *eden.Ctx, name string) error {
	return t.removeImpl(c, name, KindTree, true)
}

// removeImpl is remove_impl<Kind> from spec §4.2.5: verify the child's
// kind, pre-check emptiness for directories, then drive tryRemoveChild
// under the rename lock with a bounded retry on StaleReference.
func (t *TreeInode) removeImpl(c *eden.Ctx, name string, expected Kind, requireEmpty bool) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	if t.id == RootInodeNum && name == ".eden" {
		return eden.Errorf(eden.PermissionDenied, "%q is immutable", name)
	}

	var lastErr error
	for attempt := 0; attempt < removeRetryBudget; attempt++ {
		err := t.tryRemoveOnce(c, name, expected, requireEmpty)
		if err == nil {
			return nil
		}
		if eden.KindOf(err) != eden.StaleReference {
			return err
		}
		lastErr = err
		// Reload the child then retry, per spec §4.2.5 step 5.
		if _, loadErr := t.GetOrLoadChild(c, name); loadErr != nil {
			return loadErr
		}
	}
	return eden.Wrap(eden.IO, lastErr, "exceeded remove retry budget for %q", name)
}

// tryRemoveOnce is try_remove_child from spec §4.2.5, driven once under
// the rename lock.
func (t *TreeInode) tryRemoveOnce(c *eden.Ctx, name string, expected Kind, requireEmpty bool) error {
	defer t.state.renameLock.Lock().Unlock()

	if t.isUnlinked() {
		return eden.Errorf(eden.NotFound, "directory has been removed")
	}
	t.materializeLocked(c, true)

	unlock := t.lock.Lock()
	defer unlock.Unlock()

	i, ok := t.indexFor(name)
	if !ok {
		return eden.Errorf(eden.NotFound, "no such entry %q", name)
	}
	e := t.entries[i]

	if e.loaded == nil {
		return eden.Errorf(eden.StaleReference, "entry %q not yet loaded", name)
	}
	actual := kindOf(e.mode)
	if (actual == KindTree) != (expected == KindTree) {
		if expected == KindTree {
			return eden.Errorf(eden.NotADirectory, "%q is not a directory", name)
		}
		return eden.Errorf(eden.IsADirectory, "%q is a directory", name)
	}

	if requireEmpty {
		dir, ok := e.loaded.(*TreeInode)
		if !ok {
			return eden.Errorf(eden.InternalBug, "directory entry %q is not a *TreeInode", name)
		}
		duLock := dir.lock.RLock()
		empty := len(dir.entries) == 0
		duLock.RUnlock()
		if !empty {
			return eden.Errorf(eden.NotEmpty, "%q is not empty", name)
		}
	}

	e.loaded.markUnlinked(c)
	t.eraseLocked(name)
	t.touch()

	if err := t.persistLocked(c); err != nil {
		return err
	}

	t.invalidate(c, name)
	t.journal(c, eden.Delta{Kind: eden.DeltaRemoved, Path: t.childPath(name)})

	n := e.inodeNum
	if t.state.imap.refcountOf(n) == 0 {
		t.state.imap.UnloadInode(n)
	}
	return nil
}
