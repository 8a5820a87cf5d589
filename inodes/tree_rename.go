package inodes

import "github.com/Happy-Ferret/eden"

// renameAttemptBudget bounds the "reload and rerun from the top" loop of
// spec §4.2.6. Unlike the 3-attempt remove budget this isn't a value the
// source pins; it exists purely as a safety valve against a pathological
// loop, since every genuine retry is triggered by a load that terminates.
const renameAttemptBudget = 8

// RenameChild implements spec §4.2.6: move the entry named oldName out of
// t and into dstDir under newName, validating type compatibility,
// emptiness, and non-descendance, with the documented lock order.
func (t *TreeInode) RenameChild(c *eden.Ctx, oldName string, dstDir *TreeInode, newName string) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	if err := dstDir.checkMutable(); err != nil {
		return err
	}
	if t.id == RootInodeNum && oldName == ".eden" {
		return eden.Errorf(eden.PermissionDenied, "%q is immutable", oldName)
	}
	if dstDir.id == RootInodeNum && newName == ".eden" {
		return eden.Errorf(eden.PermissionDenied, "%q is immutable", newName)
	}

	for attempt := 0; attempt < renameAttemptBudget; attempt++ {
		done, retry, err := t.renameAttempt(c, oldName, dstDir, newName)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !retry {
			return eden.Errorf(eden.IO, "rename %q -> %q did not complete", oldName, newName)
		}
	}
	return eden.Errorf(eden.IO, "rename %q -> %q exceeded retry budget", oldName, newName)
}

// renameAttempt is one pass of spec §4.2.6's algorithm: lock, validate,
// and either commit (done=true), fail (err set), or ask for a reload and
// a fresh attempt (retry=true) because an entry that needs inspecting
// was not yet loaded.
func (t *TreeInode) renameAttempt(c *eden.Ctx, oldName string, dstDir *TreeInode, newName string) (done, retry bool, err error) {
	unlockRename := t.state.renameLock.Lock()
	defer unlockRename.Unlock()
	if s := t.state.imap.stats; s != nil {
		defer s.RenameLockTimer()()
	}

	t.materializeLocked(c, true)
	dstDir.materializeLocked(c, true)

	unlockAll := lockBothForRename(t, dstDir)

	srcIdx, srcOK := t.indexFor(oldName)
	if !srcOK {
		unlockAll()
		return false, false, eden.Errorf(eden.NotFound, "no such entry %q", oldName)
	}
	srcEntry := t.entries[srcIdx]

	if t == dstDir && oldName == newName {
		unlockAll()
		return true, false, nil
	}

	dstIdx, dstExists := dstDir.indexFor(newName)
	var dstEntry *entry
	if dstExists {
		dstEntry = dstDir.entries[dstIdx]
	}

	srcIsDir := srcEntry.isDir()
	if dstExists {
		if srcIsDir && !dstEntry.isDir() {
			unlockAll()
			return false, false, eden.Errorf(eden.NotADirectory, "%q is not a directory", newName)
		}
		if !srcIsDir && dstEntry.isDir() {
			unlockAll()
			return false, false, eden.Errorf(eden.IsADirectory, "%q is a directory", newName)
		}
	}

	if dstDir.isUnlinked() {
		unlockAll()
		return false, false, eden.Errorf(eden.NotFound, "destination directory has been removed")
	}

	needLoadSrc := srcIsDir && srcEntry.loaded == nil
	needLoadDst := dstExists && dstEntry.isDir() && dstEntry.loaded == nil
	if needLoadSrc || needLoadDst {
		unlockAll()
		if needLoadSrc {
			if _, err := t.GetOrLoadChild(c, oldName); err != nil {
				return false, false, err
			}
		}
		if needLoadDst {
			if _, err := dstDir.GetOrLoadChild(c, newName); err != nil {
				return false, false, err
			}
		}
		return false, true, nil
	}

	var srcDirInode, dstDirInode *TreeInode
	if srcIsDir {
		srcDirInode, _ = srcEntry.loaded.(*TreeInode)
	}
	if dstExists && dstEntry.isDir() {
		dstDirInode, _ = dstEntry.loaded.(*TreeInode)
	}

	if srcDirInode != nil && (dstDir == srcDirInode || isDescendant(dstDir, srcDirInode)) {
		unlockAll()
		return false, false, eden.Errorf(eden.InvalidArgument, "destination is a descendant of the source")
	}

	sameInode := dstDirInode != nil && srcDirInode != nil && dstDirInode == srcDirInode

	var unlockDstChild func()
	if dstDirInode != nil && !sameInode {
		u := dstDirInode.lock.Lock()
		unlockDstChild = u.Unlock
		if len(dstDirInode.entries) != 0 {
			unlockDstChild()
			unlockAll()
			return false, false, eden.Errorf(eden.NotEmpty, "%q is not empty", newName)
		}
	}

	if sameInode {
		unlockAll()
		return true, false, nil
	}

	var dstOldInodeNum uint64
	var dstOldHasInodeNum bool
	if dstExists {
		dstOldInodeNum, dstOldHasInodeNum = dstEntry.inodeNum, dstEntry.hasInodeNum
		if dstEntry.loaded != nil {
			dstEntry.loaded.markUnlinked(c)
		}
	}

	moved := srcEntry
	moved.name = newName
	if dstExists {
		dstDir.eraseLocked(newName)
	}
	t.eraseLocked(oldName)
	dstDir.insertSorted(moved)

	if moved.loaded != nil {
		moved.loaded.updateLocation(c, dstDir, newName)
	}

	t.touch()
	dstDir.touch()

	errSrc := t.persistLocked(c)
	errDst := dstDir.persistLocked(c)

	if unlockDstChild != nil {
		unlockDstChild()
	}
	unlockAll()

	if errSrc != nil {
		return false, false, errSrc
	}
	if errDst != nil {
		return false, false, errDst
	}

	t.invalidate(c, oldName)
	dstDir.invalidate(c, newName)
	// The journal delta is appended after releasing contents locks but
	// still under the rename lock, so journal order matches the order
	// in which renames become visible (spec §5 ordering guarantees).
	t.journal(c, eden.Delta{Kind: eden.DeltaRenamed, Path: t.childPath(oldName), NewPath: dstDir.childPath(newName)})

	if dstOldHasInodeNum && t.state.imap.refcountOf(dstOldInodeNum) == 0 {
		t.state.imap.UnloadInode(dstOldInodeNum)
	}
	return true, false, nil
}
