package inodes

// lockBothForRename implements the lock-ordering rule of spec §4.2.6 step
// 2-5: given the source and destination directories (possibly the same),
// take contents locks in an order that can never deadlock against a
// concurrent rename. The destination child, if it exists and is a
// directory, is not locked here; renameAttempt locks it separately.
//
// Callers must already hold the mount-wide rename lock.
func lockBothForRename(src, dst *TreeInode) (unlockAll func()) {
	if src == dst {
		u := src.lock.Lock()
		return u.Unlock
	}

	if isAncestor(src, dst) {
		u1 := src.lock.Lock()
		u2 := dst.lock.Lock()
		return func() { u2.Unlock(); u1.Unlock() }
	}

	u2 := dst.lock.Lock()
	u1 := src.lock.Lock()
	return func() { u1.Unlock(); u2.Unlock() }
}

// isAncestor reports whether a is an ancestor of b by walking b's parent
// chain. Used only to pick a deadlock-free lock order, not for
// correctness of the rename itself (spec §4.2.6 validates descendant-ness
// separately under the locks).
func isAncestor(a, b *TreeInode) bool {
	cur := b.parent
	for cur != nil {
		if cur == a {
			return true
		}
		cur = cur.parent
	}
	return false
}

// isDescendant reports whether candidate is a descendant of ancestor,
// walking up candidate's parent chain. Used by rename's validation step
// (spec §4.2.6: "destination must not be a descendant of the source").
func isDescendant(candidate, ancestor *TreeInode) bool {
	cur := candidate
	for cur != nil {
		if cur == ancestor {
			return true
		}
		cur = cur.parent
	}
	return false
}
