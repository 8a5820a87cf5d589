package inodes

import (
	"golang.org/x/sync/errgroup"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/qlog"
)

// DiffStatus classifies one path reported by Diff.
type DiffStatus uint8

const (
	DiffAdded DiffStatus = iota
	DiffRemoved
	DiffModified
	DiffIgnored
)

func (s DiffStatus) String() string {
	switch s {
	case DiffAdded:
		return "ADDED"
	case DiffRemoved:
		return "REMOVED"
	case DiffModified:
		return "MODIFIED"
	case DiffIgnored:
		return "IGNORED"
	default:
		return "UNKNOWN"
	}
}

// DiffEntry is one path reported by Diff.
type DiffEntry struct {
	Path   string
	Status DiffStatus
}

// DiffCallback receives each reported path. It may be called concurrently
// from multiple goroutines and must synchronize its own state.
type DiffCallback func(DiffEntry)

// Diff computes the set of added/removed/modified/ignored paths between
// t's live contents and referenceTree, per spec §4.4. listIgnored
// controls whether excluded paths are reported at all (matching the
// source's list_ignored flag referenced in scenario S6).
func Diff(c *eden.Ctx, t *TreeInode, referenceTree *eden.Tree, listIgnored bool, cb DiffCallback) error {
	return t.diff(c, "", referenceTree, NewGitIgnoreStack(), false, listIgnored, cb)
}

// diff is the per-directory recursive step of spec §4.4.
func (t *TreeInode) diff(c *eden.Ctx, currentPath string, referenceTree *eden.Tree, parentIgnore *GitIgnoreStack, alreadyIgnored, listIgnored bool, cb DiffCallback) error {
	defer c.FuncInName(qlog.LogDiff, "diff", "dir %s", currentPath).Out()

	if short := t.diffShortCircuit(referenceTree); short {
		return nil
	}

	ignore := parentIgnore
	if !alreadyIgnored {
		ignore = t.resolveIgnore(c, currentPath, parentIgnore)
	}

	names, refByName, _ := mergeNames(referenceTree, nil)
	localNames, localByName := t.snapshotEntries()
	names = mergeSortedNameLists(names, localNames)

	g, gctx := errgroup.WithContext(c.Context)
	for _, name := range names {
		name := name
		refEntry := refByName[name]
		local := localByName[name]
		childPath := joinPath(currentPath, name)

		switch {
		case local == nil && refEntry != nil:
			g.Go(func() error {
				return t.diffRemoved(c.WithRequest(gctx), childPath, refEntry, cb)
			})
		case local != nil && refEntry == nil:
			g.Go(func() error {
				return t.diffUntracked(c.WithRequest(gctx), childPath, name, local, ignore, alreadyIgnored, listIgnored, cb)
			})
		case local != nil && refEntry != nil:
			g.Go(func() error {
				return t.diffBoth(c.WithRequest(gctx), childPath, name, local, refEntry, ignore, alreadyIgnored, listIgnored, cb)
			})
		}
	}
	return g.Wait()
}

// diffShortCircuit implements spec §4.4: an unmaterialized directory
// whose hash already matches the reference tree contributes nothing.
func (t *TreeInode) diffShortCircuit(referenceTree *eden.Tree) bool {
	defer t.lock.RLock().RUnlock()
	if t.hasTreeHash {
		if h, ok := treeHashOf(referenceTree); ok && t.treeHash == h {
			return true
		}
	}
	return false
}

// resolveIgnore searches this directory's entries for .gitignore and, if
// present, layers a new rule set on parentIgnore (spec §4.4), based at
// dirPath, this directory's path relative to the diff root. If the
// directory is already ignored, callers skip this entirely.
func (t *TreeInode) resolveIgnore(c *eden.Ctx, dirPath string, parentIgnore *GitIgnoreStack) *GitIgnoreStack {
	child, err := t.GetOrLoadChild(c, ".gitignore")
	if err != nil {
		return parentIgnore
	}
	file, ok := child.(*FileInode)
	if !ok {
		return parentIgnore
	}
	buf := make([]byte, 64*1024)
	n, err := file.ReadAt(c, buf, 0)
	if err != nil {
		c.Wlog(qlog.LogDiff, "failed to resolve .gitignore for %q: %v", t.Name(), err)
		return parentIgnore
	}
	return parentIgnore.Push(dirPath, string(buf[:n]))
}

func (t *TreeInode) snapshotEntries() (names []string, byName map[string]*entry) {
	defer t.lock.RLock().RUnlock()
	byName = make(map[string]*entry, len(t.entries))
	for _, e := range t.entries {
		names = append(names, e.name)
		byName[e.name] = e
	}
	return names, byName
}

func mergeSortedNameLists(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, n := range append(append([]string{}, a...), b...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// diffRemoved reports a path present in the reference tree but not
// locally; for a removed tree, it recurses to report every leaf beneath
// it as removed too.
func (t *TreeInode) diffRemoved(c *eden.Ctx, path string, refEntry *eden.TreeEntry, cb DiffCallback) error {
	if refEntry.Key.Type != eden.EntryTree {
		cb(DiffEntry{Path: path, Status: DiffRemoved})
		return nil
	}
	subtree, err := t.state.imap.ObjectStore().GetTree(c, refEntry.Key)
	if err != nil {
		return eden.Wrap(eden.IO, err, "fetching removed tree %s", refEntry.Key.Hash)
	}
	return diffRemovedTree(c, path, subtree, t.state.imap, cb)
}

func diffRemovedTree(c *eden.Ctx, path string, tree *eden.Tree, imap *InodeMap, cb DiffCallback) error {
	g, gctx := errgroup.WithContext(c.Context)
	for _, te := range tree.Entries() {
		te := te
		childPath := joinPath(path, te.Name)
		g.Go(func() error {
			cc := c.WithRequest(gctx)
			if te.Key.Type != eden.EntryTree {
				cb(DiffEntry{Path: childPath, Status: DiffRemoved})
				return nil
			}
			sub, err := imap.ObjectStore().GetTree(cc, te.Key)
			if err != nil {
				return eden.Wrap(eden.IO, err, "fetching removed tree %s", te.Key.Hash)
			}
			return diffRemovedTree(cc, childPath, sub, imap, cb)
		})
	}
	return g.Wait()
}

// diffUntracked classifies a path present locally but not in the
// reference tree: HIDDEN entries are skipped outright, EXCLUDE entries
// are reported only if listIgnored is set, everything else is reported
// added (recursing into untracked directories).
func (t *TreeInode) diffUntracked(c *eden.Ctx, path, name string, local *entry, ignore *GitIgnoreStack, alreadyIgnored, listIgnored bool, cb DiffCallback) error {
	if isHidden(name) {
		return nil
	}

	ignored := alreadyIgnored || ignore.IsIgnored(path)
	if ignored {
		if listIgnored {
			cb(DiffEntry{Path: path, Status: DiffIgnored})
		}
		if !local.isDir() {
			return nil
		}
	} else if !local.isDir() {
		cb(DiffEntry{Path: path, Status: DiffAdded})
		return nil
	} else {
		cb(DiffEntry{Path: path, Status: DiffAdded})
	}

	child, err := t.GetOrLoadChild(c, name)
	if err != nil {
		return err
	}
	dir, ok := child.(*TreeInode)
	if !ok {
		return nil
	}
	return dir.diff(c, path, nil, ignore, ignored, listIgnored, cb)
}

// diffBoth handles a name present on both sides: identical entries are
// skipped, a kind change reports the file-level change and also walks the
// removed side as a subtree, and same-kind modifications recurse.
func (t *TreeInode) diffBoth(c *eden.Ctx, path, name string, local *entry, refEntry *eden.TreeEntry, ignore *GitIgnoreStack, alreadyIgnored, listIgnored bool, cb DiffCallback) error {
	localIsDir := local.isDir()
	refIsDir := refEntry.Key.Type == eden.EntryTree

	if !localIsDir && !refIsDir && local.hasHash && local.hash == refEntry.Key.Hash && local.mode == refEntry.Mode {
		return nil
	}

	if localIsDir != refIsDir {
		cb(DiffEntry{Path: path, Status: DiffModified})
		if refIsDir {
			subtree, err := t.state.imap.ObjectStore().GetTree(c, refEntry.Key)
			if err != nil {
				return eden.Wrap(eden.IO, err, "fetching tree %s", refEntry.Key.Hash)
			}
			return diffRemovedTree(c, path, subtree, t.state.imap, cb)
		}
		return nil
	}

	if !localIsDir {
		cb(DiffEntry{Path: path, Status: DiffModified})
		return nil
	}

	child, err := t.GetOrLoadChild(c, name)
	if err != nil {
		return err
	}
	dir, ok := child.(*TreeInode)
	if !ok {
		return nil
	}
	subtree, err := t.state.imap.ObjectStore().GetTree(c, refEntry.Key)
	if err != nil {
		return eden.Wrap(eden.IO, err, "fetching tree %s", refEntry.Key.Hash)
	}
	return dir.diff(c, path, subtree, ignore, alreadyIgnored, listIgnored, cb)
}
