package inodes

import (
	"time"

	"github.com/Happy-Ferret/eden"
)

// NewMount builds the InodeMap and loads (or creates) the root directory
// for a fresh mount, the counterpart of the teacher's NewQuantumFs_
// installing its TypespaceList at InodeIdRoot. rootTree is the
// reference Tree the mount starts checked out to; a nil rootTree mounts
// an empty root (the bootstrap case for a brand new repository).
func NewMount(c *eden.Ctx, store eden.ObjectStore, overlay eden.Overlay, journal eden.Journal, rootTree *eden.Tree) (*InodeMap, error) {
	imap := NewInodeMap(store, overlay, journal)

	rec, found, err := overlay.LoadDir(c, RootInodeNum)
	if err != nil {
		return nil, eden.Wrap(eden.IO, err, "loading root overlay record")
	}

	root := newTreeInode(imap, RootInodeNum, 0755, nil)
	root.setName("")

	switch {
	case found:
		root.entries = make([]*entry, 0, len(rec.Entries))
		for _, r := range rec.Entries {
			root.entries = append(root.entries, entryFromRecord(r))
		}
		root.rebuildIndex()
		root.hasTreeHash = false
		root.atime = time.Unix(0, rec.ATimeUnixNano)
		root.ctime = time.Unix(0, rec.CTimeUnixNano)
		root.mtime = time.Unix(0, rec.MTimeUnixNano)
	case rootTree != nil:
		for _, te := range rootTree.Entries() {
			root.entries = append(root.entries, entryFromTreeEntry(te))
		}
		root.rebuildIndex()
		root.treeHash = rootTree.Hash()
		root.hasTreeHash = true
	default:
		root.hasTreeHash = true
		root.treeHash = eden.ZeroHash
	}

	imap.setRoot(root)
	return imap, nil
}
