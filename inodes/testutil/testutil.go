// Package testutil wires together an in-memory ObjectStore, Overlay, and
// Journal with a fresh InodeMap, the way the teacher's daemon.TestHelper
// wires a full QuantumFs instance for its own tests but scoped to just
// the core (no FUSE mount): the inodes package's tests exercise the
// InodeMap/TreeInode/Checkout/Diff logic directly against this harness.
package testutil

import (
	"context"

	"github.com/fxamacker/cbor/v2"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/inodes"
	"github.com/Happy-Ferret/eden/journal"
	"github.com/Happy-Ferret/eden/objectstore/memstore"
	"github.com/Happy-Ferret/eden/overlay/memoverlay"
	"github.com/Happy-Ferret/eden/qlog"
)

// Harness bundles a fresh, empty mount's dependencies and its InodeMap.
type Harness struct {
	Store   *memstore.Store
	Overlay *memoverlay.Overlay
	Journal *journal.MemJournal
	Log     *qlog.Qlog
	Map     *inodes.InodeMap
}

// New builds an empty mount: no reference tree and an empty root
// directory that starts clean (checked out to eden.ZeroHash). The first
// mutation materializes it, so tests can create/mkdir/write into it
// immediately without a checkout.
func New() (*Harness, *eden.Ctx) {
	h := &Harness{
		Store:   memstore.New(),
		Overlay: memoverlay.New(),
		Journal: journal.NewMemJournal(1024),
		Log:     qlog.New(4096),
	}
	c := eden.NewCtx(context.Background(), h.Log)

	imap, err := inodes.NewMount(c, h.Store, h.Overlay, h.Journal, nil)
	if err != nil {
		panic(err)
	}
	h.Map = imap
	return h, c
}

// PutTree stores a Tree built from name->entry pairs, sorted by name, and
// returns its ObjectKey. The hash is derived from the entries themselves
// (a cbor encoding fed through eden.HashBytes) since nothing upstream of
// the ObjectStore assigns one: a real committer would mint the hash when
// it serializes the tree, which this harness stands in for.
func PutTree(c *eden.Ctx, store *memstore.Store, entries []eden.TreeEntry) eden.ObjectKey {
	data, err := cbor.Marshal(entries)
	if err != nil {
		panic(err)
	}
	key := eden.ObjectKey{Hash: eden.HashBytes(data), Type: eden.EntryTree}
	t := eden.NewTree(key, entries)
	if _, err := store.PutTree(c, t); err != nil {
		panic(err)
	}
	return key
}

// PutBlob stores data and returns its ObjectKey.
func PutBlob(c *eden.Ctx, store *memstore.Store, data []byte, etype eden.EntryType) eden.ObjectKey {
	key, err := store.PutBlob(c, data, etype)
	if err != nil {
		panic(err)
	}
	return key
}
