package inodes_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/inodes"
	"github.com/Happy-Ferret/eden/inodes/testutil"
)

type checkoutTestSuite struct {
	suite.Suite
	h *testutil.Harness
	c *eden.Ctx
}

func (s *checkoutTestSuite) SetupTest() {
	s.h, s.c = testutil.New()
}

func TestCheckout(t *testing.T) {
	suite.Run(t, new(checkoutTestSuite))
}

func (s *checkoutTestSuite) TestCheckoutFromEmptyInsertsCleanly() {
	req := s.Require()

	blobKey := testutil.PutBlob(s.c, s.h.Store, []byte("content"), eden.EntryRegular)
	toKey := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "f.txt", Mode: 0644, Key: blobKey},
	})
	toTree, err := s.h.Store.GetTree(s.c, toKey)
	req.NoError(err)

	cctx, err := inodes.Checkout(s.c, s.h.Map.Root(), nil, toTree, inodes.CheckoutNormal)
	req.NoError(err)
	req.Empty(cctx.Conflicts)

	entries := s.h.Map.Root().ListEntries(s.c)
	req.Len(entries, 1)
	req.Equal("f.txt", entries[0].Name)
}

func (s *checkoutTestSuite) TestCheckoutSwapsUnmodifiedEntryCleanly() {
	req := s.Require()
	root := s.h.Map.Root()

	blobV1 := testutil.PutBlob(s.c, s.h.Store, []byte("v1"), eden.EntryRegular)
	fromKey := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "f.txt", Mode: 0644, Key: blobV1},
	})
	fromTree, err := s.h.Store.GetTree(s.c, fromKey)
	req.NoError(err)

	_, err = inodes.Checkout(s.c, root, nil, fromTree, inodes.CheckoutNormal)
	req.NoError(err)

	blobV2 := testutil.PutBlob(s.c, s.h.Store, []byte("v2"), eden.EntryRegular)
	toKey := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "f.txt", Mode: 0644, Key: blobV2},
	})
	toTree, err := s.h.Store.GetTree(s.c, toKey)
	req.NoError(err)

	// f.txt was never touched since the first checkout, so swapping to
	// the v2 hash is conflict-free.
	cctx, err := inodes.Checkout(s.c, root, fromTree, toTree, inodes.CheckoutNormal)
	req.NoError(err)
	req.Empty(cctx.Conflicts)

	entries := root.ListEntries(s.c)
	req.Len(entries, 1)
}

func (s *checkoutTestSuite) TestCheckoutFlagsUntrackedAdd() {
	req := s.Require()
	root := s.h.Map.Root()

	// First checkout introduces new.txt as an untouched, pure-hash entry.
	blobKey := testutil.PutBlob(s.c, s.h.Store, []byte("untracked"), eden.EntryRegular)
	toKey1 := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "new.txt", Mode: 0644, Key: blobKey},
	})
	toTree1, err := s.h.Store.GetTree(s.c, toKey1)
	req.NoError(err)
	_, err = inodes.Checkout(s.c, root, nil, toTree1, inodes.CheckoutNormal)
	req.NoError(err)

	// A second checkout that believes there was nothing before (fromTree
	// nil) but whose target adds its own new.txt finds the local entry
	// anyway: it is untracked from this transition's point of view.
	trackedKey := testutil.PutBlob(s.c, s.h.Store, []byte("tracked"), eden.EntryRegular)
	toKey2 := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "new.txt", Mode: 0644, Key: trackedKey},
	})
	toTree2, err := s.h.Store.GetTree(s.c, toKey2)
	req.NoError(err)

	cctx, err := inodes.Checkout(s.c, root, nil, toTree2, inodes.CheckoutNormal)
	req.NoError(err)
	req.Len(cctx.Conflicts, 1)
	req.Equal(inodes.UntrackedAdded, cctx.Conflicts[0].Type)
}

func (s *checkoutTestSuite) TestCheckoutForceOverridesUntrackedAdd() {
	req := s.Require()
	root := s.h.Map.Root()

	blobKey := testutil.PutBlob(s.c, s.h.Store, []byte("untracked"), eden.EntryRegular)
	toKey1 := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "new.txt", Mode: 0644, Key: blobKey},
	})
	toTree1, err := s.h.Store.GetTree(s.c, toKey1)
	req.NoError(err)
	_, err = inodes.Checkout(s.c, root, nil, toTree1, inodes.CheckoutNormal)
	req.NoError(err)

	trackedKey := testutil.PutBlob(s.c, s.h.Store, []byte("tracked"), eden.EntryRegular)
	toKey2 := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "new.txt", Mode: 0644, Key: trackedKey},
	})
	toTree2, err := s.h.Store.GetTree(s.c, toKey2)
	req.NoError(err)

	cctx, err := inodes.Checkout(s.c, root, nil, toTree2, inodes.CheckoutForce)
	req.NoError(err)
	req.Len(cctx.Conflicts, 1, "force still reports what it overrode")
	entries := root.ListEntries(s.c)
	req.Len(entries, 1, "force replaced the untracked entry with the target's")
	req.Equal("new.txt", entries[0].Name)
}
