package inodes_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/inodes"
	"github.com/Happy-Ferret/eden/inodes/testutil"
)

type diffTestSuite struct {
	suite.Suite
	h *testutil.Harness
	c *eden.Ctx
}

func (s *diffTestSuite) SetupTest() {
	s.h, s.c = testutil.New()
}

func TestDiff(t *testing.T) {
	suite.Run(t, new(diffTestSuite))
}

func (s *diffTestSuite) collect(referenceTree *eden.Tree) []inodes.DiffEntry {
	var got []inodes.DiffEntry
	err := inodes.Diff(s.c, s.h.Map.Root(), referenceTree, false, func(e inodes.DiffEntry) {
		got = append(got, e)
	})
	s.Require().NoError(err)
	sort.Slice(got, func(i, j int) bool { return got[i].Path < got[j].Path })
	return got
}

func (s *diffTestSuite) TestDiffReportsAddedFile() {
	req := s.Require()
	root := s.h.Map.Root()

	_, err := root.Create(s.c, "new.txt", 0644)
	req.NoError(err)

	got := s.collect(nil)
	req.Len(got, 1)
	req.Equal("new.txt", got[0].Path)
	req.Equal(inodes.DiffAdded, got[0].Status)
}

func (s *diffTestSuite) TestDiffReportsRemovedFile() {
	req := s.Require()

	blobKey := testutil.PutBlob(s.c, s.h.Store, []byte("content"), eden.EntryRegular)
	refKey := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "gone.txt", Mode: 0644, Key: blobKey},
	})
	refTree, err := s.h.Store.GetTree(s.c, refKey)
	req.NoError(err)

	got := s.collect(refTree)
	req.Len(got, 1)
	req.Equal("gone.txt", got[0].Path)
	req.Equal(inodes.DiffRemoved, got[0].Status)
}

func (s *diffTestSuite) TestDiffReportsModifiedFile() {
	req := s.Require()
	root := s.h.Map.Root()

	blobKey := testutil.PutBlob(s.c, s.h.Store, []byte("v1"), eden.EntryRegular)
	refKey := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "f.txt", Mode: 0644, Key: blobKey},
	})
	refTree, err := s.h.Store.GetTree(s.c, refKey)
	req.NoError(err)

	_, err = inodes.Checkout(s.c, root, nil, refTree, inodes.CheckoutNormal)
	req.NoError(err)

	f, err := root.GetOrLoadChild(s.c, "f.txt")
	req.NoError(err)
	fi := f.(*inodes.FileInode)
	_, err = fi.WriteAt(s.c, []byte("v2 edited"), 0)
	req.NoError(err)

	got := s.collect(refTree)
	req.Len(got, 1)
	req.Equal("f.txt", got[0].Path)
	req.Equal(inodes.DiffModified, got[0].Status)
}

func (s *diffTestSuite) TestDiffNoChangesReportsNothing() {
	req := s.Require()
	root := s.h.Map.Root()

	blobKey := testutil.PutBlob(s.c, s.h.Store, []byte("v1"), eden.EntryRegular)
	refKey := testutil.PutTree(s.c, s.h.Store, []eden.TreeEntry{
		{Name: "f.txt", Mode: 0644, Key: blobKey},
	})
	refTree, err := s.h.Store.GetTree(s.c, refKey)
	req.NoError(err)

	_, err = inodes.Checkout(s.c, root, nil, refTree, inodes.CheckoutNormal)
	req.NoError(err)

	got := s.collect(refTree)
	req.Empty(got)
}
