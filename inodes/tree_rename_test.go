package inodes_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/inodes/testutil"
)

type renameTestSuite struct {
	suite.Suite
	h *testutil.Harness
	c *eden.Ctx
}

func (s *renameTestSuite) SetupTest() {
	s.h, s.c = testutil.New()
}

func TestRename(t *testing.T) {
	suite.Run(t, new(renameTestSuite))
}

func (s *renameTestSuite) TestRenameFileWithinSameDir() {
	req := s.Require()
	root := s.h.Map.Root()

	_, err := root.Create(s.c, "a.txt", 0644)
	req.NoError(err)

	req.NoError(root.RenameChild(s.c, "a.txt", root, "b.txt"))

	entries := root.ListEntries(s.c)
	req.Len(entries, 1)
	req.Equal("b.txt", entries[0].Name)
}

func (s *renameTestSuite) TestRenameAcrossDirectories() {
	req := s.Require()
	root := s.h.Map.Root()

	src, err := root.Mkdir(s.c, "src", 0755)
	req.NoError(err)
	dst, err := root.Mkdir(s.c, "dst", 0755)
	req.NoError(err)

	_, err = src.Create(s.c, "f.txt", 0644)
	req.NoError(err)

	req.NoError(src.RenameChild(s.c, "f.txt", dst, "f.txt"))

	req.Len(src.ListEntries(s.c), 0)
	req.Len(dst.ListEntries(s.c), 1)
}

func (s *renameTestSuite) TestRenameOntoDescendantRejected() {
	req := s.Require()
	root := s.h.Map.Root()

	parent, err := root.Mkdir(s.c, "parent", 0755)
	req.NoError(err)
	child, err := parent.Mkdir(s.c, "child", 0755)
	req.NoError(err)
	_ = child

	err = root.RenameChild(s.c, "parent", child, "loop")
	req.Error(err, "moving a directory into its own descendant must fail")
}

func (s *renameTestSuite) TestRenameOntoNonEmptyDirFails() {
	req := s.Require()
	root := s.h.Map.Root()

	_, err := root.Mkdir(s.c, "a", 0755)
	req.NoError(err)
	b, err := root.Mkdir(s.c, "b", 0755)
	req.NoError(err)
	_, err = b.Create(s.c, "occupied", 0644)
	req.NoError(err)

	err = root.RenameChild(s.c, "a", root, "b")
	req.Error(err)
}

func (s *renameTestSuite) TestRenameTypeMismatchFails() {
	req := s.Require()
	root := s.h.Map.Root()

	_, err := root.Mkdir(s.c, "dir", 0755)
	req.NoError(err)
	_, err = root.Create(s.c, "file", 0644)
	req.NoError(err)

	req.Error(root.RenameChild(s.c, "dir", root, "file"))
	req.Error(root.RenameChild(s.c, "file", root, "dir"))
}
