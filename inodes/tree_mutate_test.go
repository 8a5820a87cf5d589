package inodes_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/inodes"
	"github.com/Happy-Ferret/eden/inodes/testutil"
	"github.com/Happy-Ferret/eden/journal"
	"github.com/Happy-Ferret/eden/objectstore/memstore"
	"github.com/Happy-Ferret/eden/overlay/memoverlay"
	"github.com/Happy-Ferret/eden/qlog"
)

type mutateTestSuite struct {
	suite.Suite
	h *testutil.Harness
	c *eden.Ctx
}

func (s *mutateTestSuite) SetupTest() {
	s.h, s.c = testutil.New()
}

func TestMutate(t *testing.T) {
	suite.Run(t, new(mutateTestSuite))
}

func (s *mutateTestSuite) TestCreateAndWrite() {
	req := s.Require()
	root := s.h.Map.Root()

	f, err := root.Create(s.c, "hello.txt", 0644)
	req.NoError(err)

	n, err := f.WriteAt(s.c, []byte("hi"), 0)
	req.NoError(err)
	req.Equal(2, n)

	buf := make([]byte, 2)
	n, err = f.ReadAt(s.c, buf, 0)
	req.NoError(err)
	req.Equal(2, n)
	req.Equal("hi", string(buf))
}

func (s *mutateTestSuite) TestMkdirNested() {
	req := s.Require()
	root := s.h.Map.Root()

	sub, err := root.Mkdir(s.c, "sub", 0755)
	req.NoError(err)
	req.NotNil(sub)

	leaf, err := sub.Mkdir(s.c, "leaf", 0755)
	req.NoError(err)
	req.NotNil(leaf)

	entries := root.ListEntries(s.c)
	req.Len(entries, 1)
	req.Equal("sub", entries[0].Name)
}

func (s *mutateTestSuite) TestCreateDuplicateNameFails() {
	req := s.Require()
	root := s.h.Map.Root()

	_, err := root.Create(s.c, "dup", 0644)
	req.NoError(err)

	_, err = root.Create(s.c, "dup", 0644)
	req.Error(err)
}

func (s *mutateTestSuite) TestMknodRejectsNonSocket() {
	req := s.Require()
	root := s.h.Map.Root()

	_, err := root.Mknod(s.c, "blk", 0644)
	req.Error(err, "mknod must reject any mode other than S_IFSOCK")
}

func (s *mutateTestSuite) TestLinkAlwaysRejected() {
	req := s.Require()
	root := s.h.Map.Root()

	f, err := root.Create(s.c, "target", 0644)
	req.NoError(err)

	err = root.Link(s.c, "alias", f)
	req.Error(err)
}

func (s *mutateTestSuite) TestUnlinkRemovesEntry() {
	req := s.Require()
	root := s.h.Map.Root()

	_, err := root.Create(s.c, "gone", 0644)
	req.NoError(err)

	req.NoError(root.Unlink(s.c, "gone"))
	req.Len(root.ListEntries(s.c), 0)

	err = root.Unlink(s.c, "gone")
	req.Error(err)
}

func (s *mutateTestSuite) TestRmdirRequiresEmpty() {
	req := s.Require()
	root := s.h.Map.Root()

	sub, err := root.Mkdir(s.c, "sub", 0755)
	req.NoError(err)
	_, err = sub.Create(s.c, "f", 0644)
	req.NoError(err)

	req.Error(root.Rmdir(s.c, "sub"))

	req.NoError(sub.Unlink(s.c, "f"))
	req.NoError(root.Rmdir(s.c, "sub"))
}

// TestMutatingALoadedCleanSubdirDoesNotDeadlock exercises the
// materialization path the empty testutil.New root alone never
// reaches: a clean subdirectory loaded out of the ObjectStore, whose
// parent is itself still clean. Mutating it must propagate
// materialization up through that clean parent without the mutating
// goroutine deadlocking on its own already-held rename lock.
func TestMutatingALoadedCleanSubdirDoesNotDeadlock(t *testing.T) {
	req := require.New(t)

	store := memstore.New()
	log := qlog.New(4096)
	c := eden.NewCtx(context.Background(), log)

	subKey := testutil.PutTree(c, store, nil)
	rootKey := testutil.PutTree(c, store, []eden.TreeEntry{
		{Name: "sub", Mode: syscall.S_IFDIR | 0755, Key: subKey},
	})
	rootTree, err := store.GetTree(c, rootKey)
	req.NoError(err)

	imap, err := inodes.NewMount(c, store, memoverlay.New(), journal.NewMemJournal(1024), rootTree)
	req.NoError(err)

	root := imap.Root()
	child, err := root.GetOrLoadChild(c, "sub")
	req.NoError(err)
	sub, ok := child.(*inodes.TreeInode)
	req.True(ok)

	done := make(chan error, 1)
	go func() {
		_, createErr := sub.Create(c, "newfile.txt", 0644)
		done <- createErr
	}()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("materializing a clean subdirectory through its clean parent deadlocked")
	}
}
