package inodes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Happy-Ferret/eden/inodes"
	"github.com/Happy-Ferret/eden/inodes/testutil"
)

func TestAllocateInodeNumberNeverRepeats(t *testing.T) {
	req := require.New(t)
	h, _ := testutil.New()

	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		n := h.Map.AllocateInodeNumber()
		req.False(seen[n], "inode number %d issued twice", n)
		seen[n] = true
	}
}

func TestRootAndDotEdenAreLiveFromTheStart(t *testing.T) {
	req := require.New(t)
	h, _ := testutil.New()

	root := h.Map.Root()
	req.NotNil(root)

	dotEdenInode, ok := h.Map.Get(inodes.DotEdenInodeNum)
	req.True(ok)
	req.NotNil(dotEdenInode)

	api := h.Map.ApiInode()
	req.NotNil(api)
}

func TestShouldLoadChildIsAtMostOnce(t *testing.T) {
	req := require.New(t)
	h, _ := testutil.New()

	n := h.Map.AllocateInodeNumber()

	_, first := h.Map.ShouldLoadChild(n)
	req.True(first, "first caller should be told to drive the load")

	_, second := h.Map.ShouldLoadChild(n)
	req.False(second, "second caller must join the in-progress load, not start a new one")
}

func TestFuseRefcountRoundTrip(t *testing.T) {
	req := require.New(t)
	h, _ := testutil.New()

	n := h.Map.AllocateInodeNumber()
	h.Map.IncFuseRefcount(n)
	h.Map.IncFuseRefcount(n)

	req.False(h.Map.DecFuseRefcount(n, 1))
	req.True(h.Map.DecFuseRefcount(n, 1))
}

func TestDecFuseRefcountClampsAtZero(t *testing.T) {
	req := require.New(t)
	h, _ := testutil.New()

	n := h.Map.AllocateInodeNumber()
	h.Map.IncFuseRefcount(n)

	req.True(h.Map.DecFuseRefcount(n, 5), "a FORGET delta larger than the held count still reaches zero")
}
