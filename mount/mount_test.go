package mount

import (
	"encoding/json"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/require"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/inodes"
	"github.com/Happy-Ferret/eden/inodes/testutil"
)

func newTestFS(t *testing.T) (*FileSystem, *testutil.Harness, *eden.Ctx) {
	t.Helper()
	h, c := testutil.New()
	fs := New(h.Map, h.Log, Config{MountPath: "/mnt/test", CacheTimeSeconds: 1})
	return fs, h, c
}

func TestLookupUnknownNameReturnsNegativeEntry(t *testing.T) {
	req := require.New(t)
	fs, _, _ := newTestFS(t)
	var out fuse.EntryOut
	st := fs.Lookup(&fuse.InHeader{NodeId: inodes.RootInodeNum}, "missing", &out)
	req.Equal(fuse.OK, st, "a negative lookup is cached via a positive reply, not ENOENT")
	req.Zero(out.NodeId)
	req.NotZero(out.EntryValid)
}

func TestCreateThenLookupRoundTrip(t *testing.T) {
	req := require.New(t)
	fs, _, _ := newTestFS(t)

	var createOut fuse.CreateOut
	st := fs.Create(&fuse.CreateIn{InHeader: fuse.InHeader{NodeId: inodes.RootInodeNum}, Mode: 0644}, "f.txt", &createOut)
	req.Equal(fuse.OK, st)
	req.NotZero(createOut.EntryOut.NodeId)

	var lookupOut fuse.EntryOut
	st = fs.Lookup(&fuse.InHeader{NodeId: inodes.RootInodeNum}, "f.txt", &lookupOut)
	req.Equal(fuse.OK, st)
	req.Equal(createOut.EntryOut.NodeId, lookupOut.NodeId)
}

func TestMkdirThenGetAttrReportsDirectory(t *testing.T) {
	req := require.New(t)
	fs, _, _ := newTestFS(t)

	var out fuse.EntryOut
	st := fs.Mkdir(&fuse.MkdirIn{InHeader: fuse.InHeader{NodeId: inodes.RootInodeNum}, Mode: 0755}, "sub", &out)
	req.Equal(fuse.OK, st)

	var attrOut fuse.AttrOut
	st = fs.GetAttr(&fuse.GetAttrIn{InHeader: fuse.InHeader{NodeId: out.NodeId}}, &attrOut)
	req.Equal(fuse.OK, st)
	req.NotZero(attrOut.Attr.Mode & syscall.S_IFDIR)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	req := require.New(t)
	fs, _, _ := newTestFS(t)

	var createOut fuse.CreateOut
	st := fs.Create(&fuse.CreateIn{InHeader: fuse.InHeader{NodeId: inodes.RootInodeNum}, Mode: 0644}, "f.txt", &createOut)
	req.Equal(fuse.OK, st)
	fh := createOut.OpenOut.Fh

	n, st := fs.Write(&fuse.WriteIn{InHeader: fuse.InHeader{Fh: fh}}, []byte("hello"))
	req.Equal(fuse.OK, st)
	req.EqualValues(5, n)

	buf := make([]byte, 5)
	res, st := fs.Read(&fuse.ReadIn{InHeader: fuse.InHeader{Fh: fh}}, buf)
	req.Equal(fuse.OK, st)
	data, _ := res.Bytes(buf)
	req.Equal("hello", string(data))
}

func TestUnlinkThenLookupReturnsNegativeEntry(t *testing.T) {
	req := require.New(t)
	fs, _, _ := newTestFS(t)

	var createOut fuse.CreateOut
	st := fs.Create(&fuse.CreateIn{InHeader: fuse.InHeader{NodeId: inodes.RootInodeNum}, Mode: 0644}, "gone.txt", &createOut)
	req.Equal(fuse.OK, st)

	st = fs.Unlink(&fuse.InHeader{NodeId: inodes.RootInodeNum}, "gone.txt")
	req.Equal(fuse.OK, st)

	var out fuse.EntryOut
	st = fs.Lookup(&fuse.InHeader{NodeId: inodes.RootInodeNum}, "gone.txt", &out)
	req.Equal(fuse.OK, st)
	req.Zero(out.NodeId)
}

func TestLinkAlwaysReturnsEPERM(t *testing.T) {
	fs, _, _ := newTestFS(t)
	var out fuse.EntryOut
	st := fs.Link(&fuse.LinkIn{}, "whatever", &out)
	require.Equal(t, fuse.EPERM, st)
}

func TestForgetUnloadsInodeAtZeroRefcount(t *testing.T) {
	req := require.New(t)
	fs, h, _ := newTestFS(t)

	var createOut fuse.CreateOut
	st := fs.Create(&fuse.CreateIn{InHeader: fuse.InHeader{NodeId: inodes.RootInodeNum}, Mode: 0644}, "f.txt", &createOut)
	req.Equal(fuse.OK, st)
	n := createOut.EntryOut.NodeId

	_, ok := h.Map.Get(n)
	req.True(ok)

	fs.Forget(n, 1)
	_, ok = h.Map.Get(n)
	req.False(ok)
}

func TestOpenDirSucceedsAndIssuesAHandle(t *testing.T) {
	req := require.New(t)
	fs, _, _ := newTestFS(t)

	var createOut fuse.CreateOut
	st := fs.Create(&fuse.CreateIn{InHeader: fuse.InHeader{NodeId: inodes.RootInodeNum}, Mode: 0644}, "a.txt", &createOut)
	req.Equal(fuse.OK, st)

	var openOut fuse.OpenOut
	st = fs.OpenDir(&fuse.OpenIn{InHeader: fuse.InHeader{NodeId: inodes.RootInodeNum}}, &openOut)
	req.Equal(fuse.OK, st)
	req.NotZero(openOut.Fh)

	fs.ReleaseDir(&fuse.ReleaseIn{InHeader: fuse.InHeader{Fh: openOut.Fh}})
	st = fs.ReadDir(&fuse.ReadIn{InHeader: fuse.InHeader{Fh: openOut.Fh}}, nil)
	req.Equal(fuse.EINVAL, st, "reading a released dir handle must fail, not read stale state")
}

// execApi round-trips a command through executeApiCommand the way
// ".eden/api" does via Open/Write/Read, without needing a real mount.
func execApi(t *testing.T, fs *FileSystem, c *eden.Ctx, cmd ApiCommand) ApiResponse {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	respRaw := fs.executeApiCommand(c, raw)
	var resp ApiResponse
	require.NoError(t, json.Unmarshal(respRaw, &resp))
	return resp
}

func TestApiStatusReportsMountPath(t *testing.T) {
	fs, _, c := newTestFS(t)
	resp := execApi(t, fs, c, ApiCommand{Command: "status"})
	require.Len(t, resp.Mounts, 1)
	require.Equal(t, "/mnt/test", resp.Mounts[0].Path)
}

func TestApiDiffRequiresToHash(t *testing.T) {
	fs, _, c := newTestFS(t)
	resp := execApi(t, fs, c, ApiCommand{Command: "diff"})
	require.NotZero(t, resp.ErrorCode)
}

func TestApiCheckoutAgainstEmptyTree(t *testing.T) {
	req := require.New(t)
	fs, h, c := newTestFS(t)

	blobKey := testutil.PutBlob(c, h.Store, []byte("v1"), eden.EntryRegular)
	treeKey := testutil.PutTree(c, h.Store, []eden.TreeEntry{{Name: "f.txt", Mode: 0644, Key: blobKey}})

	resp := execApi(t, fs, c, ApiCommand{Command: "checkout", ToHash: treeKey.Hash.String()})
	req.Zero(resp.ErrorCode)
	req.Empty(resp.Conflicts)

	var lookupOut fuse.EntryOut
	st := fs.Lookup(&fuse.InHeader{NodeId: inodes.RootInodeNum}, "f.txt", &lookupOut)
	req.Equal(fuse.OK, st)
}

func TestApiUnknownCommandReturnsError(t *testing.T) {
	fs, _, c := newTestFS(t)
	resp := execApi(t, fs, c, ApiCommand{Command: "bogus"})
	require.NotZero(t, resp.ErrorCode)
}

func TestApiOpenReadWriteRoundTrip(t *testing.T) {
	req := require.New(t)
	fs, _, _ := newTestFS(t)

	var out fuse.OpenOut
	st := fs.apiOpen(&out)
	req.Equal(fuse.OK, st)

	cmd, err := json.Marshal(ApiCommand{Command: "status"})
	req.NoError(err)
	n, st := fs.Write(&fuse.WriteIn{InHeader: fuse.InHeader{Fh: out.Fh}}, cmd)
	req.Equal(fuse.OK, st)
	req.EqualValues(len(cmd), n)

	buf := make([]byte, 4096)
	res, st := fs.Read(&fuse.ReadIn{InHeader: fuse.InHeader{Fh: out.Fh}}, buf)
	req.Equal(fuse.OK, st)
	data, _ := res.Bytes(buf)

	var resp ApiResponse
	req.NoError(json.Unmarshal(data, &resp))
	req.Zero(resp.ErrorCode)
}
