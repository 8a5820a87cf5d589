package mount

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/inodes"
	"github.com/Happy-Ferret/eden/stats"
)

// apiHandleBase keeps handle numbers minted for ".eden/api" opens well
// out of the range real inode numbers ever reach, so the fh value alone
// disambiguates an api handle from a regular file's fh (which is just
// that file's inode number).
const apiHandleBase = uint64(1) << 62

var nextApiHandle atomic.Uint64

// apiHandle holds one open command channel's most recent response,
// mirroring the teacher's ApiHandle but synchronous: a command is fully
// executed inside Write rather than queued for a background goroutine to
// answer, since every admin command here (checkout, diff, status) is
// itself synchronous against the core.
type apiHandle struct {
	mu      sync.Mutex
	pending []byte
}

// ApiCommand is the JSON payload written to ".eden/api" to drive an
// administrative operation, the edenvfs counterpart of the teacher's
// quantumfs.CommandCommon family.
type ApiCommand struct {
	Command     string `json:"command"`
	ToHash      string `json:"to_hash,omitempty"`
	FromHash    string `json:"from_hash,omitempty"`
	Force       bool   `json:"force,omitempty"`
	ListIgnored bool   `json:"list_ignored,omitempty"`
}

// ApiResponse is read back from ".eden/api" after writing an ApiCommand.
type ApiResponse struct {
	ErrorCode   int                 `json:"error_code"`
	Message     string              `json:"message,omitempty"`
	Mounts      []MountStatus       `json:"mounts,omitempty"`
	Conflicts   []ConflictResponse  `json:"conflicts,omitempty"`
	DiffEntries []DiffEntryResponse `json:"diff_entries,omitempty"`
	Stats       *stats.Report       `json:"stats,omitempty"`
}

type MountStatus struct {
	Path  string `json:"path"`
	Hash  string `json:"hash"`
	Clean bool   `json:"clean"`
}

type ConflictResponse struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

type DiffEntryResponse struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

func errorResponse(format string, args ...interface{}) []byte {
	return mustMarshal(ApiResponse{ErrorCode: 1, Message: fmt.Sprintf(format, args...)})
}

func mustMarshal(resp ApiResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// A fixed, statically-shaped struct always marshals; this would
		// only fire on a broken json package.
		panic("edenvfs: failed to marshal ApiResponse: " + err.Error())
	}
	return data
}

func (fs *FileSystem) executeApiCommand(c *eden.Ctx, raw []byte) []byte {
	var cmd ApiCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return errorResponse("invalid command payload: %v", err)
	}

	switch cmd.Command {
	case "status", "list_mounts":
		return mustMarshal(fs.apiStatus())
	case "diff":
		return mustMarshal(fs.apiDiff(c, cmd))
	case "checkout":
		return mustMarshal(fs.apiCheckout(c, cmd))
	default:
		return errorResponse("unknown command %q", cmd.Command)
	}
}

func (fs *FileSystem) apiStatus() ApiResponse {
	hash, clean := fs.imap.Root().CurrentTreeHash()
	report := fs.stats.Report()
	return ApiResponse{
		Mounts: []MountStatus{
			{Path: fs.config.MountPath, Hash: hash.String(), Clean: clean},
		},
		Stats: &report,
	}
}

func (fs *FileSystem) apiDiff(c *eden.Ctx, cmd ApiCommand) ApiResponse {
	if cmd.ToHash == "" {
		return ApiResponse{ErrorCode: 1, Message: "diff requires to_hash"}
	}
	hash, err := eden.ParseHash(cmd.ToHash)
	if err != nil {
		return ApiResponse{ErrorCode: 1, Message: err.Error()}
	}
	tree, err := fs.imap.ObjectStore().GetTree(c, eden.ObjectKey{Hash: hash, Type: eden.EntryTree})
	if err != nil {
		return ApiResponse{ErrorCode: 1, Message: err.Error()}
	}

	var entries []DiffEntryResponse
	err = inodes.Diff(c, fs.imap.Root(), tree, cmd.ListIgnored, func(e inodes.DiffEntry) {
		entries = append(entries, DiffEntryResponse{Path: e.Path, Status: e.Status.String()})
	})
	if err != nil {
		return ApiResponse{ErrorCode: 1, Message: err.Error()}
	}
	return ApiResponse{DiffEntries: entries}
}

func (fs *FileSystem) apiCheckout(c *eden.Ctx, cmd ApiCommand) ApiResponse {
	if cmd.ToHash == "" {
		return ApiResponse{ErrorCode: 1, Message: "checkout requires to_hash"}
	}
	toTree, err := fs.resolveTree(c, cmd.ToHash)
	if err != nil {
		return ApiResponse{ErrorCode: 1, Message: err.Error()}
	}

	var fromTree *eden.Tree
	if cmd.FromHash != "" {
		fromTree, err = fs.resolveTree(c, cmd.FromHash)
	} else if hash, clean := fs.imap.Root().CurrentTreeHash(); clean && !hash.IsZero() {
		fromTree, err = fs.imap.ObjectStore().GetTree(c, eden.ObjectKey{Hash: hash, Type: eden.EntryTree})
	}
	if err != nil {
		return ApiResponse{ErrorCode: 1, Message: err.Error()}
	}

	mode := inodes.CheckoutNormal
	if cmd.Force {
		mode = inodes.CheckoutForce
	}
	cctx, err := inodes.Checkout(c, fs.imap.Root(), fromTree, toTree, mode)
	if err != nil {
		return ApiResponse{ErrorCode: 1, Message: err.Error()}
	}

	conflicts := make([]ConflictResponse, 0, len(cctx.Conflicts))
	for _, cf := range cctx.Conflicts {
		conflicts = append(conflicts, ConflictResponse{Path: cf.Path, Type: cf.Type.String()})
	}
	return ApiResponse{Conflicts: conflicts}
}

// resolveTree fetches the Tree named by a hex hash, treating the zero
// hash as "the empty tree" (nil) rather than a lookup.
func (fs *FileSystem) resolveTree(c *eden.Ctx, hexHash string) (*eden.Tree, error) {
	hash, err := eden.ParseHash(hexHash)
	if err != nil {
		return nil, err
	}
	if hash.IsZero() {
		return nil, nil
	}
	return fs.imap.ObjectStore().GetTree(c, eden.ObjectKey{Hash: hash, Type: eden.EntryTree})
}

func (fs *FileSystem) apiOpen(out *fuse.OpenOut) fuse.Status {
	h := apiHandleBase + nextApiHandle.Add(1)
	fs.apiHandles.Store(h, &apiHandle{})
	out.Fh = h
	return fuse.OK
}

func (fs *FileSystem) apiRead(h *apiHandle, offset uint64, buf []byte) (fuse.ReadResult, fuse.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset >= uint64(len(h.pending)) {
		return fuse.ReadResultData(nil), fuse.OK
	}
	end := offset + uint64(len(buf))
	if end > uint64(len(h.pending)) {
		end = uint64(len(h.pending))
	}
	return fuse.ReadResultData(h.pending[offset:end]), fuse.OK
}

func (fs *FileSystem) apiWrite(h *apiHandle, data []byte) uint32 {
	c := fs.newCtx(context.Background())
	resp := fs.executeApiCommand(c, data)
	h.mu.Lock()
	h.pending = resp
	h.mu.Unlock()
	return uint32(len(data))
}
