// Package mount adapts the inodes package's core onto go-fuse's kernel
// protocol, playing the role the teacher's daemon package plays for
// QuantumFs: daemon/mux.go there embeds fuse.NewDefaultRawFileSystem()
// and overrides only the methods it needs, and FileSystem here does the
// same so an unimplemented corner of the ~30 method RawFileSystem
// interface falls back to the default's ENOSYS rather than needing a
// hand-written stub.
package mount

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/Happy-Ferret/eden"
	"github.com/Happy-Ferret/eden/inodes"
	"github.com/Happy-Ferret/eden/qlog"
	"github.com/Happy-Ferret/eden/stats"
)

// FileSystem is the fuse.RawFileSystem the mount registers with the
// kernel. It holds no mutation logic of its own; every call is a thin
// translation into an inodes package operation and back.
type FileSystem struct {
	fuse.RawFileSystem

	imap   *inodes.InodeMap
	log    *qlog.Qlog
	config Config
	stats  *stats.Stats

	server atomic.Pointer[fuse.Server]

	// dirHandles maps an OpenDir-issued handle to its directory listing
	// snapshot; see dirHandle in ops.go.
	dirHandles sync.Map

	// apiHandles maps an Open-on-".eden/api"-issued handle to its
	// pending command response; see apiHandle in api.go.
	apiHandles sync.Map
}

// New builds a FileSystem over an already-bootstrapped InodeMap. The
// caller (cmd/edend) is responsible for building the InodeMap via
// inodes.NewMount first.
func New(imap *inodes.InodeMap, log *qlog.Qlog, config Config) *FileSystem {
	st := stats.New()
	fs := &FileSystem{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		imap:          imap,
		log:           log,
		config:        config,
		stats:         st,
	}
	imap.SetInvalidateFunc(fs.invalidate)
	imap.SetStats(st)
	return fs
}

// SetServer records the live fuse.Server once mounted, so invalidate can
// call back into the kernel. Called by cmd/edend right after fuse.NewServer.
func (fs *FileSystem) SetServer(srv *fuse.Server) {
	fs.server.Store(srv)
}

func (fs *FileSystem) invalidate(parentIno uint64, name string) {
	srv := fs.server.Load()
	if srv == nil {
		return
	}
	srv.EntryNotify(parentIno, name)
}

func (fs *FileSystem) newCtx(ctx context.Context) *eden.Ctx {
	return eden.NewCtx(ctx, fs.log).WithKernelOrigin(true)
}

func (fs *FileSystem) String() string {
	return "edenvfs"
}

func (fs *FileSystem) SetDebug(debug bool) {}

// getDir resolves an inode number to a *inodes.TreeInode, or ENOTDIR /
// ENOENT if it isn't one, mirroring the teacher's lookupCommon's own
// "must be a directory" checks scattered across mux.go's handlers.
func (fs *FileSystem) getDir(n uint64) (*inodes.TreeInode, fuse.Status) {
	inode, ok := fs.imap.Get(n)
	if !ok {
		return nil, fuse.ENOENT
	}
	dir, ok := inode.(*inodes.TreeInode)
	if !ok {
		return nil, fuse.ENOTDIR
	}
	return dir, fuse.OK
}

func (fs *FileSystem) getInode(n uint64) (inodes.Inode, fuse.Status) {
	inode, ok := fs.imap.Get(n)
	if !ok {
		return nil, fuse.ENOENT
	}
	return inode, fuse.OK
}
