package mount

import (
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/Happy-Ferret/eden/inodes"
)

// Config holds the kernel-attribute-cache lifetimes the teacher's own
// QuantumFsConfig.CacheTimeSeconds/CacheTimeNsecs carry, plus the FUSE
// mount path and options.
type Config struct {
	MountPath        string
	CacheTimeSeconds uint64
	CacheTimeNsecs   uint32
	AllowOther       bool
}

func timeToFuse(t time.Time) (sec uint64, nsec uint32) {
	return uint64(t.Unix()), uint32(t.Nanosecond())
}

// fillAttr translates an inodes.Attr into a fuse.Attr, mirroring the
// teacher's fillAttrWithDirectoryRecord: Ino/Mode/Size/Nlink come from
// the inode, the cache-control fields come from the mount's own config.
func (fs *FileSystem) fillAttr(attr *fuse.Attr, inodeNum uint64, a inodes.Attr) {
	attr.Ino = inodeNum
	attr.Mode = a.Mode
	attr.Size = a.Size
	attr.Nlink = a.Nlink
	attr.Blksize = 4096
	attr.Blocks = (a.Size + 511) / 512
	attr.Atime, attr.Atimensec = timeToFuse(a.Atime)
	attr.Mtime, attr.Mtimensec = timeToFuse(a.Mtime)
	attr.Ctime, attr.Ctimensec = timeToFuse(a.Ctime)
	attr.Owner = fuse.Owner{Uid: 0, Gid: 0}
}

func (fs *FileSystem) fillEntryOut(out *fuse.EntryOut, inodeNum uint64, a inodes.Attr) {
	out.NodeId = inodeNum
	out.Generation = 1
	out.EntryValid = fs.config.CacheTimeSeconds
	out.EntryValidNsec = fs.config.CacheTimeNsecs
	out.AttrValid = fs.config.CacheTimeSeconds
	out.AttrValidNsec = fs.config.CacheTimeNsecs
	fs.fillAttr(&out.Attr, inodeNum, a)
}

func (fs *FileSystem) fillAttrOut(out *fuse.AttrOut, inodeNum uint64, a inodes.Attr) {
	out.AttrValid = fs.config.CacheTimeSeconds
	out.AttrValidNsec = fs.config.CacheTimeNsecs
	fs.fillAttr(&out.Attr, inodeNum, a)
}

// fillNegativeEntryOut fills out for a lookup that found nothing, with
// NodeId left at zero and the cache timeouts set to their maximum so the
// kernel holds onto the negative result instead of re-issuing the lookup.
func fillNegativeEntryOut(out *fuse.EntryOut) {
	out.NodeId = 0
	out.EntryValid = ^uint64(0)
	out.EntryValidNsec = ^uint32(0)
	out.AttrValid = ^uint64(0)
	out.AttrValidNsec = ^uint32(0)
}

// attrRequestFromFuse translates a fuse.SetAttrIn's validity bitmask into
// an inodes.AttrRequest, matching the FATTR_* bits go-fuse exposes.
func attrRequestFromFuse(in *fuse.SetAttrIn) inodes.AttrRequest {
	var req inodes.AttrRequest
	const (
		fattrMode  = 1 << 0
		fattrSize  = 1 << 3
		fattrAtime = 1 << 4
		fattrMtime = 1 << 5
	)
	if in.Valid&fattrMode != 0 {
		req.SetMode = true
		req.Mode = in.Mode
	}
	if in.Valid&fattrSize != 0 {
		req.SetSize = true
		req.Size = in.Size
	}
	if in.Valid&fattrAtime != 0 {
		req.SetAtime = true
		req.Atime = time.Unix(int64(in.Atime), int64(in.Atimensec))
	}
	if in.Valid&fattrMtime != 0 {
		req.SetMtime = true
		req.Mtime = time.Unix(int64(in.Mtime), int64(in.Mtimensec))
	}
	return req
}

func modeForCreate(mode, umask uint32) uint32 {
	return (mode &^ umask) | syscall.S_IFREG
}
