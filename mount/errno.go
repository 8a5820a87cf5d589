package mount

import (
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/Happy-Ferret/eden"
)

// toStatus maps eden.ErrorKind to a fuse.Status the way the teacher's
// own inode methods return a raw fuse.Status picked by hand at each call
// site; here the mapping is centralized since every kind the core can
// signal is already enumerated in one place (eden.ErrorKind).
func toStatus(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	switch eden.KindOf(err) {
	case eden.NotFound:
		return fuse.ENOENT
	case eden.NotADirectory:
		return fuse.ENOTDIR
	case eden.IsADirectory:
		return fuse.Status(21) // EISDIR
	case eden.NotEmpty:
		return fuse.Status(39) // ENOTEMPTY
	case eden.Exists:
		return fuse.Status(17) // EEXIST
	case eden.InvalidArgument:
		return fuse.EINVAL
	case eden.PermissionDenied:
		return fuse.EPERM
	case eden.StaleReference:
		// Must never escape the inodes package; if it does, treat it
		// as the IO bug it represents rather than exposing EBADF.
		return fuse.EIO
	case eden.Cancelled:
		return fuse.Status(4) // EINTR
	case eden.InternalBug:
		return fuse.EIO
	default:
		return fuse.EIO
	}
}
