package eden

import "fmt"

// ErrorKind is one of the error kinds the core signals, per spec §7. It is
// deliberately small and POSIX-shaped so that the mount package can map it
// onto a syscall.Errno without any case falling through to a guess.
type ErrorKind uint8

const (
	// NotFound: ENOENT.
	NotFound ErrorKind = iota
	// NotADirectory: ENOTDIR.
	NotADirectory
	// IsADirectory: EISDIR.
	IsADirectory
	// NotEmpty: ENOTEMPTY.
	NotEmpty
	// Exists: EEXIST.
	Exists
	// InvalidArgument: EINVAL.
	InvalidArgument
	// PermissionDenied: EPERM.
	PermissionDenied
	// StaleReference is an internal-only signal (EBADF) used by
	// try_remove_child to ask its caller to reload and retry; it must
	// never escape to mount.
	StaleReference
	// IO is the catch-all for corrupted overlay state, exhausted
	// retries, or any other unexpected invariant violation: EIO.
	IO
	// Cancelled means the request's context was cancelled.
	Cancelled
	// InternalBug indicates an assertion failure or a broken invariant.
	// The mount package reports it to the caller as EIO.
	InternalBug
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case NotADirectory:
		return "NotADirectory"
	case IsADirectory:
		return "IsADirectory"
	case NotEmpty:
		return "NotEmpty"
	case Exists:
		return "Exists"
	case InvalidArgument:
		return "InvalidArgument"
	case PermissionDenied:
		return "PermissionDenied"
	case StaleReference:
		return "StaleReference"
	case IO:
		return "IO"
	case Cancelled:
		return "Cancelled"
	case InternalBug:
		return "InternalBug"
	default:
		return "Unknown"
	}
}

// Error is the error type every core operation returns. It carries enough
// information for the mount package to pick the right errno and for the
// logger to print something useful, without the core importing go-fuse.
type Error struct {
	Kind ErrorKind
	Msg  string
	// Err, if set, is the underlying error from the ObjectStore, Overlay,
	// or Journal that caused this one.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an underlying error.
func Wrap(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from err, defaulting to IO for errors that
// did not originate in this package (e.g. a raw I/O error from the Overlay).
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return IO
}
