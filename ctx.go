package eden

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Happy-Ferret/eden/qlog"
)

// requestIDCounter is seeded from a UUID at process start so that request
// ids are unique across restarts of the same mount, then incremented
// atomically per request the way the teacher's ctx.reqId assigns a
// monotonic id off of the FUSE header's Unique field.
var requestIDCounter uint64

func init() {
	seed := uuid.New()
	// Take the first 8 of the uuid's 16 random bytes as a 64 bit seed with
	// the top bit cleared, leaving room for subsystem-ranged counters the
	// way the teacher reserves MinFixedReqId..math.MaxUint64 for
	// non-kernel-originated requests (flusher, refresh, forget, ...).
	var seedVal uint64
	for i := 0; i < 8; i++ {
		seedVal = seedVal<<8 | uint64(seed[i])
	}
	requestIDCounter = seedVal &^ (uint64(1) << 63)
}

// NextRequestID mints a process-unique request id for operations that do
// not originate from a kernel request (checkout, diff, background flush).
func NextRequestID() uint64 {
	return atomic.AddUint64(&requestIDCounter, 1)
}

// Ctx is threaded through every operation in the core, exactly as the
// teacher threads *ctx through every Inode method: it carries the request
// id for log correlation, the shared Qlog sink, and (via embedding
// context.Context) the cancellation token named in spec §5.
type Ctx struct {
	context.Context
	RequestID uint64
	Log       *qlog.Qlog
	// FromKernel is true when this request originated as a kernel FUSE
	// call, as opposed to an internal caller (checkout, diff, a test
	// harness). Mutation operations use it to decide whether the kernel
	// dentry/attr cache needs invalidating: a kernel-originated request
	// already has the kernel's own cache in sync.
	FromKernel bool
}

// NewCtx builds a root Ctx for a mount-level Qlog.
func NewCtx(parent context.Context, log *qlog.Qlog) *Ctx {
	return &Ctx{Context: parent, RequestID: NextRequestID(), Log: log}
}

// WithRequest returns a copy of c carrying a fresh request id and the given
// context.Context, the way the teacher's ctx.req(header) copies everything
// but assigns a new RequestId per inbound FUSE request.
func (c *Ctx) WithRequest(ctx context.Context) *Ctx {
	return &Ctx{Context: ctx, RequestID: NextRequestID(), Log: c.Log, FromKernel: c.FromKernel}
}

// WithKernelOrigin returns a copy of c with FromKernel set as given.
func (c *Ctx) WithKernelOrigin(fromKernel bool) *Ctx {
	cp := *c
	cp.FromKernel = fromKernel
	return &cp
}

func (c *Ctx) Elog(s qlog.Subsystem, format string, args ...interface{}) {
	c.Log.Elog(c.RequestID, s, format, args...)
}

func (c *Ctx) Wlog(s qlog.Subsystem, format string, args ...interface{}) {
	c.Log.Wlog(c.RequestID, s, format, args...)
}

func (c *Ctx) Dlog(s qlog.Subsystem, format string, args ...interface{}) {
	c.Log.Dlog(c.RequestID, s, format, args...)
}

func (c *Ctx) Vlog(s qlog.Subsystem, format string, args ...interface{}) {
	c.Log.Vlog(c.RequestID, s, format, args...)
}

func (c *Ctx) FuncIn(s qlog.Subsystem, name string) qlog.ExitFunc {
	return c.Log.FuncIn(c.RequestID, s, name, "")
}

func (c *Ctx) FuncInName(s qlog.Subsystem, name, extraFmt string, args ...interface{}) qlog.ExitFunc {
	return c.Log.FuncIn(c.RequestID, s, name, extraFmt, args...)
}

// Assert panics (after logging at fatal severity) if condition is false.
// Mirrors the teacher's utils.Assert, but also routes through the Qlog so
// invariant violations show up in the mount's log, not just a bare panic.
func (c *Ctx) Assert(condition bool, format string, args ...interface{}) {
	if !condition {
		c.Elog(qlog.LogDaemon, "ASSERTION FAILED: "+format, args...)
		panic(Errorf(InternalBug, format, args...))
	}
}
