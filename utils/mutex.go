// Package utils provides the small, call-site-level helpers that the rest
// of edenvfs is built on: deferable locks and bit-flag/assert helpers.
// Adapted from the teacher's utils package (utils/mutex.go, utils/utils.go).
package utils

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/silentred/gid"
)

// NeedReadUnlock and NeedWriteUnlock let callers write
// defer mu.Lock().Unlock() or defer mu.RLock().RUnlock() without caring
// which kind of lock they hold, while the compiler still prevents mixing
// a read unlock with a write lock and vice versa.
type NeedReadUnlock interface {
	RUnlock()
}

type NeedWriteUnlock interface {
	Unlock()
}

// DeferableMutex is a sync.Mutex usable as defer m.Lock().Unlock().
type DeferableMutex struct {
	lock sync.Mutex
}

func (m *DeferableMutex) Lock() NeedWriteUnlock {
	m.lock.Lock()
	return &m.lock
}

func (m *DeferableMutex) Unlock() {
	m.lock.Unlock()
}

// CheckForRecursiveRLock, when true, makes DeferableRwMutex panic if a
// single goroutine calls RLock() on the same instance twice without an
// intervening RUnlock(). Intended for use in tests; the goroutine id is
// read with github.com/silentred/gid since Go has no public gettid().
var CheckForRecursiveRLock bool

// DeferableRwMutex is a sync.RWMutex usable as defer m.Lock().Unlock() or
// defer m.RLock().RUnlock().
type DeferableRwMutex struct {
	lock sync.RWMutex

	holdersLock DeferableMutex
	holders     map[int64]uintptr
}

func (m *DeferableRwMutex) RLock() NeedReadUnlock {
	if CheckForRecursiveRLock {
		m.checkRecursive()
	}
	m.lock.RLock()
	return m
}

func (m *DeferableRwMutex) RUnlock() {
	if CheckForRecursiveRLock {
		defer m.holdersLock.Lock().Unlock()
		delete(m.holders, gid.Get())
	}
	m.lock.RUnlock()
}

func (m *DeferableRwMutex) checkRecursive() {
	defer m.holdersLock.Lock().Unlock()
	if m.holders == nil {
		m.holders = make(map[int64]uintptr)
	}
	goID := gid.Get()
	if pc, held := m.holders[goID]; held {
		f := runtime.FuncForPC(pc)
		file, line := f.FileLine(pc)
		Assert(false, "goroutine %d attempted to RLock twice, previously at %s:%d",
			goID, file, line)
	}
	pc, _, _, _ := runtime.Caller(2)
	m.holders[goID] = pc
}

func (m *DeferableRwMutex) Lock() NeedWriteUnlock {
	m.lock.Lock()
	return &m.lock
}

func (m *DeferableRwMutex) Unlock() {
	m.lock.Unlock()
}

// Assert panics with a formatted message if condition is false. Used for
// invariant checks that should never fail in correct code but, if they do,
// must fail loudly rather than silently corrupt the inode cache.
func Assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf(format, args...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		Assert(false, "%s", err.Error())
	}
}
