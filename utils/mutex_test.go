package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferableMutexLockUnlock(t *testing.T) {
	var m DeferableMutex
	func() {
		defer m.Lock().Unlock()
	}()
	// A second, non-deferred acquisition proves the deferred Unlock above
	// actually ran rather than deadlocking.
	m.Lock().Unlock()
}

func TestDeferableRwMutexReadersDoNotBlockEachOther(t *testing.T) {
	var m DeferableRwMutex
	u1 := m.RLock()
	u2 := m.RLock()
	u1.RUnlock()
	u2.RUnlock()
}

func TestDeferableRwMutexWriteLock(t *testing.T) {
	var m DeferableRwMutex
	m.Lock().Unlock()
}

func TestCheckForRecursiveRLockPanicsOnSameGoroutine(t *testing.T) {
	old := CheckForRecursiveRLock
	CheckForRecursiveRLock = true
	defer func() { CheckForRecursiveRLock = old }()

	var m DeferableRwMutex
	u := m.RLock()
	defer u.RUnlock()

	require.Panics(t, func() {
		m.RLock()
	})
}

func TestCheckForRecursiveRLockAllowsReacquireAfterUnlock(t *testing.T) {
	old := CheckForRecursiveRLock
	CheckForRecursiveRLock = true
	defer func() { CheckForRecursiveRLock = old }()

	var m DeferableRwMutex
	u1 := m.RLock()
	u1.RUnlock()

	assert.NotPanics(t, func() {
		m.RLock().RUnlock()
	})
}

func TestAssertPanicsOnFalseCondition(t *testing.T) {
	require.Panics(t, func() {
		Assert(false, "boom %d", 42)
	})
	require.NotPanics(t, func() {
		Assert(true, "never seen")
	})
}

func TestAssertNoErrPanicsOnNonNilError(t *testing.T) {
	require.Panics(t, func() {
		AssertNoErr(assertTestErr{})
	})
	require.NotPanics(t, func() {
		AssertNoErr(nil)
	})
}

type assertTestErr struct{}

func (assertTestErr) Error() string { return "boom" }
