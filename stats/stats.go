// Package stats records load latency and rename-lock hold time the way
// the teacher's stats/inmem package records operation latency: a
// VividCortex/gohistogram streaming histogram per metric, read out as
// percentiles. Kept deliberately small, per spec.md's Non-goals placing
// full telemetry out of scope — just enough to give gohistogram a real
// caller and to back ".eden/api"'s status command.
package stats

import (
	"sync"
	"time"

	hist "github.com/VividCortex/gohistogram"
)

// histogramBins matches the teacher's own NewHistogram(100) call.
const histogramBins = 100

type metric struct {
	mu    sync.Mutex
	h     hist.Histogram
	count int64
}

func newMetric() *metric {
	return &metric{h: hist.NewHistogram(histogramBins)}
}

func (m *metric) record(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.h.Add(float64(d.Nanoseconds()))
	m.count++
}

// Snapshot is a read-only percentile summary of one metric's samples so
// far, in microseconds.
type Snapshot struct {
	Count int64   `json:"count"`
	P50   float64 `json:"p50_us"`
	P90   float64 `json:"p90_us"`
	P99   float64 `json:"p99_us"`
}

func (m *metric) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return Snapshot{}
	}
	return Snapshot{
		Count: m.count,
		P50:   m.h.Quantile(0.50) / 1000,
		P90:   m.h.Quantile(0.90) / 1000,
		P99:   m.h.Quantile(0.99) / 1000,
	}
}

// Stats is the mount-wide metrics collector: one histogram for inode
// load latency (time spent in TreeInode.loadEntry / GetOrLoadChild's
// blocking path) and one for rename-lock hold time.
type Stats struct {
	load       *metric
	renameLock *metric
}

func New() *Stats {
	return &Stats{load: newMetric(), renameLock: newMetric()}
}

func (s *Stats) RecordLoad(d time.Duration) {
	s.load.record(d)
}

func (s *Stats) RecordRenameLockHold(d time.Duration) {
	s.renameLock.record(d)
}

// Report is the snapshot shape returned by ".eden/api"'s status command.
type Report struct {
	Load       Snapshot `json:"load"`
	RenameLock Snapshot `json:"rename_lock"`
}

func (s *Stats) Report() Report {
	return Report{Load: s.load.snapshot(), RenameLock: s.renameLock.snapshot()}
}

// LoadTimer and RenameLockTimer return a func that records the elapsed
// time against the corresponding metric when called, the idiom every
// call site uses: `defer s.LoadTimer()()`.
func (s *Stats) LoadTimer() func() {
	start := time.Now()
	return func() { s.load.record(time.Since(start)) }
}

func (s *Stats) RenameLockTimer() func() {
	start := time.Now()
	return func() { s.renameLock.record(time.Since(start)) }
}
