package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReportEmptyBeforeAnyRecord(t *testing.T) {
	s := New()
	r := s.Report()
	assert.Zero(t, r.Load.Count)
	assert.Zero(t, r.RenameLock.Count)
}

func TestRecordLoadAccumulates(t *testing.T) {
	s := New()
	s.RecordLoad(10 * time.Microsecond)
	s.RecordLoad(20 * time.Microsecond)
	s.RecordLoad(30 * time.Microsecond)

	r := s.Report()
	assert.EqualValues(t, 3, r.Load.Count)
	assert.Greater(t, r.Load.P50, 0.0)
	assert.Zero(t, r.RenameLock.Count, "rename lock metric must stay independent")
}

func TestLoadTimerRecordsElapsed(t *testing.T) {
	s := New()
	stop := s.LoadTimer()
	time.Sleep(time.Millisecond)
	stop()

	r := s.Report()
	assert.EqualValues(t, 1, r.Load.Count)
	assert.Greater(t, r.Load.P50, 0.0)
}

func TestRenameLockTimerRecordsElapsed(t *testing.T) {
	s := New()
	stop := s.RenameLockTimer()
	stop()

	r := s.Report()
	assert.EqualValues(t, 1, r.RenameLock.Count)
}
