// Package journal implements eden.Journal, the append-only mutation log
// named in spec §6. MemJournal is a fixed-capacity ring buffer grounded
// on qlog's own ring buffer; FileJournal appends cbor-framed records to
// a file, grounded on the teacher's on-disk log conventions (one frame
// per record, no in-place rewrites). Coalesce implements the
// create-then-delete cancellation rule the teacher's accessList applies
// to its own per-path access records.
package journal

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/Happy-Ferret/eden"
)

// MemJournal is a fixed-capacity, in-process ring buffer of Deltas. Used
// by tests and by daemons that only need the journal to drive
// in-process consumers (e.g. a live "fsnotify"-style watch) rather than
// a durable record across restarts.
type MemJournal struct {
	mu       sync.Mutex
	entries  []eden.Delta
	next     int
	filled   bool
	Sink     func(eden.Delta)
}

func NewMemJournal(capacity int) *MemJournal {
	return &MemJournal{entries: make([]eden.Delta, capacity)}
}

func (j *MemJournal) AddDelta(ctx context.Context, d eden.Delta) error {
	j.mu.Lock()
	if len(j.entries) > 0 {
		j.entries[j.next] = d
		j.next++
		if j.next == len(j.entries) {
			j.next = 0
			j.filled = true
		}
	}
	sink := j.Sink
	j.mu.Unlock()
	if sink != nil {
		sink(d)
	}
	return nil
}

// Snapshot returns the currently retained deltas, oldest first.
func (j *MemJournal) Snapshot() []eden.Delta {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.filled {
		out := make([]eden.Delta, j.next)
		copy(out, j.entries[:j.next])
		return out
	}
	out := make([]eden.Delta, len(j.entries))
	copy(out, j.entries[j.next:])
	copy(out[len(j.entries)-j.next:], j.entries[:j.next])
	return out
}

// FileJournal appends cbor-framed Deltas to a file: each record is a
// uint32 length prefix followed by its cbor encoding, so a reader can
// replay the log without holding the whole thing in memory.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func OpenFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, eden.Wrap(eden.IO, err, "opening journal file %s", path)
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Close() error { return j.f.Close() }

func (j *FileJournal) AddDelta(ctx context.Context, d eden.Delta) error {
	data, err := cbor.Marshal(d)
	if err != nil {
		return eden.Wrap(eden.IO, err, "encoding journal delta")
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.f.Write(hdr[:]); err != nil {
		return eden.Wrap(eden.IO, err, "writing journal frame header")
	}
	if _, err := j.f.Write(data); err != nil {
		return eden.Wrap(eden.IO, err, "writing journal frame")
	}
	return nil
}

// ReplayFileJournal reads every Delta recorded in the file at path, in
// append order.
func ReplayFileJournal(path string) ([]eden.Delta, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eden.Wrap(eden.IO, err, "opening journal file %s", path)
	}
	defer f.Close()

	var out []eden.Delta
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, eden.Wrap(eden.IO, err, "reading journal frame header")
		}
		n := binary.BigEndian.Uint32(hdr[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, eden.Wrap(eden.IO, err, "reading journal frame")
		}
		var d eden.Delta
		if err := cbor.Unmarshal(buf, &d); err != nil {
			return nil, eden.Wrap(eden.IO, err, "decoding journal frame")
		}
		out = append(out, d)
	}
	return out, nil
}

// Coalesce collapses a sequence of Deltas the way the teacher's
// accessList collapses a create immediately followed by a delete: a
// DeltaCreated for a path that is later DeltaRemoved (with nothing else
// of interest recorded for it in between) is dropped entirely, under the
// assumption both records describe a temporary file nobody needs to see
// in a change summary. A DeltaRenamed becomes the last record of both
// Path and NewPath and marks NewPath as created; it does not mark Path
// as removed.
func Coalesce(deltas []eden.Delta) []eden.Delta {
	type state struct {
		created bool
		removed bool
		last    eden.Delta
	}
	order := make([]string, 0, len(deltas))
	byPath := make(map[string]*state)

	touch := func(path string) *state {
		s, ok := byPath[path]
		if !ok {
			s = &state{}
			byPath[path] = s
			order = append(order, path)
		}
		return s
	}

	for _, d := range deltas {
		switch d.Kind {
		case eden.DeltaCreated:
			s := touch(d.Path)
			s.created = true
			s.removed = false
			s.last = d
		case eden.DeltaRemoved:
			s := touch(d.Path)
			if s.created && !s.removed {
				s.created = false
				s.last = eden.Delta{}
				continue
			}
			s.removed = true
			s.last = d
		case eden.DeltaRenamed:
			touch(d.Path).last = d
			dst := touch(d.NewPath)
			dst.created = true
			dst.last = d
		case eden.DeltaAttrChanged:
			s := touch(d.Path)
			if !s.created && !s.removed {
				s.last = d
			}
			// an attr change on a path already created or removed in
			// this batch adds no information beyond that create/remove.
		}
	}

	out := make([]eden.Delta, 0, len(order))
	for _, path := range order {
		s := byPath[path]
		if s.last.Kind == 0 && s.last.Path == "" {
			continue
		}
		out = append(out, s.last)
	}
	return out
}
