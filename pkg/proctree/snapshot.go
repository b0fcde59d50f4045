// Package proctree resolves process family trees from flat process
// snapshots.
//
// Snapshots come from operating system process tables, which are racy: a
// parent may exit between two reads, a recycled pid may make a record look
// like its own parent, and two records can even name each other as parent.
// None of these are errors here. Records with no discoverable parent become
// roots and traversals carry a visited set, so every query terminates with a
// finite, deterministic answer.
package proctree

import "time"

// ProcessRecord is the (pid, parent pid) pair a tree is built from
type ProcessRecord struct {
	PID       int `json:"pid"`
	ParentPID int `json:"ppid"`
}

// Snapshot is an immutable, ordered capture of a process table
type Snapshot struct {
	records    []ProcessRecord
	index      map[int]int
	capturedAt time.Time
}

// NewSnapshot copies records into a new Snapshot. Record pids are expected
// to be unique; if a pid repeats, lookups see its first occurrence.
func NewSnapshot(records []ProcessRecord, capturedAt time.Time) *Snapshot {
	s := &Snapshot{
		records:    make([]ProcessRecord, len(records)),
		index:      make(map[int]int, len(records)),
		capturedAt: capturedAt,
	}
	copy(s.records, records)

	for i, r := range s.records {
		if _, seen := s.index[r.PID]; !seen {
			s.index[r.PID] = i
		}
	}
	return s
}

// CapturedAt returns the time the snapshot was taken
func (s *Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Len returns the number of records
func (s *Snapshot) Len() int {
	return len(s.records)
}

// At returns the i-th record in snapshot order
func (s *Snapshot) At(i int) ProcessRecord {
	return s.records[i]
}

// Records returns a copy of all records in snapshot order
func (s *Snapshot) Records() []ProcessRecord {
	out := make([]ProcessRecord, len(s.records))
	copy(out, s.records)
	return out
}

// PIDs returns every pid in snapshot order
func (s *Snapshot) PIDs() []int {
	out := make([]int, len(s.records))
	for i, r := range s.records {
		out[i] = r.PID
	}
	return out
}

// Record returns the record for pid
func (s *Snapshot) Record(pid int) (ProcessRecord, bool) {
	i, ok := s.index[pid]
	if !ok {
		return ProcessRecord{}, false
	}
	return s.records[i], true
}

// Contains reports whether pid is part of the snapshot
func (s *Snapshot) Contains(pid int) bool {
	_, ok := s.index[pid]
	return ok
}
