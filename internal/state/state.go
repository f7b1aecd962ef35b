// Package state persists the daily schedule so a restart neither loses
// nor duplicates commits. The entire state is one JSON blob: the
// calendar day it applies to and the timestamps still pending.
package state

import (
	"encoding/json"
	"time"

	"github.com/spf13/afero"

	"github.com/commitfarm/farmd/pkg/logger"
)

// State is the persisted schedule record. It is valid for exactly one
// calendar day; on rollover it is replaced whole, never merged.
type State struct {
	// Date is the calendar day this schedule belongs to (schedule.DayFormat).
	Date string `json:"date"`

	// Pending holds the timestamps that have not fired yet, ascending.
	Pending []time.Time `json:"pending_times"`
}

// Empty reports whether the state carries no schedule at all.
func (s State) Empty() bool {
	return s.Date == ""
}

// PurgePast returns a copy of s keeping only entries strictly after now.
// Used on resume so slots that elapsed while the daemon was down are
// dropped rather than fired late.
func (s State) PurgePast(now time.Time) State {
	pending := make([]time.Time, 0, len(s.Pending))
	for _, t := range s.Pending {
		if t.After(now) {
			pending = append(pending, t)
		}
	}
	return State{Date: s.Date, Pending: pending}
}

// Store reads and writes the state blob on the given filesystem. Both
// directions fail soft: the scheduling loop must keep running on a
// best-effort in-memory state even when the disk misbehaves.
type Store struct {
	fs   afero.Fs
	path string
	log  logger.Logger
}

// NewStore creates a store persisting to path on fs.
func NewStore(fs afero.Fs, path string, log logger.Logger) *Store {
	return &Store{fs: fs, path: path, log: log}
}

// Load returns the persisted state, or an empty state when the file is
// missing, unreadable or corrupt. Errors are never fatal here: a broken
// blob just means a fresh schedule.
func (s *Store) Load() State {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return State{}
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warning("state file %s is corrupt, starting fresh: %v", s.path, err)
		return State{}
	}
	return st
}

// Save persists st. The blob is written to a temp file and renamed into
// place so a crash mid-write cannot leave a truncated record. Write
// failures are logged as warnings; the in-memory state stays
// authoritative for the rest of the process lifetime.
func (s *Store) Save(st State) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		s.log.Warning("cannot encode state: %v", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		s.log.Warning("cannot write state file %s: %v", tmp, err)
		return
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		s.log.Warning("cannot replace state file %s: %v", s.path, err)
	}
}
