// Package store implements the Voting Server's two local tables:
// each voter's schedule of scheduled ballot slots, and the single
// most-recent voter-submitted ballot awaiting emission. Both are built on
// store/kv, and both are accessed only while holding Store.mu: one
// process-wide mutex serialises every read-modify-write.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/lokivote/cbr-voting/store/kv"
	"github.com/lokivote/cbr-voting/types"
)

var (
	scheduleKeyPrefix = []byte("vt/")
	pendingKeyPrefix  = []byte("pv/")
)

// ScheduleEntry is one row of a voter's VoterTimestamps table: a slot at
// which the per-voter scheduler task must emit a ballot.
type ScheduleEntry struct {
	Timestamp time.Time
	Processed bool
	ImagePath string
}

// PendingVote is a voter-submitted ballot not yet emitted by the
// scheduler, the VS local store's PendingVotes row.
type PendingVote struct {
	VoterID    string
	ElectionID string
	Ballot     types.SubmittedBallot
}

// ErrNotFound is returned when no schedule or pending vote exists for a
// key.
var ErrNotFound = fmt.Errorf("vs/store: not found")

// Store wraps a kv.Store behind one process-wide mutex.
type Store struct {
	mu sync.Mutex
	kv *kv.Store
}

// New wraps an already-open kv.Store.
func New(store *kv.Store) *Store {
	return &Store{kv: store}
}

func scheduleKey(voterID, electionID string) []byte {
	return []byte(electionID + "/" + voterID)
}

// SetSchedule bulk-inserts (overwriting any prior schedule) the full
// VoterTimestamps row set for one voter.
func (s *Store) SetSchedule(voterID, electionID string, entries []ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(scheduleKeyPrefix, scheduleKey(voterID, electionID), entries)
}

// Schedule returns a voter's full schedule.
func (s *Store) Schedule(voterID, electionID string) ([]ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule(voterID, electionID)
}

func (s *Store) schedule(voterID, electionID string) ([]ScheduleEntry, error) {
	var entries []ScheduleEntry
	if err := s.kv.Get(scheduleKeyPrefix, scheduleKey(voterID, electionID), &entries); err != nil {
		if err == kv.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vs/store: %w", err)
	}
	return entries, nil
}

// NextUnprocessed returns the earliest unprocessed schedule entry for a
// voter and its index, or ErrNotFound if every entry is processed (or no
// schedule exists).
func (s *Store) NextUnprocessed(voterID, electionID string) (entry ScheduleEntry, index int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.schedule(voterID, electionID)
	if err != nil {
		return ScheduleEntry{}, 0, err
	}
	best := -1
	for i, e := range entries {
		if e.Processed {
			continue
		}
		if best == -1 || e.Timestamp.Before(entries[best].Timestamp) {
			best = i
		}
	}
	if best == -1 {
		return ScheduleEntry{}, 0, ErrNotFound
	}
	return entries[best], best, nil
}

// MarkProcessed flags the schedule entry at index as processed.
func (s *Store) MarkProcessed(voterID, electionID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.schedule(voterID, electionID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("vs/store: schedule index %d out of range", index)
	}
	entries[index].Processed = true
	return s.kv.Set(scheduleKeyPrefix, scheduleKey(voterID, electionID), entries)
}

func pendingKey(voterID, electionID string) []byte {
	return []byte(electionID + "/" + voterID)
}

// PutPending serialises a voter-submitted ballot into PendingVotes,
// overwriting any prior unclaimed entry: at most one row exists per
// voter, so a later submission before the scheduler claims the earlier
// one simply supersedes it.
func (s *Store) PutPending(voterID, electionID string, b types.SubmittedBallot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(pendingKeyPrefix, pendingKey(voterID, electionID), PendingVote{
		VoterID:    voterID,
		ElectionID: electionID,
		Ballot:     b,
	})
}

// TakePending atomically reads and deletes any PendingVotes row for the
// pair, reporting ok=false if none existed.
func (s *Store) TakePending(voterID, electionID string) (b types.SubmittedBallot, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pv PendingVote
	key := pendingKey(voterID, electionID)
	if err := s.kv.Get(pendingKeyPrefix, key, &pv); err != nil {
		if err == kv.ErrNotFound {
			return types.SubmittedBallot{}, false, nil
		}
		return types.SubmittedBallot{}, false, fmt.Errorf("vs/store: %w", err)
	}
	if err := s.kv.Delete(pendingKeyPrefix, key); err != nil {
		return types.SubmittedBallot{}, false, fmt.Errorf("vs/store: failed to clear pending vote: %w", err)
	}
	return pv.Ballot, true, nil
}
