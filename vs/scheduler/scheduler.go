package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/hash"
	"github.com/lokivote/cbr-voting/log"
	"github.com/lokivote/cbr-voting/types"
	"github.com/lokivote/cbr-voting/vs/ballotctx"
	"github.com/lokivote/cbr-voting/vs/clock"
	"github.com/lokivote/cbr-voting/vs/obfuscate"
	"github.com/lokivote/cbr-voting/vs/store"
	"github.com/lokivote/cbr-voting/vs/validate"
)

// Scheduler owns one voter task per active voter, each sleeping until its
// own schedule's next slot and then emitting a genuine or obfuscated
// ballot. It is the long-running half of the Voting Server; the
// short-lived half lives in vs/api.
type Scheduler struct {
	store *store.Store
	bb    *client.Client
	group ecc.Point
	skVS  *big.Int
	clock clock.Clock
	cfg   Config
}

// New builds a Scheduler over an already-open local store, a client bound
// to the Bulletin Board, the election's group, VS's own secret key and a
// clock to read "now" from.
func New(st *store.Store, bb *client.Client, group ecc.Point, skVS *big.Int, clk clock.Clock, cfg Config) *Scheduler {
	return &Scheduler{store: st, bb: bb, group: group, skVS: skVS, clock: clk, cfg: cfg}
}

// PrepareElection runs the election setup phase: given the B₀ batch RA
// POSTed to /ballot0list, it fetches the election's timing from BB,
// computes and persists every voter's schedule, stamps each voter's B₀
// with its first scheduled slot before publishing the batch to BB, and
// spawns one long-lived task per voter.
func (s *Scheduler) PrepareElection(ctx context.Context, batch []types.Ballot) error {
	if len(batch) == 0 {
		return fmt.Errorf("scheduler: empty ballot0 batch")
	}
	electionID := batch[0].ElectionID

	var election types.Election
	if err := s.bb.Get(ctx, "/election", url.Values{"election_id": {electionID}}, &election); err != nil {
		return fmt.Errorf("scheduler: failed to fetch election %s: %w", electionID, err)
	}

	type built struct {
		voterID string
		entries []store.ScheduleEntry
		err     error
	}
	results := make(chan built, len(batch))
	for _, b := range batch {
		voterID := b.VoterID
		go func() {
			entries, err := BuildSchedule(election.Start, election.End, s.cfg)
			results <- built{voterID: voterID, entries: entries, err: err}
		}()
	}
	schedules := make(map[string][]store.ScheduleEntry, len(batch))
	for range batch {
		r := <-results
		if r.err != nil {
			return fmt.Errorf("scheduler: failed to build schedule for voter %s: %w", r.voterID, r.err)
		}
		schedules[r.voterID] = r.entries
	}

	stamped := make([]types.Ballot, 0, len(batch))
	for _, b := range batch {
		if err := s.store.SetSchedule(b.VoterID, electionID, schedules[b.VoterID]); err != nil {
			return fmt.Errorf("scheduler: failed to persist schedule for voter %s: %w", b.VoterID, err)
		}
		entry, idx, err := s.store.NextUnprocessed(b.VoterID, electionID)
		if err != nil {
			return fmt.Errorf("scheduler: failed to fetch initial slot for voter %s: %w", b.VoterID, err)
		}
		if err := s.store.MarkProcessed(b.VoterID, electionID, idx); err != nil {
			return fmt.Errorf("scheduler: failed to mark initial slot processed for voter %s: %w", b.VoterID, err)
		}
		b.Timestamp = entry.Timestamp
		b.ImagePath = entry.ImagePath
		stamped = append(stamped, b)
	}

	if err := s.bb.Post(ctx, "/receive-ballot0", stamped, nil); err != nil {
		return fmt.Errorf("scheduler: failed to publish ballot0 batch: %w", err)
	}

	for _, b := range batch {
		go s.runVoterTask(context.Background(), election, b.VoterID)
	}
	return nil
}

// runVoterTask is the long-lived per-voter loop: sleep until the
// election opens, then on every scheduled slot inside [start, end] call
// castVote, and finally emit one closing obfuscation from the slot placed
// just after end. A panic in any one tick is logged and does not take
// down the voter's remaining schedule or any other voter's task.
func (s *Scheduler) runVoterTask(ctx context.Context, election types.Election, voterID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw(fmt.Errorf("%v", r), fmt.Sprintf("scheduler: voter task for %s panicked", voterID))
		}
	}()

	if !s.sleepUntil(ctx, election.Start) {
		return
	}
	for {
		now := s.clock.Now()
		if now.After(election.End) {
			break
		}
		entry, idx, err := s.store.NextUnprocessed(voterID, election.ID)
		if err != nil {
			if err == store.ErrNotFound {
				break
			}
			log.Errorw(err, fmt.Sprintf("scheduler: failed to read next slot for %s", voterID))
			if !s.sleepUntil(ctx, s.clock.Now().Add(time.Second)) {
				return
			}
			continue
		}
		if entry.Timestamp.After(election.End) {
			s.sleepUntil(ctx, election.End.Add(time.Second))
			break
		}
		if !s.sleepUntil(ctx, entry.Timestamp) {
			return
		}
		if err := s.store.MarkProcessed(voterID, election.ID, idx); err != nil {
			log.Errorw(err, fmt.Sprintf("scheduler: failed to mark slot processed for %s", voterID))
		}
		s.castVote(ctx, election, voterID, entry)
	}

	entry, idx, err := s.store.NextUnprocessed(voterID, election.ID)
	if err != nil {
		if err != store.ErrNotFound {
			log.Errorw(err, fmt.Sprintf("scheduler: failed to read closing slot for %s", voterID))
		}
		return
	}
	if err := s.store.MarkProcessed(voterID, election.ID, idx); err != nil {
		log.Errorw(err, fmt.Sprintf("scheduler: failed to mark closing slot processed for %s", voterID))
	}
	s.castVote(ctx, election, voterID, entry)
}

// castVote performs one tick's emission: take any pending voter-submitted
// ballot and validate it, falling back to an obfuscation only when none
// was submitted. A submitted ballot that fails validation is discarded
// with nothing emitted for this tick; substituting an obfuscation here
// would let an observer timing the schedule distinguish a rejected
// submission from a slow tick.
func (s *Scheduler) castVote(ctx context.Context, election types.Election, voterID string, entry store.ScheduleEntry) {
	bctx, err := ballotctx.Fetch(ctx, s.bb, s.group, voterID, election.ID)
	if err != nil {
		log.Errorw(err, fmt.Sprintf("scheduler: failed to fetch ballot context for %s", voterID))
		return
	}

	pending, ok, err := s.store.TakePending(voterID, election.ID)
	if err != nil {
		log.Errorw(err, fmt.Sprintf("scheduler: failed to read pending vote for %s", voterID))
		return
	}

	var ballot *types.Ballot
	if ok {
		if err := validate.Ballot(ctx, s.bb, bctx, election.ID, pending); err != nil {
			log.Warnw("submitted ballot rejected, emitting nothing this tick", "voterId", voterID, "electionId", election.ID, "error", err.Error())
			return
		}
		h, err := hash.BallotHash(pending.VoterID, pending.UPK, pending.CTV, pending.CTLV, pending.CTLID, pending.Proof)
		if err != nil {
			log.Errorw(err, fmt.Sprintf("scheduler: failed to hash validated ballot for %s", voterID))
			return
		}
		ballot = &types.Ballot{
			VoterID:    pending.VoterID,
			ElectionID: pending.ElectionID,
			UPK:        pending.UPK,
			CTV:        pending.CTV,
			CTLV:       pending.CTLV,
			CTLID:      pending.CTLID,
			Proof:      pending.Proof,
			Hash:       h,
		}
	} else {
		ballot, err = obfuscate.Ballot(bctx, s.skVS, election.ID, voterID, bctx.UPKBytes)
		if err != nil {
			log.Errorw(err, fmt.Sprintf("scheduler: failed to build obfuscation ballot for %s", voterID))
			return
		}
	}

	ballot.Timestamp = entry.Timestamp
	ballot.ImagePath = entry.ImagePath
	if err := s.bb.Post(ctx, "/receive-ballot", ballot, nil); err != nil {
		log.Errorw(err, fmt.Sprintf("scheduler: failed to publish ballot for %s", voterID))
	}
}

// sleepUntil blocks until the clock reaches target or ctx is cancelled,
// re-checking in short increments rather than computing one long sleep so
// it keeps tracking the cached clock rather than raw wall time. It
// reports false if ctx was cancelled first.
func (s *Scheduler) sleepUntil(ctx context.Context, target time.Time) bool {
	for {
		now := s.clock.Now()
		if !now.Before(target) {
			return true
		}
		d := target.Sub(now)
		if d > time.Second {
			d = time.Second
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
