package scheduler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/ecc/bn254"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/store/kv"
	"github.com/lokivote/cbr-voting/types"
	"github.com/lokivote/cbr-voting/vs/store"
)

// fixedClock satisfies clock.Clock with a constant instant, so castVote
// runs without a background clock task.
type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

// boardState is an in-memory Bulletin Board serving exactly the reads one
// castVote tick performs, and recording every ballot POSTed to it.
type boardState struct {
	upk    []byte
	pkTS   ecc.Point
	pkVS   ecc.Point
	last   types.Ballot
	prev   types.Ballot
	voters []types.Voter
	hashes []string

	mu     sync.Mutex
	posted []types.Ballot
}

func (b *boardState) postedBallots() []types.Ballot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Ballot(nil), b.posted...)
}

func (b *boardState) serve(t *testing.T) *client.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/public-keys-tsvs", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(types.PublicKeysTSVS{
			PublicKeyTS: b.pkTS.Marshal(),
			PublicKeyVS: b.pkVS.Marshal(),
		})
	})
	mux.HandleFunc("/voter-public-key", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(b.upk)
	})
	mux.HandleFunc("/last_previous_last_ballot", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(types.LastPreviousLast{Last: &b.last, PreviousLast: &b.prev})
	})
	mux.HandleFunc("/voters", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(b.voters)
	})
	mux.HandleFunc("/fetch-ballot-hashes", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(b.hashes)
	})
	mux.HandleFunc("/receive-ballot", func(w http.ResponseWriter, r *http.Request) {
		var ballot types.Ballot
		if err := json.NewDecoder(r.Body).Decode(&ballot); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.posted = append(b.posted, ballot)
		b.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return client.New(srv.URL)
}

// newTickFixture builds a Scheduler, its local store and a stub board
// primed with a B0-shaped CBR head for voter v1.
func newTickFixture(t *testing.T) (*Scheduler, *store.Store, *boardState) {
	t.Helper()
	c := qt.New(t)
	group := bn254.New()

	pkTS, _, err := elgamal.GenerateKey(group)
	c.Assert(err, qt.IsNil)
	pkVS, skVS, err := elgamal.GenerateKey(group)
	c.Assert(err, qt.IsNil)
	upk, _, err := elgamal.GenerateKey(group)
	c.Assert(err, qt.IsNil)

	makeBallot := func() types.Ballot {
		ctv := make([]*elgamal.Ciphertext, 2)
		for i := range ctv {
			ctv[i], err = elgamal.NewCiphertext(group).Encrypt(big.NewInt(0), pkTS, nil)
			c.Assert(err, qt.IsNil)
		}
		ctlv, err := elgamal.NewCiphertext(group).Encrypt(big.NewInt(0), pkVS, nil)
		c.Assert(err, qt.IsNil)
		ctlid, err := elgamal.NewCiphertext(group).Encrypt(big.NewInt(0), pkVS, nil)
		c.Assert(err, qt.IsNil)
		return types.Ballot{
			VoterID:    "v1",
			ElectionID: "e1",
			UPK:        upk.Marshal(),
			CTV:        ctv,
			CTLV:       ctlv,
			CTLID:      ctlid,
		}
	}

	board := &boardState{
		upk:    upk.Marshal(),
		pkTS:   pkTS,
		pkVS:   pkVS,
		last:   makeBallot(),
		prev:   makeBallot(),
		voters: []types.Voter{{ID: "v1", Name: "voter one"}},
	}
	bb := board.serve(t)

	database, err := kv.Open("pebble", t.TempDir())
	c.Assert(err, qt.IsNil)
	st := store.New(kv.New(database))
	t.Cleanup(func() { _ = database.Close() })

	clk := fixedClock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
	sched := New(st, bb, group, skVS, clk, DefaultConfig())
	return sched, st, board
}

func testElection(clk time.Time) types.Election {
	return types.Election{
		ID:    "e1",
		Name:  "tick test election",
		Start: clk.Add(-time.Minute),
		End:   clk.Add(time.Minute),
	}
}

func TestCastVoteEmitsObfuscationWithoutPending(t *testing.T) {
	c := qt.New(t)
	sched, _, board := newTickFixture(t)
	election := testElection(sched.clock.Now())

	entry := store.ScheduleEntry{
		Timestamp: sched.clock.Now(),
		ImagePath: "falcon-test.png",
	}
	sched.castVote(context.Background(), election, "v1", entry)

	posted := board.postedBallots()
	c.Assert(posted, qt.HasLen, 1)
	emitted := posted[0]
	c.Assert(emitted.VoterID, qt.Equals, "v1")
	c.Assert(emitted.ImagePath, qt.Equals, "falcon-test.png")
	c.Assert(emitted.Timestamp.Equal(entry.Timestamp), qt.IsTrue)
	c.Assert(emitted.IsB0(), qt.IsFalse)
}

func TestCastVoteRejectedSubmissionEmitsNothing(t *testing.T) {
	c := qt.New(t)
	sched, st, board := newTickFixture(t)
	election := testElection(sched.clock.Now())

	// A pending submission whose proof does not hold up: the tick must
	// consume it and emit nothing, with no obfuscation substituted.
	bad := types.SubmittedBallot{
		VoterID:    "v1",
		ElectionID: "e1",
		UPK:        board.upk,
		CTV:        board.last.CTV,
		CTLV:       board.last.CTLV,
		CTLID:      board.last.CTLID,
		Proof:      []byte("not a serialised proof"),
	}
	c.Assert(st.PutPending("v1", "e1", bad), qt.IsNil)

	entry := store.ScheduleEntry{Timestamp: sched.clock.Now(), ImagePath: "raven-test.png"}
	sched.castVote(context.Background(), election, "v1", entry)

	c.Assert(board.postedBallots(), qt.HasLen, 0)

	// The bad submission was consumed, not left for the next tick.
	_, ok, err := st.TakePending("v1", "e1")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	// The next tick finds the board unchanged and falls back to an
	// obfuscation as usual.
	next := store.ScheduleEntry{Timestamp: sched.clock.Now(), ImagePath: "tulip-test.png"}
	sched.castVote(context.Background(), election, "v1", next)
	posted := board.postedBallots()
	c.Assert(posted, qt.HasLen, 1)
	c.Assert(posted[0].ImagePath, qt.Equals, "tulip-test.png")
}

func TestCastVoteRejectsUnregisteredVoterSubmission(t *testing.T) {
	c := qt.New(t)
	sched, st, board := newTickFixture(t)
	board.voters = []types.Voter{{ID: "someone-else"}}
	election := testElection(sched.clock.Now())

	bad := types.SubmittedBallot{
		VoterID:    "v1",
		ElectionID: "e1",
		UPK:        board.upk,
		CTV:        board.last.CTV,
		CTLV:       board.last.CTLV,
		CTLID:      board.last.CTLID,
		Proof:      []byte("irrelevant"),
	}
	c.Assert(st.PutPending("v1", "e1", bad), qt.IsNil)

	entry := store.ScheduleEntry{Timestamp: sched.clock.Now(), ImagePath: "koala-test.png"}
	sched.castVote(context.Background(), election, "v1", entry)
	c.Assert(board.postedBallots(), qt.HasLen, 0)
}
