package store

import (
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/lokivote/cbr-voting/crypto/ecc/bn254"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/crypto/hash"
	"github.com/lokivote/cbr-voting/types"
)

// openTestStore connects to the Postgres instance named by
// CBR_TEST_DB_DSN, skipping the test when none is configured (the same
// external-infrastructure gating the end-to-end tests use).
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CBR_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("CBR_TEST_DB_DSN not set; skipping bulletin board store tests")
	}
	s, err := Open(dsn)
	qt.New(t).Assert(err, qt.IsNil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var testSeq int

// uniqueID returns ids that do not collide across test runs against a
// shared database.
func uniqueID(prefix string) string {
	testSeq++
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), testSeq)
}

func testElection(voters, candidates int) types.Election {
	e := types.Election{
		ID:    uniqueID("election"),
		Name:  "test election",
		Start: time.Now().UTC().Truncate(time.Second),
		End:   time.Now().UTC().Truncate(time.Second).Add(time.Hour),
	}
	for i := 0; i < candidates; i++ {
		e.Candidates = append(e.Candidates, types.Candidate{ID: uniqueID("cand"), Name: fmt.Sprintf("candidate %d", i)})
	}
	for i := 0; i < voters; i++ {
		e.Voters = append(e.Voters, types.Voter{ID: uniqueID("voter"), Name: fmt.Sprintf("voter %d", i)})
	}
	return e
}

func testBallot(t *testing.T, voterID, electionID string, ts time.Time, candidates int) types.Ballot {
	t.Helper()
	c := qt.New(t)
	group := bn254.New()
	pk, _, err := elgamal.GenerateKey(group)
	c.Assert(err, qt.IsNil)

	ctv := make([]*elgamal.Ciphertext, candidates)
	for i := range ctv {
		ctv[i], err = elgamal.NewCiphertext(group).Encrypt(big.NewInt(0), pk, nil)
		c.Assert(err, qt.IsNil)
	}
	ctlv, err := elgamal.NewCiphertext(group).Encrypt(big.NewInt(0), pk, nil)
	c.Assert(err, qt.IsNil)
	ctlid, err := elgamal.NewCiphertext(group).Encrypt(big.NewInt(0), pk, nil)
	c.Assert(err, qt.IsNil)

	proof := []byte(uniqueID("proof"))
	h, err := hash.BallotHash(voterID, pk.Marshal(), ctv, ctlv, ctlid, proof)
	c.Assert(err, qt.IsNil)

	return types.Ballot{
		VoterID:    voterID,
		ElectionID: electionID,
		UPK:        pk.Marshal(),
		CTV:        ctv,
		CTLV:       ctlv,
		CTLID:      ctlid,
		Proof:      proof,
		Timestamp:  ts,
		Hash:       h,
		ImagePath:  uniqueID("image") + ".png",
	}
}

func TestElectionRoundTrip(t *testing.T) {
	c := qt.New(t)
	s := openTestStore(t)

	e := testElection(2, 2)
	c.Assert(s.InsertElection(e), qt.IsNil)
	// Idempotent re-insert.
	c.Assert(s.InsertElection(e), qt.IsNil)

	got, err := s.Election(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Name, qt.Equals, e.Name)
	c.Assert(got.Candidates, qt.HasLen, 2)
	c.Assert(got.Voters, qt.HasLen, 2)
	// Candidate order must follow insertion order, not id order.
	c.Assert(got.Candidates[0].ID, qt.Equals, e.Candidates[0].ID)
	c.Assert(got.Candidates[1].ID, qt.Equals, e.Candidates[1].ID)

	_, err = s.Election(uniqueID("absent"))
	c.Assert(err, qt.Equals, ErrNotFound)
}

func TestVoterKeys(t *testing.T) {
	c := qt.New(t)
	s := openTestStore(t)

	e := testElection(1, 1)
	c.Assert(s.InsertElection(e), qt.IsNil)

	voterID := e.Voters[0].ID
	_, err := s.VoterPublicKey(voterID, e.ID)
	c.Assert(err, qt.Equals, ErrNotFound)

	key := []byte{1, 2, 3, 4}
	c.Assert(s.InsertVoterKeys([]types.VoterKeyEntry{{VoterID: voterID, ElectionID: e.ID, PublicKey: key}}), qt.IsNil)

	got, err := s.VoterPublicKey(voterID, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, key)
}

func TestCBRQueries(t *testing.T) {
	c := qt.New(t)
	s := openTestStore(t)

	e := testElection(1, 2)
	c.Assert(s.InsertElection(e), qt.IsNil)
	voterID := e.Voters[0].ID
	base := time.Now().UTC().Truncate(time.Second)

	_, _, err := s.LastPreviousLastBallot(voterID, e.ID)
	c.Assert(err, qt.Equals, ErrNotFound)

	b0 := testBallot(t, voterID, e.ID, base, 2)
	c.Assert(s.InsertBallot(b0), qt.IsNil)

	// With only B0, last and previous-last coincide.
	last, prev, err := s.LastPreviousLastBallot(voterID, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(last.Hash, qt.Equals, b0.Hash)
	c.Assert(prev.Hash, qt.Equals, b0.Hash)

	b1 := testBallot(t, voterID, e.ID, base.Add(time.Minute), 2)
	b2 := testBallot(t, voterID, e.ID, base.Add(2*time.Minute), 2)
	c.Assert(s.InsertBallot(b1), qt.IsNil)
	c.Assert(s.InsertBallot(b2), qt.IsNil)

	last, prev, err = s.LastPreviousLastBallot(voterID, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(last.Hash, qt.Equals, b2.Hash)
	c.Assert(prev.Hash, qt.Equals, b1.Hash)

	// Preceding b2's timestamp: b1 then b0.
	last, prev, err = s.PrecedingBallots(voterID, e.ID, b2.Timestamp)
	c.Assert(err, qt.IsNil)
	c.Assert(last.Hash, qt.Equals, b1.Hash)
	c.Assert(prev.Hash, qt.Equals, b0.Hash)

	n, err := s.CBRLength(voterID, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 3)

	cbr, err := s.CBRForVoter(voterID, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(cbr, qt.HasLen, 3)
	c.Assert(cbr[0].Ballot.Hash, qt.Equals, b0.Hash)
	c.Assert(cbr[2].Ballot.Hash, qt.Equals, b2.Hash)

	got, err := s.BallotByImage(e.ID, voterID, b1.ImagePath)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Hash, qt.Equals, b1.Hash)
}

func TestBallotReplayIsAbsorbed(t *testing.T) {
	c := qt.New(t)
	s := openTestStore(t)

	e := testElection(1, 1)
	c.Assert(s.InsertElection(e), qt.IsNil)
	voterID := e.Voters[0].ID

	b := testBallot(t, voterID, e.ID, time.Now().UTC().Truncate(time.Second), 1)
	c.Assert(s.InsertBallot(b), qt.IsNil)

	exists, err := s.BallotHashExists(b.Hash)
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsTrue)

	// Replaying the identical ballot is a silent no-op, and the CBR does
	// not grow.
	c.Assert(s.InsertBallot(b), qt.IsNil)
	n, err := s.CBRLength(voterID, e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)
}

func TestFetchLastBallotCTVs(t *testing.T) {
	c := qt.New(t)
	s := openTestStore(t)

	e := testElection(2, 2)
	c.Assert(s.InsertElection(e), qt.IsNil)
	base := time.Now().UTC().Truncate(time.Second)

	v1, v2 := e.Voters[0].ID, e.Voters[1].ID
	b10 := testBallot(t, v1, e.ID, base, 2)
	b11 := testBallot(t, v1, e.ID, base.Add(time.Minute), 2)
	b20 := testBallot(t, v2, e.ID, base, 2)
	for _, b := range []types.Ballot{b10, b11, b20} {
		c.Assert(s.InsertBallot(b), qt.IsNil)
	}

	ctvs, err := s.FetchLastBallotCTVs(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(ctvs, qt.HasLen, 2)
	// v1's export is the ctv of their most recent ballot, not B0's.
	c.Assert(ctvs[v1][0].C1.Equal(b11.CTV[0].C1), qt.IsTrue)
	c.Assert(ctvs[v2][0].C1.Equal(b20.CTV[0].C1), qt.IsTrue)
}

func TestElectionResultLifecycle(t *testing.T) {
	c := qt.New(t)
	s := openTestStore(t)

	e := testElection(1, 2)
	c.Assert(s.InsertElection(e), qt.IsNil)

	_, err := s.ElectionResult(e.ID)
	c.Assert(err, qt.Equals, ErrNotFound)

	r := types.ElectionResult{
		ElectionID: e.ID,
		Results: []types.CandidateResult{
			{CandidateID: e.Candidates[0].ID, Votes: 1, Proof: []byte("p0")},
			{CandidateID: e.Candidates[1].ID, Votes: 0, Proof: []byte("p1")},
		},
	}
	c.Assert(s.InsertElectionResult(r), qt.IsNil)

	got, err := s.ElectionResult(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Results, qt.HasLen, 2)
	c.Assert(got.Results[0].CandidateID, qt.Equals, e.Candidates[0].ID)
	c.Assert(got.Results[0].Votes, qt.Equals, uint64(1))

	// A second result for the same election is an idempotent no-op: the
	// first published outcome wins.
	forged := r
	forged.Results[0].Votes = 99
	c.Assert(s.InsertElectionResult(forged), qt.IsNil)
	got, err = s.ElectionResult(e.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Results[0].Votes, qt.Equals, uint64(1))
}

func TestGlobalInfoAndKeys(t *testing.T) {
	c := qt.New(t)
	s := openTestStore(t)

	c.Assert(s.SetGroupParams(types.GroupParams{Curve: "bn254", Generator: []byte{1}, Order: []byte{2}}), qt.IsNil)
	// Repeated bootstrap is a no-op.
	c.Assert(s.SetGroupParams(types.GroupParams{Curve: "other", Generator: []byte{9}, Order: []byte{9}}), qt.IsNil)

	g, err := s.GlobalInfo()
	c.Assert(err, qt.IsNil)
	c.Assert(g.Curve, qt.Equals, "bn254")

	c.Assert(s.SetPublicKey("vs", []byte{3}), qt.IsNil)
	c.Assert(s.SetPublicKey("ts", []byte{4}), qt.IsNil)
	c.Assert(s.SetPublicKey("other", []byte{5}), qt.IsNotNil)

	ready, err := s.PublicKeysReady()
	c.Assert(err, qt.IsNil)
	c.Assert(ready, qt.IsTrue)
}
