// Package tests exercises a full election end-to-end: all four services
// running in-process against a real Postgres-backed Bulletin Board, one
// honest voter casting one ballot, and the published tally verified
// purely from Bulletin Board data. Gated on CBR_TEST_DB_DSN like the
// bb/store tests, since the Bulletin Board needs a reachable database.
package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	sharedapi "github.com/lokivote/cbr-voting/api"
	bbapi "github.com/lokivote/cbr-voting/bb/api"
	bbstore "github.com/lokivote/cbr-voting/bb/store"
	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/ecc/bn254"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/crypto/hash"
	"github.com/lokivote/cbr-voting/crypto/nizk"
	"github.com/lokivote/cbr-voting/crypto/svckey"
	"github.com/lokivote/cbr-voting/log"
	raapi "github.com/lokivote/cbr-voting/ra/api"
	"github.com/lokivote/cbr-voting/ra/keystore"
	raservice "github.com/lokivote/cbr-voting/ra/service"
	"github.com/lokivote/cbr-voting/store/kv"
	tsapi "github.com/lokivote/cbr-voting/ts/api"
	tsservice "github.com/lokivote/cbr-voting/ts/service"
	"github.com/lokivote/cbr-voting/types"
	"github.com/lokivote/cbr-voting/verify"
	vsapi "github.com/lokivote/cbr-voting/vs/api"
	"github.com/lokivote/cbr-voting/vs/clock"
	"github.com/lokivote/cbr-voting/vs/scheduler"
	vsstore "github.com/lokivote/cbr-voting/vs/store"
)

// listen binds an ephemeral localhost port and returns its base URL, so
// every service can know its peers' addresses before any of them starts
// serving (the four services reference each other cyclically through
// their notification fan-out).
func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	qt.New(t).Assert(err, qt.IsNil)
	t.Cleanup(func() { _ = l.Close() })
	return l, "http://" + l.Addr().String()
}

func serve(l net.Listener, handler http.Handler) {
	go func() { _ = (&http.Server{Handler: handler}).Serve(l) }()
}

type testEnv struct {
	group ecc.Point
	bb    *client.Client
	vs    *client.Client
	raSvc *raservice.Service
	dir   string
}

// startServices wires all four services together in-process, exactly as
// their cmd mains do, and returns handles for driving the election.
func startServices(t *testing.T) *testEnv {
	t.Helper()
	c := qt.New(t)
	dsn := os.Getenv("CBR_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("CBR_TEST_DB_DSN not set; skipping end-to-end test")
	}
	log.Init("info", "stdout", nil)

	group := bn254.New()
	dir := t.TempDir()

	lBB, urlBB := listen(t)
	lRA, urlRA := listen(t)
	lVS, urlVS := listen(t)
	lTS, urlTS := listen(t)

	// Bulletin Board.
	bbSt, err := bbstore.Open(dsn)
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() { _ = bbSt.Close() })
	bbAPI, err := bbapi.New(&bbapi.Config{
		Host:  "127.0.0.1",
		Port:  0,
		Store: bbSt,
		Peers: sharedapi.ServicePeers{VSURL: urlVS, TSURL: urlTS, RAURL: urlRA},
	})
	c.Assert(err, qt.IsNil)
	serve(lBB, bbAPI.Router())

	// Voting Server. The service keypair is created up front so the
	// scheduler and the /vs_resp key-publication handler share it.
	vsKeyPath := filepath.Join(dir, "vs-key.json")
	_, skVS, err := elgamal.GenerateKey(group)
	c.Assert(err, qt.IsNil)
	c.Assert(svckey.Save(vsKeyPath, skVS), qt.IsNil)

	vsDB, err := kv.Open("pebble", filepath.Join(dir, "vs-db"))
	c.Assert(err, qt.IsNil)
	vsSt := vsstore.New(kv.New(vsDB))
	vsClock := clock.NewCached()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go vsClock.Run(ctx)

	bbClient := client.New(urlBB)
	sched := scheduler.New(vsSt, bbClient, group, skVS, vsClock, scheduler.Config{
		VoteAmountMin:         3,
		VoteAmountMax:         4,
		MinInterval:           time.Second,
		FinalObfuscationDelay: time.Second,
	})
	vsAPI, err := vsapi.New(&vsapi.Config{
		Host:      "127.0.0.1",
		Port:      0,
		Group:     group,
		KeyPath:   vsKeyPath,
		Store:     vsSt,
		Scheduler: sched,
		Clock:     vsClock,
		BB:        bbClient,
	})
	c.Assert(err, qt.IsNil)
	serve(lVS, vsAPI.Router())

	// Tallying Server.
	tsKeyPath := filepath.Join(dir, "ts-key.json")
	_, skTS, err := elgamal.GenerateKey(group)
	c.Assert(err, qt.IsNil)
	c.Assert(svckey.Save(tsKeyPath, skTS), qt.IsNil)

	tsSvc := tsservice.New(group, skTS, client.New(urlBB), 5*time.Second)
	tsAPI, err := tsapi.New(&tsapi.Config{
		Host:    "127.0.0.1",
		Port:    0,
		Group:   group,
		KeyPath: tsKeyPath,
		Service: tsSvc,
		BB:      client.New(urlBB),
	})
	c.Assert(err, qt.IsNil)
	serve(lTS, tsAPI.Router())

	// Registration Authority.
	raDB, err := kv.Open("pebble", filepath.Join(dir, "ra-db"))
	c.Assert(err, qt.IsNil)
	raSvc := raservice.New(
		keystore.New(kv.New(raDB)),
		group,
		dir,
		client.New(urlBB),
		client.New(urlVS),
		client.New(urlTS),
	)
	raAPI, err := raapi.New(&raapi.Config{Host: "127.0.0.1", Port: 0, Service: raSvc})
	c.Assert(err, qt.IsNil)
	serve(lRA, raAPI.Router())

	// Bootstrap: params land on BB, which fans out to VS/TS, whose keys
	// fan back through BB to RA.
	c.Assert(raSvc.Bootstrap(context.Background()), qt.IsNil)
	deadline := time.Now().Add(15 * time.Second)
	for !raSvc.Ready.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("service keys never became ready")
		}
		time.Sleep(200 * time.Millisecond)
	}

	return &testEnv{
		group: group,
		bb:    bbClient,
		vs:    client.New(urlVS),
		raSvc: raSvc,
		dir:   dir,
	}
}

// loadElection writes an election description into RA's data directory and
// runs the load-file bootstrap against it.
func (e *testEnv) loadElection(t *testing.T, election types.Election) {
	t.Helper()
	c := qt.New(t)
	desc := map[string]any{
		"election":   types.Election{ID: election.ID, Name: election.Name, Start: election.Start, End: election.End},
		"candidates": election.Candidates,
		"voters":     election.Voters,
	}
	data, err := json.Marshal(desc)
	c.Assert(err, qt.IsNil)
	name := election.ID + ".json"
	c.Assert(os.WriteFile(filepath.Join(e.dir, name), data, 0o600), qt.IsNil)

	_, err = e.raSvc.LoadFile(context.Background(), name)
	c.Assert(err, qt.IsNil)
}

// buildBallot assembles the honest R1 ballot a voter-facing app would,
// against the voter's current CBR head fetched from the Bulletin Board.
func (e *testEnv) buildBallot(t *testing.T, electionID, voterID string, numCandidates, candidateIndex int) types.SubmittedBallot {
	t.Helper()
	c := qt.New(t)
	ctx := context.Background()

	entry, err := e.raSvc.Keys.Get(voterID, electionID)
	c.Assert(err, qt.IsNil)
	skID := new(big.Int).SetBytes(entry.SecretKey)
	upk := e.group.New()
	c.Assert(upk.Unmarshal(entry.PublicKey), qt.IsNil)

	var keys types.PublicKeysTSVS
	c.Assert(e.bb.Get(ctx, "/public-keys-tsvs", nil, &keys), qt.IsNil)
	pkTS := e.group.New()
	c.Assert(pkTS.Unmarshal(keys.PublicKeyTS), qt.IsNil)
	pkVS := e.group.New()
	c.Assert(pkVS.Unmarshal(keys.PublicKeyVS), qt.IsNil)

	var lpl types.LastPreviousLast
	c.Assert(e.bb.Get(ctx, "/last_previous_last_ballot", url.Values{
		"voter_id": {voterID}, "election_id": {electionID},
	}, &lpl), qt.IsNil)

	cti := lpl.Last.CTLID.Clone().ScalarMul(lpl.Last.CTLID, big.NewInt(2))
	diff := lpl.Last.CTLV.Clone().Sub(lpl.Last.CTLV, lpl.Last.CTLID)
	priorCtx := nizk.PriorBallotContext{
		CTi:         cti,
		DiffCT:      diff,
		LastCTV:     lpl.Last.CTV,
		PrevLastCTV: lpl.PreviousLast.CTV,
	}
	params := nizk.BallotParams{Group: e.group, PkTS: pkTS, PkVS: pkVS, UPK: upk}

	ctv := make([]*elgamal.Ciphertext, numCandidates)
	candidateRand := make([]*big.Int, numCandidates)
	for i := range ctv {
		r, err := elgamal.RandK(e.group)
		c.Assert(err, qt.IsNil)
		candidateRand[i] = r
		value := int64(0)
		if i == candidateIndex {
			value = 1
		}
		ctv[i], err = elgamal.NewCiphertext(e.group).Encrypt(big.NewInt(value), pkTS, r)
		c.Assert(err, qt.IsNil)
	}
	rLV, err := elgamal.RandK(e.group)
	c.Assert(err, qt.IsNil)
	ctlv, err := elgamal.NewCiphertext(e.group).Encrypt(big.NewInt(1), pkVS, rLV)
	c.Assert(err, qt.IsNil)
	rLID, err := elgamal.RandK(e.group)
	c.Assert(err, qt.IsNil)
	ctlid, err := priorCtx.CTi.ReEncrypt(pkVS, rLID)
	c.Assert(err, qt.IsNil)

	proof, err := nizk.ProveR1(params, priorCtx, ctv, ctlv, ctlid, candidateIndex, nizk.BallotWitness{
		SK:             skID,
		CandidateIndex: candidateIndex,
		CandidateRand:  candidateRand,
		LVValue:        big.NewInt(1),
		LVRand:         rLV,
		LIDRand:        rLID,
	})
	c.Assert(err, qt.IsNil)
	encoded, err := proof.Encode()
	c.Assert(err, qt.IsNil)

	return types.SubmittedBallot{
		VoterID:    voterID,
		ElectionID: electionID,
		UPK:        entry.PublicKey,
		CTV:        ctv,
		CTLV:       ctlv,
		CTLID:      ctlid,
		Proof:      encoded,
	}
}

// submitBallot POSTs a submission to the Voting Server and returns the
// image token it answered with.
func (e *testEnv) submitBallot(t *testing.T, b types.SubmittedBallot) string {
	t.Helper()
	c := qt.New(t)
	var resp types.ReceiveBallotResponse
	c.Assert(e.vs.Post(context.Background(), "/receive-ballot", b, &resp), qt.IsNil)
	return resp.ImagePath
}

func (e *testEnv) castBallot(t *testing.T, electionID, voterID string, numCandidates, candidateIndex int) string {
	t.Helper()
	return e.submitBallot(t, e.buildBallot(t, electionID, voterID, numCandidates, candidateIndex))
}

// submissionHash is the identity the Bulletin Board would record for a
// submission, used to assert presence or absence on the board.
func submissionHash(t *testing.T, b types.SubmittedBallot) string {
	t.Helper()
	c := qt.New(t)
	h, err := hash.BallotHash(b.VoterID, b.UPK, b.CTV, b.CTLV, b.CTLID, b.Proof)
	c.Assert(err, qt.IsNil)
	return h
}

func TestSingleVoterElection(t *testing.T) {
	c := qt.New(t)
	env := startServices(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(3 * time.Second).Truncate(time.Second)
	election := types.Election{
		ID:    fmt.Sprintf("e2e-%d", time.Now().UnixNano()),
		Name:  "single voter election",
		Start: start,
		End:   start.Add(20 * time.Second),
		Candidates: []types.Candidate{
			{ID: "A", Name: "candidate A"},
			{ID: "B", Name: "candidate B"},
		},
		Voters: []types.Voter{{ID: fmt.Sprintf("voter-%d", time.Now().UnixNano()), Name: "voter one"}},
	}
	env.loadElection(t, election)
	voterID := election.Voters[0].ID

	// The initialisation ballot must already sit at CBR index 0.
	var length types.CBRLength
	deadline := time.Now().Add(10 * time.Second)
	for {
		err := env.bb.Get(ctx, "/cbr_length", url.Values{"voter_id": {voterID}, "election_id": {election.ID}}, &length)
		if err == nil && length.Length >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ballot0 never landed on the bulletin board")
		}
		time.Sleep(200 * time.Millisecond)
	}

	// Submit an honest vote for candidate A just after the election opens.
	time.Sleep(time.Until(election.Start.Add(500 * time.Millisecond)))
	image := env.castBallot(t, election.ID, voterID, 2, 0)
	c.Assert(image, qt.Not(qt.Equals), types.RejectedImagePath)

	// Wait for the election to close, the final obfuscation to land and
	// the tallying server's grace period to expire.
	var result types.ElectionResult
	deadline = time.Now().Add(time.Until(election.End) + 30*time.Second)
	for {
		err := env.bb.Get(ctx, "/election-result", url.Values{"election_id": {election.ID}}, &result)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("election result never published")
		}
		time.Sleep(500 * time.Millisecond)
	}

	c.Assert(result.Results, qt.HasLen, 2)
	c.Assert(result.Results[0].CandidateID, qt.Equals, "A")
	c.Assert(result.Results[0].Votes, qt.Equals, uint64(1))
	c.Assert(result.Results[1].Votes, qt.Equals, uint64(0))

	// The CBR holds B0, the voter's ballot and at least the closing
	// obfuscation, and every ballot on it verifies.
	var cbr []types.CBREntry
	c.Assert(env.bb.Get(ctx, "/cbr-for-voter", url.Values{"voter_id": {voterID}, "election_id": {election.ID}}, &cbr), qt.IsNil)
	c.Assert(len(cbr) >= 3, qt.IsTrue)

	var keys types.PublicKeysTSVS
	c.Assert(env.bb.Get(ctx, "/public-keys-tsvs", nil, &keys), qt.IsNil)
	pkTS := env.group.New()
	c.Assert(pkTS.Unmarshal(keys.PublicKeyTS), qt.IsNil)
	pkVS := env.group.New()
	c.Assert(pkVS.Unmarshal(keys.PublicKeyVS), qt.IsNil)
	upk := env.group.New()
	c.Assert(upk.Unmarshal(cbr[0].Ballot.UPK), qt.IsNil)
	params := nizk.BallotParams{Group: env.group, PkTS: pkTS, PkVS: pkVS, UPK: upk}
	c.Assert(verify.CBR(params, cbr), qt.IsNil)

	// Any observer can re-derive the tally from public data alone.
	var lastCTVs map[string][]*elgamal.Ciphertext
	c.Assert(env.bb.Get(ctx, "/fetch_last_ballot_ctvs", url.Values{"election_id": {election.ID}}, &lastCTVs), qt.IsNil)
	c.Assert(verify.Tally(env.group, pkTS, lastCTVs, election.Voters, &result), qt.IsNil)
}

func TestSilentVoterTalliesToZero(t *testing.T) {
	c := qt.New(t)
	env := startServices(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(3 * time.Second).Truncate(time.Second)
	election := types.Election{
		ID:    fmt.Sprintf("e2e-silent-%d", time.Now().UnixNano()),
		Name:  "silent voter election",
		Start: start,
		End:   start.Add(15 * time.Second),
		Candidates: []types.Candidate{
			{ID: "A", Name: "candidate A"},
			{ID: "B", Name: "candidate B"},
		},
		Voters: []types.Voter{{ID: fmt.Sprintf("voter-%d", time.Now().UnixNano()), Name: "quiet voter"}},
	}
	env.loadElection(t, election)
	voterID := election.Voters[0].ID

	var result types.ElectionResult
	deadline := time.Now().Add(time.Until(election.End) + 30*time.Second)
	for {
		err := env.bb.Get(ctx, "/election-result", url.Values{"election_id": {election.ID}}, &result)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("election result never published")
		}
		time.Sleep(500 * time.Millisecond)
	}

	for _, r := range result.Results {
		c.Assert(r.Votes, qt.Equals, uint64(0))
	}

	// Every post-B0 entry is an obfuscation, and the whole record still
	// verifies.
	var cbr []types.CBREntry
	c.Assert(env.bb.Get(ctx, "/cbr-for-voter", url.Values{"voter_id": {voterID}, "election_id": {election.ID}}, &cbr), qt.IsNil)
	c.Assert(len(cbr) >= 2, qt.IsTrue)
	for _, entry := range cbr[1:] {
		c.Assert(entry.Ballot.IsB0(), qt.IsFalse)
	}
}

func TestSubmitOutsideElectionWindowIsRejected(t *testing.T) {
	c := qt.New(t)
	env := startServices(t)

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	election := types.Election{
		ID:         fmt.Sprintf("e2e-early-%d", time.Now().UnixNano()),
		Name:       "future election",
		Start:      start,
		End:        start.Add(time.Hour),
		Candidates: []types.Candidate{{ID: "A", Name: "candidate A"}},
		Voters:     []types.Voter{{ID: fmt.Sprintf("voter-%d", time.Now().UnixNano()), Name: "keen voter"}},
	}
	env.loadElection(t, election)
	voterID := election.Voters[0].ID

	// Wait for B0 so the CBR head exists to build against.
	ctx := context.Background()
	var length types.CBRLength
	deadline := time.Now().Add(10 * time.Second)
	for {
		err := env.bb.Get(ctx, "/cbr_length", url.Values{"voter_id": {voterID}, "election_id": {election.ID}}, &length)
		if err == nil && length.Length >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ballot0 never landed on the bulletin board")
		}
		time.Sleep(200 * time.Millisecond)
	}

	image := env.castBallot(t, election.ID, voterID, 1, 0)
	c.Assert(image, qt.Equals, types.RejectedImagePath)

	// Nothing beyond B0 was recorded.
	c.Assert(env.bb.Get(ctx, "/cbr_length", url.Values{"voter_id": {voterID}, "election_id": {election.ID}}, &length), qt.IsNil)
	c.Assert(length.Length, qt.Equals, 1)
}

// waitForB0 blocks until the voter's initialisation ballot is on the
// board.
func (e *testEnv) waitForB0(t *testing.T, electionID, voterID string) {
	t.Helper()
	ctx := context.Background()
	var length types.CBRLength
	deadline := time.Now().Add(10 * time.Second)
	for {
		err := e.bb.Get(ctx, "/cbr_length", url.Values{"voter_id": {voterID}, "election_id": {electionID}}, &length)
		if err == nil && length.Length >= 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("ballot0 never landed on the bulletin board")
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// waitForResult blocks until the Tallying Server publishes the election's
// outcome.
func (e *testEnv) waitForResult(t *testing.T, election types.Election) types.ElectionResult {
	t.Helper()
	ctx := context.Background()
	var result types.ElectionResult
	deadline := time.Now().Add(time.Until(election.End) + 30*time.Second)
	for {
		err := e.bb.Get(ctx, "/election-result", url.Values{"election_id": {election.ID}}, &result)
		if err == nil {
			return result
		}
		if time.Now().After(deadline) {
			t.Fatal("election result never published")
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// ballotHashes fetches every hash the board has recorded for an election.
func (e *testEnv) ballotHashes(t *testing.T, electionID string) []string {
	t.Helper()
	c := qt.New(t)
	var hashes []string
	c.Assert(e.bb.Get(context.Background(), "/fetch-ballot-hashes", url.Values{"election_id": {electionID}}, &hashes), qt.IsNil)
	return hashes
}

func TestReplayedBallotIsAbsorbedOnce(t *testing.T) {
	c := qt.New(t)
	env := startServices(t)

	start := time.Now().UTC().Add(3 * time.Second).Truncate(time.Second)
	election := types.Election{
		ID:    fmt.Sprintf("e2e-replay-%d", time.Now().UnixNano()),
		Name:  "replay election",
		Start: start,
		End:   start.Add(24 * time.Second),
		Candidates: []types.Candidate{
			{ID: "A", Name: "candidate A"},
			{ID: "B", Name: "candidate B"},
		},
		Voters: []types.Voter{{ID: fmt.Sprintf("voter-%d", time.Now().UnixNano()), Name: "replaying voter"}},
	}
	env.loadElection(t, election)
	voterID := election.Voters[0].ID
	env.waitForB0(t, election.ID, voterID)

	time.Sleep(time.Until(election.Start.Add(500 * time.Millisecond)))
	ballot := env.buildBallot(t, election.ID, voterID, 2, 0)
	h := submissionHash(t, ballot)
	image := env.submitBallot(t, ballot)
	c.Assert(image, qt.Not(qt.Equals), types.RejectedImagePath)

	// Once the genuine copy is on the board, submit the identical ballot
	// again; the next tick must reject it as a replay.
	deadline := time.Now().Add(time.Until(election.End))
	for {
		if contains(env.ballotHashes(t, election.ID), h) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("genuine ballot never emitted")
		}
		time.Sleep(500 * time.Millisecond)
	}
	env.submitBallot(t, ballot)

	result := env.waitForResult(t, election)
	c.Assert(result.Results[0].Votes, qt.Equals, uint64(1))
	c.Assert(result.Results[1].Votes, qt.Equals, uint64(0))

	// The replay was absorbed: the hash appears exactly once on the board.
	count := 0
	for _, got := range env.ballotHashes(t, election.ID) {
		if got == h {
			count++
		}
	}
	c.Assert(count, qt.Equals, 1)
}

func TestTamperedSubmissionNeverReachesTheBoard(t *testing.T) {
	c := qt.New(t)
	env := startServices(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(3 * time.Second).Truncate(time.Second)
	election := types.Election{
		ID:    fmt.Sprintf("e2e-tamper-%d", time.Now().UnixNano()),
		Name:  "tampered submission election",
		Start: start,
		End:   start.Add(18 * time.Second),
		Candidates: []types.Candidate{
			{ID: "A", Name: "candidate A"},
			{ID: "B", Name: "candidate B"},
		},
		Voters: []types.Voter{{ID: fmt.Sprintf("voter-%d", time.Now().UnixNano()), Name: "tampering voter"}},
	}
	env.loadElection(t, election)
	voterID := election.Voters[0].ID
	env.waitForB0(t, election.ID, voterID)

	// Swap the candidate ciphertexts after proving: the submission is
	// accepted into the pending queue but must fail validation at its
	// tick, consuming the slot with nothing emitted.
	time.Sleep(time.Until(election.Start.Add(500 * time.Millisecond)))
	ballot := env.buildBallot(t, election.ID, voterID, 2, 0)
	ballot.CTV = []*elgamal.Ciphertext{ballot.CTV[1], ballot.CTV[0]}
	h := submissionHash(t, ballot)
	image := env.submitBallot(t, ballot)
	c.Assert(image, qt.Not(qt.Equals), types.RejectedImagePath)

	result := env.waitForResult(t, election)
	for _, r := range result.Results {
		c.Assert(r.Votes, qt.Equals, uint64(0))
	}

	// The rejected ballot never reached the board.
	c.Assert(contains(env.ballotHashes(t, election.ID), h), qt.IsFalse)
	var cbr []types.CBREntry
	c.Assert(env.bb.Get(ctx, "/cbr-for-voter", url.Values{"voter_id": {voterID}, "election_id": {election.ID}}, &cbr), qt.IsNil)
	for _, entry := range cbr {
		c.Assert(entry.Ballot.Hash, qt.Not(qt.Equals), h)
	}

	// Everything that was emitted is a verifiable obfuscation: the record
	// still checks out end to end.
	var keys types.PublicKeysTSVS
	c.Assert(env.bb.Get(ctx, "/public-keys-tsvs", nil, &keys), qt.IsNil)
	pkTS := env.group.New()
	c.Assert(pkTS.Unmarshal(keys.PublicKeyTS), qt.IsNil)
	pkVS := env.group.New()
	c.Assert(pkVS.Unmarshal(keys.PublicKeyVS), qt.IsNil)
	upk := env.group.New()
	c.Assert(upk.Unmarshal(cbr[0].Ballot.UPK), qt.IsNil)
	params := nizk.BallotParams{Group: env.group, PkTS: pkTS, PkVS: pkVS, UPK: upk}
	c.Assert(verify.CBR(params, cbr), qt.IsNil)
}

func contains(hashes []string, h string) bool {
	for _, got := range hashes {
		if got == h {
			return true
		}
	}
	return false
}
