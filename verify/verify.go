// Package verify implements the voter-side verification helpers: any
// party holding only public Bulletin Board data can recheck a single
// ballot's hash and NIZK, walk a full Cast Ballot Record, and re-derive
// the published tally's correctness, without talking to the Voting Server
// or Tallying Server at all.
package verify

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/crypto/hash"
	"github.com/lokivote/cbr-voting/crypto/nizk"
	"github.com/lokivote/cbr-voting/types"
)

var two = big.NewInt(2)

// Ballot rechecks one post-B0 ballot: its canonical hash matches its
// contents, and its NIZK verifies against the statement built from the two
// CBR entries preceding it (last and previous-last, with B0 doubling as
// both when it is the only predecessor).
func Ballot(params nizk.BallotParams, last, previousLast, b *types.Ballot) error {
	h, err := hash.BallotHash(b.VoterID, b.UPK, b.CTV, b.CTLV, b.CTLID, b.Proof)
	if err != nil {
		return fmt.Errorf("verify: failed to hash ballot: %w", err)
	}
	if h != b.Hash {
		return fmt.Errorf("verify: ballot hash mismatch: recorded %s, computed %s", b.Hash, h)
	}

	proof, err := nizk.DecodeORProof(b.Proof)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	ctx := priorContext(last, previousLast)
	if err := nizk.VerifyBallotProof(params, ctx, b.CTV, b.CTLV, b.CTLID, proof); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	return nil
}

// Ballot0 rechecks an initialisation ballot: its proof field is the raw
// randomness r0, and every ciphertext on it must be exactly Enc(0; r0)
// under the right key (ctv entries under pk_TS, ctlv/ctlid under pk_VS,
// with ctlv == ctlid).
func Ballot0(params nizk.BallotParams, b *types.Ballot) error {
	h, err := hash.BallotHash(b.VoterID, b.UPK, b.CTV, b.CTLV, b.CTLID, b.Proof)
	if err != nil {
		return fmt.Errorf("verify: failed to hash ballot0: %w", err)
	}
	if h != b.Hash {
		return fmt.Errorf("verify: ballot0 hash mismatch: recorded %s, computed %s", b.Hash, h)
	}

	r0 := new(big.Int).SetBytes(b.Proof)
	for i, ct := range b.CTV {
		if err := checkZeroEncryption(params.PkTS, ct, r0); err != nil {
			return fmt.Errorf("verify: ballot0 ctv[%d]: %w", i, err)
		}
	}
	if err := checkZeroEncryption(params.PkVS, b.CTLV, r0); err != nil {
		return fmt.Errorf("verify: ballot0 ctlv: %w", err)
	}
	if err := checkZeroEncryption(params.PkVS, b.CTLID, r0); err != nil {
		return fmt.Errorf("verify: ballot0 ctlid: %w", err)
	}
	return nil
}

// CBR walks a voter's full Cast Ballot Record in order, checking the
// initialisation ballot at index 0 and every later ballot against its two
// predecessors: the whole-record form of the per-ballot check.
func CBR(params nizk.BallotParams, cbr []types.CBREntry) error {
	if len(cbr) == 0 {
		return fmt.Errorf("verify: empty cast ballot record")
	}
	b0 := cbr[0].Ballot
	if !b0.IsB0() {
		return fmt.Errorf("verify: first CBR entry is not an initialisation ballot")
	}
	if err := Ballot0(params, &b0); err != nil {
		return err
	}
	for i := 1; i < len(cbr); i++ {
		if !cbr[i].Ballot.Timestamp.After(cbr[i-1].Ballot.Timestamp) {
			return fmt.Errorf("verify: CBR entries %d and %d are not strictly timestamp-ordered", i-1, i)
		}
		last := cbr[i-1].Ballot
		previousLast := last
		if i >= 2 {
			previousLast = cbr[i-2].Ballot
		}
		if err := Ballot(params, &last, &previousLast, &cbr[i].Ballot); err != nil {
			return fmt.Errorf("verify: CBR entry %d: %w", i, err)
		}
	}
	return nil
}

// Tally rebuilds each candidate's aggregated ciphertext from the per-voter
// last ctv export and checks the published count and decryption proof
// against it, plus the global bound that the counts cannot exceed the
// electorate.
func Tally(group ecc.Point, pkTS ecc.Point, lastCTVs map[string][]*elgamal.Ciphertext,
	voters []types.Voter, result *types.ElectionResult,
) error {
	var total uint64
	for i, cr := range result.Results {
		agg := elgamal.NewCiphertext(group)
		agg.C1.SetZero()
		agg.C2.SetZero()
		for _, v := range voters {
			ctv, ok := lastCTVs[v.ID]
			if !ok || i >= len(ctv) {
				continue
			}
			agg.Add(agg, ctv[i])
		}

		var proof nizk.TallyProof
		if err := json.Unmarshal(cr.Proof, &proof); err != nil {
			return fmt.Errorf("verify: malformed tally proof for candidate %s: %w", cr.CandidateID, err)
		}
		if err := nizk.VerifyTally(group, pkTS, agg.C1, agg.C2, cr.Votes, &proof); err != nil {
			return fmt.Errorf("verify: tally proof for candidate %s: %w", cr.CandidateID, err)
		}
		total += cr.Votes
	}
	if total > uint64(len(voters)) {
		return fmt.Errorf("verify: total votes %d exceed electorate size %d", total, len(voters))
	}
	return nil
}

// priorContext derives the ct_i / (c0,c1) statement terms from the two
// preceding ballots, the same derivation the Voting Server performs before
// validating or obfuscating.
func priorContext(last, previousLast *types.Ballot) nizk.PriorBallotContext {
	cti := last.CTLID.Clone().ScalarMul(last.CTLID, two)
	diff := last.CTLV.Clone().Sub(last.CTLV, last.CTLID)
	return nizk.PriorBallotContext{
		CTi:         cti,
		DiffCT:      diff,
		LastCTV:     last.CTV,
		PrevLastCTV: previousLast.CTV,
	}
}

// checkZeroEncryption reports whether ct == Enc(pk, 0, r): C1 = r*g and
// C2 = r*pk.
func checkZeroEncryption(pk ecc.Point, ct *elgamal.Ciphertext, r *big.Int) error {
	c1 := pk.New()
	c1.ScalarBaseMult(r)
	if !c1.Equal(ct.C1) {
		return fmt.Errorf("c1 is not r*g for the recorded randomness")
	}
	c2 := pk.New()
	c2.ScalarMult(pk, r)
	if !c2.Equal(ct.C2) {
		return fmt.Errorf("c2 is not r*pk for the recorded randomness")
	}
	return nil
}
