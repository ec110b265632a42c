// Package validate implements the Voting Server's three-condition ballot
// validity check: voter membership, replay protection, and NIZK
// verification against the statement built from the election's public
// parameters and the voter's two preceding CBR ballots.
package validate

import (
	"context"
	"fmt"
	"net/url"

	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/hash"
	"github.com/lokivote/cbr-voting/crypto/nizk"
	"github.com/lokivote/cbr-voting/types"
	"github.com/lokivote/cbr-voting/vs/ballotctx"
)

func urlValues(key, val string) url.Values {
	return url.Values{key: {val}}
}

// ErrInvalidBallot is returned when any of the three conditions fail; the
// caller must discard the ballot and emit nothing for this tick rather
// than propagate the error.
var ErrInvalidBallot = fmt.Errorf("validate: ballot rejected")

// Ballot checks a submitted ballot against all three validity conditions,
// given the per-tick context already fetched from BB.
func Ballot(ctx context.Context, bb *client.Client, bctx *ballotctx.Context, electionID string, b types.SubmittedBallot) error {
	voters, err := fetchVoters(ctx, bb, electionID)
	if err != nil {
		return fmt.Errorf("validate: failed to fetch voter list: %w", err)
	}
	if !containsVoter(voters, b.VoterID) {
		return fmt.Errorf("%w: voter %s not registered for election %s", ErrInvalidBallot, b.VoterID, electionID)
	}

	h, err := hash.BallotHash(b.VoterID, b.UPK, b.CTV, b.CTLV, b.CTLID, b.Proof)
	if err != nil {
		return fmt.Errorf("validate: failed to hash ballot: %w", err)
	}
	exists, err := ballotHashExists(ctx, bb, electionID, h)
	if err != nil {
		return fmt.Errorf("validate: failed to check ballot hash uniqueness: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: ballot hash already present on bulletin board", ErrInvalidBallot)
	}

	proof, err := nizk.DecodeORProof(b.Proof)
	if err != nil {
		return fmt.Errorf("%w: malformed proof: %v", ErrInvalidBallot, err)
	}
	priorCtx := bctx.PriorBallotContext()
	if err := nizk.VerifyBallotProof(bctx.Params, priorCtx, b.CTV, b.CTLV, b.CTLID, proof); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBallot, err)
	}
	return nil
}

func fetchVoters(ctx context.Context, bb *client.Client, electionID string) ([]types.Voter, error) {
	var voters []types.Voter
	if err := bb.Get(ctx, "/voters", urlValues("election_id", electionID), &voters); err != nil {
		return nil, err
	}
	return voters, nil
}

func ballotHashExists(ctx context.Context, bb *client.Client, electionID, hash string) (bool, error) {
	var hashes []string
	if err := bb.Get(ctx, "/fetch-ballot-hashes", urlValues("election_id", electionID), &hashes); err != nil {
		return false, err
	}
	for _, h := range hashes {
		if h == hash {
			return true, nil
		}
	}
	return false, nil
}

func containsVoter(voters []types.Voter, voterID string) bool {
	for _, v := range voters {
		if v.ID == voterID {
			return true
		}
	}
	return false
}
