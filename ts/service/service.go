// Package service implements the Tallying Server's core logic:
// wait for an election to close, homomorphically aggregate every voter's
// most recent per-candidate ciphertext, recover each candidate's vote
// count by small-message ElGamal decryption, and publish a Chaum-Pedersen
// proof of correct decryption alongside each count.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/crypto/nizk"
	"github.com/lokivote/cbr-voting/log"
	"github.com/lokivote/cbr-voting/types"
)

// Service owns the Tallying Server's secret key and its one connection out
// to the Bulletin Board.
type Service struct {
	Group       ecc.Point
	SKTS        *big.Int
	BB          *client.Client
	GracePeriod time.Duration
}

// New builds a Service. gracePeriod is how long after an election's
// published end time the tally task waits before reading the Bulletin
// Board, giving the Voting Server's final per-voter tick (its closing
// obfuscation, emitted at end+its own delay) and BB's write a chance to
// land first.
func New(group ecc.Point, skTS *big.Int, bb *client.Client, gracePeriod time.Duration) *Service {
	return &Service{Group: group, SKTS: skTS, BB: bb, GracePeriod: gracePeriod}
}

// ScheduleTally spawns the background task that waits for the election to
// close and then tallies it. Errors are logged, not returned:
// the caller (ts/api's /receive-election handler) has already answered
// its HTTP request by the time this runs.
func (s *Service) ScheduleTally(electionID string) {
	go func() {
		ctx := context.Background()
		if err := s.waitAndTally(ctx, electionID); err != nil {
			log.Errorw(err, fmt.Sprintf("ts: failed to tally election %s", electionID))
		}
	}()
}

func (s *Service) waitAndTally(ctx context.Context, electionID string) error {
	var election types.Election
	if err := s.BB.Get(ctx, "/election", url.Values{"election_id": {electionID}}, &election); err != nil {
		return fmt.Errorf("ts: failed to fetch election %s: %w", electionID, err)
	}

	wait := time.Until(election.End.Add(s.GracePeriod))
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return s.Tally(ctx, election)
}

// Tally runs the aggregation/decryption/proof pipeline for one
// already-closed election and publishes the result to BB.
func (s *Service) Tally(ctx context.Context, election types.Election) error {
	var voters []types.Voter
	if err := s.BB.Get(ctx, "/voters", url.Values{"election_id": {election.ID}}, &voters); err != nil {
		return fmt.Errorf("ts: failed to fetch voters for election %s: %w", election.ID, err)
	}

	var ctvs map[string][]*elgamal.Ciphertext
	if err := s.BB.Get(ctx, "/fetch_last_ballot_ctvs", url.Values{"election_id": {election.ID}}, &ctvs); err != nil {
		return fmt.Errorf("ts: failed to fetch last ballot ctvs for election %s: %w", election.ID, err)
	}

	pkTS := s.Group.New()
	pkTS.ScalarBaseMult(s.SKTS)

	maxVotes := uint64(len(voters))
	results := make([]types.CandidateResult, len(election.Candidates))
	for i, candidate := range election.Candidates {
		agg := elgamal.NewCiphertext(s.Group)
		agg.C1.SetZero()
		agg.C2.SetZero()
		for _, voter := range voters {
			voterCTV, ok := ctvs[voter.ID]
			if !ok || i >= len(voterCTV) {
				continue
			}
			agg.Add(agg, voterCTV[i])
		}

		_, count, err := elgamal.Decrypt(s.SKTS, agg.C1, agg.C2, maxVotes)
		if err != nil {
			return fmt.Errorf("ts: failed to decrypt tally for candidate %s: %w", candidate.ID, err)
		}

		proof, err := nizk.ProveTally(s.Group, pkTS, agg.C1, agg.C2, count.Uint64(), s.SKTS)
		if err != nil {
			return fmt.Errorf("ts: failed to prove tally for candidate %s: %w", candidate.ID, err)
		}
		encodedProof, err := json.Marshal(proof)
		if err != nil {
			return fmt.Errorf("ts: failed to encode tally proof for candidate %s: %w", candidate.ID, err)
		}

		results[i] = types.CandidateResult{
			CandidateID: candidate.ID,
			Votes:       count.Uint64(),
			Proof:       encodedProof,
		}
	}

	result := types.ElectionResult{ElectionID: election.ID, Results: results}
	if err := s.BB.Post(ctx, "/receive-election-result", result, nil); err != nil {
		return fmt.Errorf("ts: failed to publish election result for %s: %w", election.ID, err)
	}
	return nil
}
