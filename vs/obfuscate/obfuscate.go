// Package obfuscate implements the Voting Server's five-step ballot
// fabrication algorithm: on every tick with no genuine pending
// vote, VS manufactures an indistinguishable re-encryption of the voter's
// current choice, proving R2 or R3 depending on whether the voter's prior
// index-list report was correct.
package obfuscate

import (
	"fmt"
	"math/big"

	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/crypto/hash"
	"github.com/lokivote/cbr-voting/crypto/nizk"
	"github.com/lokivote/cbr-voting/types"
	"github.com/lokivote/cbr-voting/vs/ballotctx"
)

// Ballot fabricates a fully-formed, proved obfuscation ballot ready to be
// timestamped and POSTed to BB.
func Ballot(bctx *ballotctx.Context, skVS *big.Int, electionID, voterID string, upk []byte) (*types.Ballot, error) {
	group := bctx.Params.Group
	priorCtx := bctx.PriorBallotContext()

	rLV, err := elgamal.RandK(group)
	if err != nil {
		return nil, fmt.Errorf("obfuscate: failed to draw ctlv randomness: %w", err)
	}
	rLID, err := elgamal.RandK(group)
	if err != nil {
		return nil, fmt.Errorf("obfuscate: failed to draw ctlid randomness: %w", err)
	}

	_, plaintext, err := elgamal.Decrypt(skVS, priorCtx.DiffCT.C1, priorCtx.DiffCT.C2, nizk.MaxCBRIndexBitmask)
	if err != nil {
		return nil, fmt.Errorf("obfuscate: failed to decrypt prior index-list diff: %w", err)
	}

	var source []*elgamal.Ciphertext
	var proveR3 bool
	if plaintext.Sign() == 0 {
		source = priorCtx.LastCTV
		proveR3 = false
	} else {
		source = priorCtx.PrevLastCTV
		proveR3 = true
	}

	n := len(source)
	ctv := make([]*elgamal.Ciphertext, n)
	ctvRand := make([]*big.Int, n)
	for i, c := range source {
		r, err := elgamal.RandK(group)
		if err != nil {
			return nil, fmt.Errorf("obfuscate: failed to draw ctv[%d] randomness: %w", i, err)
		}
		ctvRand[i] = r
		reenc, err := c.ReEncrypt(bctx.Params.PkTS, r)
		if err != nil {
			return nil, fmt.Errorf("obfuscate: failed to re-encrypt ctv[%d]: %w", i, err)
		}
		ctv[i] = reenc
	}
	ctlv, err := priorCtx.CTi.ReEncrypt(bctx.Params.PkVS, rLV)
	if err != nil {
		return nil, fmt.Errorf("obfuscate: failed to re-encrypt ctlv: %w", err)
	}
	ctlid, err := priorCtx.CTi.ReEncrypt(bctx.Params.PkVS, rLID)
	if err != nil {
		return nil, fmt.Errorf("obfuscate: failed to re-encrypt ctlid: %w", err)
	}

	witness := nizk.BallotWitness{
		SKVS:      skVS,
		CTVRand:   ctvRand,
		CTLVRand:  rLV,
		CTLIDRand: rLID,
	}

	var proof *nizk.ORProof
	if proveR3 {
		witness.NonZeroTerm = plaintext
		proof, err = nizk.ProveR3(bctx.Params, priorCtx, ctv, ctlv, ctlid, witness)
	} else {
		proof, err = nizk.ProveR2(bctx.Params, priorCtx, ctv, ctlv, ctlid, witness)
	}
	if err != nil {
		return nil, fmt.Errorf("obfuscate: failed to prove ballot: %w", err)
	}
	encoded, err := proof.Encode()
	if err != nil {
		return nil, fmt.Errorf("obfuscate: failed to encode proof: %w", err)
	}

	h, err := hash.BallotHash(voterID, upk, ctv, ctlv, ctlid, encoded)
	if err != nil {
		return nil, fmt.Errorf("obfuscate: failed to hash ballot: %w", err)
	}

	return &types.Ballot{
		VoterID:    voterID,
		ElectionID: electionID,
		UPK:        upk,
		CTV:        ctv,
		CTLV:       ctlv,
		CTLID:      ctlid,
		Proof:      encoded,
		Hash:       h,
	}, nil
}
