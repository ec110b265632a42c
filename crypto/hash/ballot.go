// Package hash implements the canonical hashing used to give every ballot a
// globally unique identity on the Bulletin Board.
package hash

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/lokivote/cbr-voting/crypto/elgamal"
)

// canonicalBallot mirrors the six hashed fields of a ballot, in the fixed
// field order {voterId, upk, ctv, ctlv, ctlid, proof}.
// Using a struct (rather than a map) keeps json.Marshal's field order
// deterministic without needing a canonical-JSON library.
type canonicalBallot struct {
	VoterID string                `json:"voterId"`
	UPK     string                `json:"upk"`
	CTV     []*elgamal.Ciphertext `json:"ctv"`
	CTLV    *elgamal.Ciphertext   `json:"ctlv"`
	CTLID   *elgamal.Ciphertext   `json:"ctlid"`
	Proof   string                `json:"proof"`
}

// BallotHash returns the SHA-256 hash over the canonical JSON encoding of
// the ballot's six identity-bearing fields. Two ballots with the same
// (voterID, upk, ctv, ctlv, ctlid, proof) always hash equal, which is what
// the Bulletin Board's UNIQUE constraint relies on for replay protection.
func BallotHash(voterID string, upk []byte, ctv []*elgamal.Ciphertext, ctlv, ctlid *elgamal.Ciphertext, proof []byte) (string, error) {
	cb := canonicalBallot{
		VoterID: voterID,
		UPK:     base64.StdEncoding.EncodeToString(upk),
		CTV:     ctv,
		CTLV:    ctlv,
		CTLID:   ctlid,
		Proof:   base64.StdEncoding.EncodeToString(proof),
	}
	data, err := json.Marshal(cb)
	if err != nil {
		return "", fmt.Errorf("hash: failed to canonicalize ballot: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}
