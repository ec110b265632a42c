package nizk

import (
	"math/big"

	"github.com/lokivote/cbr-voting/crypto/ecc"
)

// tallyProofContext is the Fiat-Shamir domain-separation string for the
// Tallying Server's proof of correct decryption, distinct from the ballot
// disjunction's context so a proof cannot be replayed between the two
// statements.
const tallyProofContext = "cbr-voting/tally-proof/v1"

// TallyProof is a Chaum-Pedersen discrete-log-equality proof that a
// published vote count was obtained by correctly decrypting the
// homomorphically-aggregated ciphertext for one candidate, under the
// Tallying Server's secret key.
type TallyProof struct {
	T [][]byte `json:"t"`
	Z *big.Int `json:"z"`
}

// ProveTally proves knowledge of skTS such that pkTS = skTS*g and
// aggregate.C2 - votes*g = skTS*aggregate.C1, i.e. that votes is the
// correct decryption of aggregate under skTS.
func ProveTally(group ecc.Point, pkTS ecc.Point, aggregateC1, aggregateC2 ecc.Point, votes uint64, skTS *big.Int) (*TallyProof, error) {
	gen := g(group)
	shifted := decryptedShift(group, aggregateC2, votes)
	rel := chaumPedersen(gen, pkTS, aggregateC1, shifted)

	order := group.Order()
	rnd := rndFunc(order)
	t, comm, err := commit(group, rel, rnd)
	if err != nil {
		return nil, err
	}
	e := hashChallenge(order, tallyProofContext, append(allPoints([]*Relation{rel}), comm.T...)...)
	resp := respond(order, t, []*big.Int{skTS}, e)

	T := make([][]byte, len(comm.T))
	for i, p := range comm.T {
		T[i] = p.Marshal()
	}
	return &TallyProof{T: T, Z: resp.Z[0]}, nil
}

// VerifyTally checks a TallyProof against the public aggregate ciphertext,
// claimed vote count and Tallying Server public key.
func VerifyTally(group ecc.Point, pkTS ecc.Point, aggregateC1, aggregateC2 ecc.Point, votes uint64, proof *TallyProof) error {
	gen := g(group)
	shifted := decryptedShift(group, aggregateC2, votes)
	rel := chaumPedersen(gen, pkTS, aggregateC1, shifted)

	if len(proof.T) != rel.numEquations() {
		return ErrVerificationFailed
	}
	T := make([]ecc.Point, len(proof.T))
	for i, tb := range proof.T {
		p := group.New()
		if err := p.Unmarshal(tb); err != nil {
			return ErrVerificationFailed
		}
		T[i] = p
	}

	order := group.Order()
	e := hashChallenge(order, tallyProofContext, append(allPoints([]*Relation{rel}), T...)...)

	if !verify(rel, &commitment{T: T}, e, []*big.Int{proof.Z}) {
		return ErrVerificationFailed
	}
	return nil
}

// decryptedShift returns c2 - votes*g, the point that must equal skTS*c1
// when votes is the correct decryption.
func decryptedShift(group ecc.Point, c2 ecc.Point, votes uint64) ecc.Point {
	vp := valuePoint(group, int64(votes))
	negVP := vp.New()
	negVP.Neg(vp)
	shifted := c2.New()
	shifted.Add(c2, negVP)
	return shifted
}
