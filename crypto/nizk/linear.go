// Package nizk implements the non-interactive zero-knowledge proofs used
// to validate ballots: Fiat-Shamir sigma protocols over linear relations in
// the ElGamal group, composed into the disjunctive R1/R2/R3 ballot
// statement and the Tallying Server's proof of correct decryption.
//
// The building block is a generalised Schnorr ("compound linear relation")
// protocol: given a witness vector w and, for each of n public equations, a
// row of bases, the prover shows knowledge of w such that every equation
// Y_i = Sum_j Base_ij * w_j holds, without revealing w. Chaum-Pedersen
// discrete-log-equality proofs, plain Schnorr knowledge-of-exponent proofs
// and two-generator representation proofs (used for ElGamal ciphertext
// openings) are all special cases of this one relation shape.
package nizk

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/lokivote/cbr-voting/crypto/ecc"
)

// Relation is one instance of a compound linear statement: m witnesses,
// n equations. Bases[i][j] is the base multiplying witness j in equation
// i; a nil entry means witness j does not appear in equation i. Y[i] is
// the public output of equation i.
type Relation struct {
	Bases [][]ecc.Point
	Y     []ecc.Point
}

func (r *Relation) numEquations() int { return len(r.Y) }
func (r *Relation) numWitnesses() int {
	if len(r.Bases) == 0 {
		return 0
	}
	return len(r.Bases[0])
}

// commitment holds the prover's first-move values for one Relation: one
// random point T_i per equation.
type commitment struct {
	T []ecc.Point
}

// response holds the prover's third-move values: one scalar z_j per
// witness.
type response struct {
	Z []*big.Int
}

// group is used purely as a factory (New/Order/SetZero) for fresh points;
// callers pass the curve instance the ciphertexts themselves were built
// on.
func newZero(group ecc.Point) ecc.Point {
	p := group.New()
	p.SetZero()
	return p
}

// commit picks fresh randomness for every witness and computes the
// resulting first-move commitment. It returns the per-witness randomness
// (needed to compute the response once the challenge is known) alongside
// the commitment.
func commit(group ecc.Point, rel *Relation, rnd func() (*big.Int, error)) ([]*big.Int, *commitment, error) {
	m := rel.numWitnesses()
	t := make([]*big.Int, m)
	for j := 0; j < m; j++ {
		v, err := rnd()
		if err != nil {
			return nil, nil, err
		}
		t[j] = v
	}
	n := rel.numEquations()
	T := make([]ecc.Point, n)
	for i := 0; i < n; i++ {
		acc := newZero(group)
		for j := 0; j < m; j++ {
			base := rel.Bases[i][j]
			if base == nil || t[j].Sign() == 0 {
				continue
			}
			term := base.New()
			term.ScalarMult(base, t[j])
			acc.Add(acc, term)
		}
		T[i] = acc
	}
	return t, &commitment{T: T}, nil
}

// respond computes the response z_j = t_j + e*w_j mod order for every
// witness, given the challenge e.
func respond(order *big.Int, t []*big.Int, witness []*big.Int, e *big.Int) *response {
	z := make([]*big.Int, len(t))
	for j := range t {
		ew := new(big.Int).Mul(e, witness[j])
		z[j] = new(big.Int).Add(t[j], ew)
		z[j].Mod(z[j], order)
	}
	return &response{Z: z}
}

// simulate produces a (commitment, response) pair for a chosen challenge
// and response, without knowledge of a witness: T_i is computed backwards
// from the verification equation so that Verify still accepts.
func simulate(group ecc.Point, rel *Relation, e *big.Int, z []*big.Int) *commitment {
	n := rel.numEquations()
	m := rel.numWitnesses()
	T := make([]ecc.Point, n)
	for i := 0; i < n; i++ {
		acc := newZero(group)
		for j := 0; j < m; j++ {
			base := rel.Bases[i][j]
			if base == nil {
				continue
			}
			term := base.New()
			term.ScalarMult(base, z[j])
			acc.Add(acc, term)
		}
		eY := rel.Y[i].New()
		eY.ScalarMult(rel.Y[i], e)
		eY.Neg(eY)
		acc.Add(acc, eY)
		T[i] = acc
	}
	return &commitment{T: T}
}

// verify checks that the given (commitment, challenge, response) triple
// satisfies every equation of rel.
func verify(rel *Relation, c *commitment, e *big.Int, z []*big.Int) bool {
	n := rel.numEquations()
	m := rel.numWitnesses()
	if len(c.T) != n || len(z) != m {
		return false
	}
	for i := 0; i < n; i++ {
		lhs := newZeroFrom(rel.Y[i])
		for j := 0; j < m; j++ {
			base := rel.Bases[i][j]
			if base == nil {
				continue
			}
			term := base.New()
			term.ScalarMult(base, z[j])
			lhs.Add(lhs, term)
		}
		rhs := rel.Y[i].New()
		rhs.ScalarMult(rel.Y[i], e)
		rhs.Add(rhs, c.T[i])
		if !lhs.Equal(rhs) {
			return false
		}
	}
	return true
}

func newZeroFrom(p ecc.Point) ecc.Point {
	z := p.New()
	z.SetZero()
	return z
}

// hashChallenge derives a Fiat-Shamir challenge scalar, modulo order, from
// a domain-separation context and an arbitrary list of points (typically
// the statement's public inputs followed by the prover's commitments).
func hashChallenge(order *big.Int, context string, points ...ecc.Point) *big.Int {
	h := sha256.New()
	h.Write([]byte(context))
	for _, p := range points {
		if p == nil {
			h.Write([]byte{0})
			continue
		}
		h.Write(p.Marshal())
	}
	digest := h.Sum(nil)
	e := new(big.Int).SetBytes(digest)
	return e.Mod(e, order)
}

func allPoints(rels []*Relation) []ecc.Point {
	var pts []ecc.Point
	for _, r := range rels {
		pts = append(pts, r.Y...)
		for _, row := range r.Bases {
			pts = append(pts, row...)
		}
	}
	return pts
}

// ErrVerificationFailed is returned by Verify-family functions when a
// proof does not check out; crypto-kind failures are returned as plain
// errors rather than panics so callers can reject a ballot and continue.
var ErrVerificationFailed = fmt.Errorf("nizk: proof verification failed")
