package nizk

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/lokivote/cbr-voting/crypto/ecc"
)

// relationProof is the wire form of one Relation's (commitment, response)
// pair within a branch.
type relationProof struct {
	T [][]byte   `json:"t"`
	Z []*big.Int `json:"z"`
}

// branchProof is one branch of a disjunction: a shared challenge and one
// relationProof per Relation in that branch.
type branchProof struct {
	Challenge *big.Int        `json:"e"`
	Relations []relationProof `json:"relations"`
}

// ORProof is a Fiat-Shamir OR-composition (Cramer-Damgard-Schoenmakers) of
// an arbitrary number of branches, exactly one of which the prover knows a
// witness for. It backs the ballot's top-level R1/R2/R3 disjunction (with
// R1 itself flattened into one-hot-per-candidate-plus-abstention branches)
// and is reused unchanged for any other either/or statement the system
// needs.
type ORProof struct {
	Branches []branchProof `json:"branches"`
}

// ProveOR builds an ORProof over the given branches (each a list of public
// Relations), proving branches[realIndex] true using realWitnesses (one
// witness vector per Relation in that branch) while every other branch is
// simulated. context is a domain-separation string distinguishing distinct
// proof sites (e.g. "R1/candidate/2" vs "R2") so that proofs for different
// statements can never be replayed against each other.
func ProveOR(group ecc.Point, branches [][]*Relation, realIndex int, realWitnesses [][]*big.Int, context string, rnd func() (*big.Int, error)) (*ORProof, error) {
	if realIndex < 0 || realIndex >= len(branches) {
		return nil, fmt.Errorf("nizk: real branch index out of range")
	}
	order := group.Order()
	n := len(branches)

	challenges := make([]*big.Int, n)
	commitments := make([][]*commitment, n)
	responsesZ := make([][][]*big.Int, n)

	// Simulate every branch but the real one.
	for i, branch := range branches {
		if i == realIndex {
			continue
		}
		e, err := rnd()
		if err != nil {
			return nil, err
		}
		challenges[i] = e
		commitments[i] = make([]*commitment, len(branch))
		responsesZ[i] = make([][]*big.Int, len(branch))
		for k, rel := range branch {
			z := make([]*big.Int, rel.numWitnesses())
			for j := range z {
				v, err := rnd()
				if err != nil {
					return nil, err
				}
				z[j] = v
			}
			commitments[i][k] = simulate(group, rel, e, z)
			responsesZ[i][k] = z
		}
	}

	// Commit (but don't yet respond) on the real branch.
	realBranch := branches[realIndex]
	realCommit := make([]*commitment, len(realBranch))
	realRandomness := make([][]*big.Int, len(realBranch))
	for k, rel := range realBranch {
		t, c, err := commit(group, rel, rnd)
		if err != nil {
			return nil, err
		}
		realCommit[k] = c
		realRandomness[k] = t
	}
	commitments[realIndex] = realCommit

	// Global Fiat-Shamir challenge over every branch's public relations and
	// commitments.
	var allPts []ecc.Point
	for i, branch := range branches {
		allPts = append(allPts, allPoints(branch)...)
		for _, c := range commitments[i] {
			allPts = append(allPts, c.T...)
		}
	}
	E := hashChallenge(order, context, allPts...)

	// Real branch's challenge is whatever makes the simulated challenges
	// sum to E.
	sum := big.NewInt(0)
	for i, e := range challenges {
		if i == realIndex {
			continue
		}
		sum.Add(sum, e)
	}
	eReal := new(big.Int).Sub(E, sum)
	eReal.Mod(eReal, order)
	challenges[realIndex] = eReal

	responsesZ[realIndex] = make([][]*big.Int, len(realBranch))
	for k := range realBranch {
		resp := respond(order, realRandomness[k], realWitnesses[k], eReal)
		responsesZ[realIndex][k] = resp.Z
	}

	proof := &ORProof{Branches: make([]branchProof, n)}
	for i := range branches {
		bp := branchProof{Challenge: challenges[i], Relations: make([]relationProof, len(branches[i]))}
		for k := range branches[i] {
			tBytes := make([][]byte, len(commitments[i][k].T))
			for ti, t := range commitments[i][k].T {
				tBytes[ti] = t.Marshal()
			}
			bp.Relations[k] = relationProof{T: tBytes, Z: responsesZ[i][k]}
		}
		proof.Branches[i] = bp
	}
	return proof, nil
}

// Encode serialises an ORProof to the bytes stored in a Ballot's Proof
// field.
func (p *ORProof) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodeORProof deserialises bytes produced by (*ORProof).Encode.
func DecodeORProof(data []byte) (*ORProof, error) {
	var p ORProof
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("nizk: failed to decode ballot proof: %w", err)
	}
	return &p, nil
}

// VerifyOR checks an ORProof against the same branches (Relations only,
// witnesses are never needed to verify) and context used to produce it.
func VerifyOR(group ecc.Point, branches [][]*Relation, proof *ORProof, context string) error {
	order := group.Order()
	if len(proof.Branches) != len(branches) {
		return fmt.Errorf("%w: branch count mismatch", ErrVerificationFailed)
	}

	unmarshaled := make([][]*commitment, len(branches))
	for i, branch := range branches {
		if len(proof.Branches[i].Relations) != len(branch) {
			return fmt.Errorf("%w: relation count mismatch in branch %d", ErrVerificationFailed, i)
		}
		unmarshaled[i] = make([]*commitment, len(branch))
		for k, rel := range branch {
			rp := proof.Branches[i].Relations[k]
			if len(rp.T) != rel.numEquations() {
				return fmt.Errorf("%w: commitment count mismatch", ErrVerificationFailed)
			}
			T := make([]ecc.Point, len(rp.T))
			for ti, tb := range rp.T {
				p := group.New()
				if err := p.Unmarshal(tb); err != nil {
					return fmt.Errorf("%w: bad commitment point: %v", ErrVerificationFailed, err)
				}
				T[ti] = p
			}
			unmarshaled[i][k] = &commitment{T: T}
		}
	}

	var allPts []ecc.Point
	for i, branch := range branches {
		allPts = append(allPts, allPoints(branch)...)
		for _, c := range unmarshaled[i] {
			allPts = append(allPts, c.T...)
		}
	}
	E := hashChallenge(order, context, allPts...)

	sum := big.NewInt(0)
	for _, bp := range proof.Branches {
		if bp.Challenge == nil {
			return fmt.Errorf("%w: missing branch challenge", ErrVerificationFailed)
		}
		sum.Add(sum, bp.Challenge)
	}
	sum.Mod(sum, order)
	if sum.Cmp(E) != 0 {
		return fmt.Errorf("%w: challenge sum mismatch", ErrVerificationFailed)
	}

	for i, branch := range branches {
		for k, rel := range branch {
			rp := proof.Branches[i].Relations[k]
			if !verify(rel, unmarshaled[i][k], proof.Branches[i].Challenge, rp.Z) {
				return fmt.Errorf("%w: branch %d relation %d", ErrVerificationFailed, i, k)
			}
		}
	}
	return nil
}
