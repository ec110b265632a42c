package nizk

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
)

// MaxCBRIndexBitmask bounds the per-voter CBR length this system supports:
// R3's "the prior ballot's index-list ciphertext decrypts to a non-zero
// value" sub-statement is proved by an explicit disjunction over the
// candidate non-zero values 1..MaxCBRIndexBitmask, since proving knowledge
// of a group element's plaintext being non-zero in general (without an
// upper bound) needs either a range proof or an algebraic structure this
// system's plain prime-order group does not provide. A real deployment
// would size this to the maximum election length in ballots; 64 comfortably
// covers any election this scheduler would realistically produce.
const MaxCBRIndexBitmask = 64

// randScalar draws a uniform scalar in [0, order).
func randScalar(order *big.Int) (*big.Int, error) {
	return rand.Int(rand.Reader, order)
}

func rndFunc(order *big.Int) func() (*big.Int, error) {
	return func() (*big.Int, error) { return randScalar(order) }
}

// chaumPedersen builds the two-equation, shared-witness relation
// Y1 = w*Base1, Y2 = w*Base2.
func chaumPedersen(base1, y1, base2, y2 ecc.Point) *Relation {
	return &Relation{
		Bases: [][]ecc.Point{{base1}, {base2}},
		Y:     []ecc.Point{y1, y2},
	}
}

// schnorr builds the plain single-equation relation Y = w*base (knowledge
// of a discrete logarithm).
func schnorr(base, y ecc.Point) *Relation {
	return &Relation{
		Bases: [][]ecc.Point{{base}},
		Y:     []ecc.Point{y},
	}
}

// opening builds the two-witness (value, randomness) relation for an
// ElGamal ciphertext ct = Enc(pk, value, randomness): ct.C1 = randomness*g,
// ct.C2 = value*g + randomness*pk.
func opening(g, pk ecc.Point, ct *elgamal.Ciphertext) *Relation {
	return &Relation{
		Bases: [][]ecc.Point{
			{nil, g},
			{g, pk},
		},
		Y: []ecc.Point{ct.C1, ct.C2},
	}
}

// reEncryption builds the relation proving diff (= target - source) is an
// encryption of zero under pk with the given randomness witness: i.e. that
// target is a re-encryption of source.
func reEncryption(g, pk ecc.Point, diff *elgamal.Ciphertext) *Relation {
	return chaumPedersen(g, diff.C1, pk, diff.C2)
}

// BallotParams carries the public parameters a ballot's NIZK is built and
// verified against.
type BallotParams struct {
	Group ecc.Point // curve instance used purely as a New()/Order() factory
	PkTS  ecc.Point
	PkVS  ecc.Point
	UPK   ecc.Point
}

// PriorBallotContext is the ct_i / (c0,c1) derived context computed from
// the voter's last and previous-last CBR entries, as defined in the
// specification's proof statement for R1/R2/R3.
type PriorBallotContext struct {
	CTi         *elgamal.Ciphertext // 2 * ctlid* of the last ballot
	DiffCT      *elgamal.Ciphertext // ctlv* - ctlid* of the last ballot
	LastCTV     []*elgamal.Ciphertext
	PrevLastCTV []*elgamal.Ciphertext
}

// BallotWitness carries the secret data needed to build each kind of real
// branch. Only the fields relevant to the branch actually being proved
// need be populated.
type BallotWitness struct {
	// R1 (honest voter)
	SK             *big.Int   // voter's secret key matching UPK
	CandidateIndex int        // index voted for, or -1 for abstention
	CandidateRand  []*big.Int // per-candidate ctv randomness, len == numCandidates
	LVValue        *big.Int
	LVRand         *big.Int
	LIDRand        *big.Int // ctlid re-encryption randomness of ct_i

	// R2/R3 (VS obfuscation)
	SKVS        *big.Int   // VS's secret key
	CTVRand     []*big.Int // per-candidate re-encryption randomness
	CTLVRand    *big.Int
	CTLIDRand   *big.Int
	NonZeroTerm *big.Int // the recovered non-zero plaintext value (R3 only)
}

func g(group ecc.Point) ecc.Point {
	p := group.New()
	p.SetGenerator()
	return p
}

func valuePoint(group ecc.Point, value int64) ecc.Point {
	p := group.New()
	p.ScalarBaseMult(big.NewInt(value))
	return p
}

// r1OneHotBranch builds the relations proving the submitted ballot is an
// honest vote for candidateIndex (or an abstention, when candidateIndex <
// 0): knowledge of sk matching UPK, a one-hot (or all-zero) encoding of
// ctv under pk_TS, and re-encryptions of ct_i for ctlv/ctlid.
func r1OneHotBranch(params BallotParams, ctx PriorBallotContext, ctv []*elgamal.Ciphertext, ctlv, ctlid *elgamal.Ciphertext, candidateIndex int) []*Relation {
	gen := g(params.Group)
	rels := []*Relation{
		schnorr(gen, params.UPK),
	}
	for i, c := range ctv {
		value := int64(0)
		if i == candidateIndex {
			value = 1
		}
		target := c.C2.New()
		vp := valuePoint(params.Group, value)
		negVP := vp.New()
		negVP.Neg(vp)
		target.Add(c.C2, negVP)
		rels = append(rels, chaumPedersen(gen, c.C1, params.PkTS, target))
	}
	rels = append(rels, opening(gen, params.PkVS, ctlv))
	lidDiff := elgamal.NewCiphertext(params.Group).Sub(ctlid, ctx.CTi)
	rels = append(rels, reEncryption(gen, params.PkVS, lidDiff))
	return rels
}

func r1OneHotWitness(w BallotWitness) [][]*big.Int {
	witnesses := [][]*big.Int{{w.SK}}
	for _, r := range w.CandidateRand {
		witnesses = append(witnesses, []*big.Int{r})
	}
	witnesses = append(witnesses, []*big.Int{w.LVValue, w.LVRand})
	witnesses = append(witnesses, []*big.Int{w.LIDRand})
	return witnesses
}

// vsObfuscationBranch builds the relations proving the submitted ballot is
// a VS obfuscation: the secret key sk_VS both matches pk_VS and decrypts
// diffCT to targetValue (0 for R2, a specific non-zero value for R3), and
// ctv/ctlv/ctlid are re-encryptions of sourceCTV/ct_i/ct_i.
func vsObfuscationBranch(params BallotParams, ctx PriorBallotContext, ctv []*elgamal.Ciphertext, ctlv, ctlid *elgamal.Ciphertext, sourceCTV []*elgamal.Ciphertext, targetValue int64) []*Relation {
	gen := g(params.Group)

	shifted := ctx.DiffCT.C2.New()
	vp := valuePoint(params.Group, targetValue)
	negVP := vp.New()
	negVP.Neg(vp)
	shifted.Add(ctx.DiffCT.C2, negVP)

	rels := []*Relation{
		chaumPedersen(gen, params.PkVS, ctx.DiffCT.C1, shifted),
	}
	for i, c := range ctv {
		diff := elgamal.NewCiphertext(params.Group).Sub(c, sourceCTV[i])
		rels = append(rels, reEncryption(gen, params.PkTS, diff))
	}
	lvDiff := elgamal.NewCiphertext(params.Group).Sub(ctlv, ctx.CTi)
	rels = append(rels, reEncryption(gen, params.PkVS, lvDiff))
	lidDiff := elgamal.NewCiphertext(params.Group).Sub(ctlid, ctx.CTi)
	rels = append(rels, reEncryption(gen, params.PkVS, lidDiff))
	return rels
}

func vsObfuscationWitness(w BallotWitness) [][]*big.Int {
	witnesses := [][]*big.Int{{w.SKVS}}
	for _, r := range w.CTVRand {
		witnesses = append(witnesses, []*big.Int{r})
	}
	witnesses = append(witnesses, []*big.Int{w.CTLVRand})
	witnesses = append(witnesses, []*big.Int{w.CTLIDRand})
	return witnesses
}

// branchLayout records, for a built set of top-level OR branches, which
// index corresponds to which named branch, so Prove/Verify agree on
// ordering without re-deriving it.
type branchLayout struct {
	r2Index       int
	r3Base        int // r3Base+k-1 is the branch for non-zero value k
	oneHotBase    int // oneHotBase+i is the one-hot branch for candidate i
	abstentionIdx int
	numCandidates int
}

func buildAllBranches(params BallotParams, ctx PriorBallotContext, ctv []*elgamal.Ciphertext, ctlv, ctlid *elgamal.Ciphertext) ([][]*Relation, branchLayout) {
	n := len(ctv)
	var branches [][]*Relation
	layout := branchLayout{numCandidates: n}

	layout.r2Index = len(branches)
	branches = append(branches, vsObfuscationBranch(params, ctx, ctv, ctlv, ctlid, ctx.LastCTV, 0))

	layout.r3Base = len(branches)
	for k := int64(1); k <= MaxCBRIndexBitmask; k++ {
		branches = append(branches, vsObfuscationBranch(params, ctx, ctv, ctlv, ctlid, ctx.PrevLastCTV, k))
	}

	layout.oneHotBase = len(branches)
	for i := 0; i < n; i++ {
		branches = append(branches, r1OneHotBranch(params, ctx, ctv, ctlv, ctlid, i))
	}

	layout.abstentionIdx = len(branches)
	branches = append(branches, r1OneHotBranch(params, ctx, ctv, ctlv, ctlid, -1))

	return branches, layout
}

// context string used for Fiat-Shamir domain separation of the ballot
// disjunction (distinguishing it from the tally proof's statement).
const ballotProofContext = "cbr-voting/ballot-proof/v1"

// ProveR1 proves the submitted ballot is an honest voter cast for
// candidateIndex (or an abstention if candidateIndex < 0).
func ProveR1(params BallotParams, ctx PriorBallotContext, ctv []*elgamal.Ciphertext, ctlv, ctlid *elgamal.Ciphertext, candidateIndex int, w BallotWitness) (*ORProof, error) {
	branches, layout := buildAllBranches(params, ctx, ctv, ctlv, ctlid)
	real := layout.abstentionIdx
	if candidateIndex >= 0 {
		real = layout.oneHotBase + candidateIndex
	}
	return ProveOR(params.Group, branches, real, r1OneHotWitness(w), ballotProofContext, rndFunc(params.Group.Order()))
}

// ProveR2 proves the submitted ballot is a VS obfuscation built from a
// prior ballot whose reported index list was correct.
func ProveR2(params BallotParams, ctx PriorBallotContext, ctv []*elgamal.Ciphertext, ctlv, ctlid *elgamal.Ciphertext, w BallotWitness) (*ORProof, error) {
	branches, layout := buildAllBranches(params, ctx, ctv, ctlv, ctlid)
	return ProveOR(params.Group, branches, layout.r2Index, vsObfuscationWitness(w), ballotProofContext, rndFunc(params.Group.Order()))
}

// ProveR3 proves the submitted ballot is a VS obfuscation built from the
// previous-last ballot because the prior ballot's reported index list was
// wrong (decrypting diffCT to the given non-zero value).
func ProveR3(params BallotParams, ctx PriorBallotContext, ctv []*elgamal.Ciphertext, ctlv, ctlid *elgamal.Ciphertext, w BallotWitness) (*ORProof, error) {
	if w.NonZeroTerm == nil || w.NonZeroTerm.Sign() <= 0 || w.NonZeroTerm.Int64() > MaxCBRIndexBitmask {
		return nil, fmt.Errorf("nizk: R3 non-zero term out of supported range [1,%d]", MaxCBRIndexBitmask)
	}
	branches, layout := buildAllBranches(params, ctx, ctv, ctlv, ctlid)
	real := layout.r3Base + int(w.NonZeroTerm.Int64()) - 1
	return ProveOR(params.Group, branches, real, vsObfuscationWitness(w), ballotProofContext, rndFunc(params.Group.Order()))
}

// VerifyBallotProof verifies a ballot's NIZK proof against the R1 ∨ R2 ∨ R3
// disjunction built from the election's public parameters and the prior
// CBR context, without learning which branch was real.
func VerifyBallotProof(params BallotParams, ctx PriorBallotContext, ctv []*elgamal.Ciphertext, ctlv, ctlid *elgamal.Ciphertext, proof *ORProof) error {
	branches, _ := buildAllBranches(params, ctx, ctv, ctlv, ctlid)
	return VerifyOR(params.Group, branches, proof, ballotProofContext)
}
