package obfuscate

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/ecc/bn254"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/crypto/hash"
	"github.com/lokivote/cbr-voting/crypto/nizk"
	"github.com/lokivote/cbr-voting/types"
	"github.com/lokivote/cbr-voting/vs/ballotctx"
)

// buildContext assembles a ballotctx.Context directly, the same shape
// ballotctx.Fetch would return after a round-trip to the Bulletin Board,
// with a prior ballot whose claimed index list is off by lvShift (0 for an
// honest prior ballot).
func buildContext(t *testing.T, numCandidates int, lvShift int64) (*ballotctx.Context, *big.Int, ecc.Point) {
	t.Helper()
	c := qt.New(t)
	group := bn254.New()

	pkTS, _, err := elgamal.GenerateKey(group)
	c.Assert(err, qt.IsNil)
	pkVS, skVS, err := elgamal.GenerateKey(group)
	c.Assert(err, qt.IsNil)
	upk, _, err := elgamal.GenerateKey(group)
	c.Assert(err, qt.IsNil)

	makeBallot := func(lv, lid int64) types.Ballot {
		ctv := make([]*elgamal.Ciphertext, numCandidates)
		for i := range ctv {
			ctv[i], err = elgamal.NewCiphertext(group).Encrypt(big.NewInt(0), pkTS, nil)
			c.Assert(err, qt.IsNil)
		}
		ctlv, err := elgamal.NewCiphertext(group).Encrypt(big.NewInt(lv), pkVS, nil)
		c.Assert(err, qt.IsNil)
		ctlid, err := elgamal.NewCiphertext(group).Encrypt(big.NewInt(lid), pkVS, nil)
		c.Assert(err, qt.IsNil)
		return types.Ballot{
			VoterID:    "v1",
			ElectionID: "e1",
			UPK:        upk.Marshal(),
			CTV:        ctv,
			CTLV:       ctlv,
			CTLID:      ctlid,
		}
	}

	last := makeBallot(1+lvShift, 1)
	previousLast := makeBallot(0, 0)

	return &ballotctx.Context{
		Params: nizk.BallotParams{
			Group: group,
			PkTS:  pkTS,
			PkVS:  pkVS,
			UPK:   upk,
		},
		UPKBytes:     upk.Marshal(),
		Last:         last,
		PreviousLast: previousLast,
	}, skVS, group
}

func TestObfuscationWithHonestPriorBallot(t *testing.T) {
	c := qt.New(t)
	bctx, skVS, _ := buildContext(t, 2, 0)

	b, err := Ballot(bctx, skVS, "e1", "v1", bctx.UPKBytes)
	c.Assert(err, qt.IsNil)
	c.Assert(b.VoterID, qt.Equals, "v1")
	c.Assert(b.ElectionID, qt.Equals, "e1")
	c.Assert(b.CTV, qt.HasLen, 2)
	c.Assert(b.IsB0(), qt.IsFalse)

	// The recorded hash matches the ballot's contents.
	h, err := hash.BallotHash(b.VoterID, b.UPK, b.CTV, b.CTLV, b.CTLID, b.Proof)
	c.Assert(err, qt.IsNil)
	c.Assert(h, qt.Equals, b.Hash)

	// The proof verifies against the same prior-ballot statement any
	// observer would derive from the Bulletin Board.
	proof, err := nizk.DecodeORProof(b.Proof)
	c.Assert(err, qt.IsNil)
	c.Assert(nizk.VerifyBallotProof(bctx.Params, bctx.PriorBallotContext(), b.CTV, b.CTLV, b.CTLID, proof), qt.IsNil)

	// Re-encryptions never reuse the source points.
	c.Assert(b.CTV[0].C1.Equal(bctx.Last.CTV[0].C1), qt.IsFalse)
}

func TestObfuscationWithBadPriorIndexList(t *testing.T) {
	c := qt.New(t)
	// The prior ballot's claimed list is off by 2, forcing the R3 path
	// built from the previous-last ctv.
	bctx, skVS, _ := buildContext(t, 2, 2)

	b, err := Ballot(bctx, skVS, "e1", "v1", bctx.UPKBytes)
	c.Assert(err, qt.IsNil)

	proof, err := nizk.DecodeORProof(b.Proof)
	c.Assert(err, qt.IsNil)
	c.Assert(nizk.VerifyBallotProof(bctx.Params, bctx.PriorBallotContext(), b.CTV, b.CTLV, b.CTLID, proof), qt.IsNil)
}
