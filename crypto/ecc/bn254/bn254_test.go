package bn254

import (
	"bytes"
	"encoding/gob"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/lokivote/cbr-voting/crypto/ecc"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	c := qt.New(t)
	p := New()
	p.ScalarBaseMult(big.NewInt(987654321))

	buf := p.Marshal()
	q := New()
	c.Assert(q.Unmarshal(buf), qt.IsNil)
	c.Assert(q.Equal(p), qt.IsTrue)
}

func TestScalarArithmetic(t *testing.T) {
	c := qt.New(t)

	// 3*g + 4*g == 7*g
	a := New()
	a.ScalarBaseMult(big.NewInt(3))
	b := New()
	b.ScalarBaseMult(big.NewInt(4))
	sum := New()
	sum.Add(a, b)

	expected := New()
	expected.ScalarBaseMult(big.NewInt(7))
	c.Assert(sum.Equal(expected), qt.IsTrue)

	// ScalarMult over a non-generator base agrees with ScalarBaseMult.
	doubled := New()
	doubled.ScalarMult(a, big.NewInt(2))
	six := New()
	six.ScalarBaseMult(big.NewInt(6))
	c.Assert(doubled.Equal(six), qt.IsTrue)
}

func TestNegAndZero(t *testing.T) {
	c := qt.New(t)
	p := New()
	p.ScalarBaseMult(big.NewInt(5))

	neg := New()
	neg.Neg(p)
	sum := New()
	sum.Add(p, neg)

	zero := New()
	zero.SetZero()
	c.Assert(sum.Equal(zero), qt.IsTrue)
}

func TestOrderTimesGeneratorIsIdentity(t *testing.T) {
	c := qt.New(t)
	p := New()
	p.ScalarBaseMult(p.Order())

	zero := New()
	zero.SetZero()
	c.Assert(p.Equal(zero), qt.IsTrue)
}

func TestRegistry(t *testing.T) {
	c := qt.New(t)
	p, err := ecc.New(CurveType)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Type(), qt.Equals, CurveType)

	_, err = ecc.New("no-such-curve")
	c.Assert(err, qt.IsNotNil)
}

func TestGobRoundTrip(t *testing.T) {
	c := qt.New(t)
	p := New()
	p.ScalarBaseMult(big.NewInt(42))

	var buf bytes.Buffer
	c.Assert(gob.NewEncoder(&buf).Encode(p), qt.IsNil)

	q := New().(*G1)
	c.Assert(gob.NewDecoder(&buf).Decode(q), qt.IsNil)
	c.Assert(q.Equal(p), qt.IsTrue)
}
