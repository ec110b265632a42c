// Package ecc defines a curve-agnostic abstraction over elliptic curve
// group elements, so that the rest of the crypto stack (ElGamal, NIZK
// sigma protocols) never references a concrete curve implementation.
package ecc

import "math/big"

// Point represents an element of an elliptic curve group in affine
// coordinates and the arithmetic operations the rest of the system needs
// on it.
type Point interface {
	// New returns a fresh, zero-valued point on the same curve.
	New() Point

	// Order returns the order of the group (the scalar field modulus q).
	Order() *big.Int

	// Add sets the receiver to a + b.
	Add(a, b Point)

	// SafeAdd is Add guarded by an internal mutex, for use from concurrent
	// callers that share a receiver (e.g. tally accumulation).
	SafeAdd(a, b Point)

	// ScalarMult sets the receiver to scalar * a.
	ScalarMult(a Point, scalar *big.Int)

	// ScalarBaseMult sets the receiver to scalar * g, where g is the group
	// generator.
	ScalarBaseMult(scalar *big.Int)

	// Marshal serializes the point to bytes.
	Marshal() []byte

	// Unmarshal deserializes bytes produced by Marshal into the receiver.
	Unmarshal(buf []byte) error

	// Equal reports whether the receiver and a represent the same point.
	Equal(a Point) bool

	// Neg sets the receiver to -a.
	Neg(a Point)

	// SetZero sets the receiver to the identity element.
	SetZero()

	// Set copies a into the receiver.
	Set(a Point)

	// SetGenerator sets the receiver to the group generator g.
	SetGenerator()

	// String returns a hex representation, for logging.
	String() string

	// Point returns the affine (x, y) coordinates.
	Point() (*big.Int, *big.Int)

	// SetPoint sets the receiver's affine coordinates.
	SetPoint(x, y *big.Int) Point

	// Type identifies the concrete curve implementation (e.g. "bn254").
	Type() string
}

// registry maps a curve's Type() string to a factory for a fresh zero-valued
// point on that curve, so that code decoding a wire-format point (or
// ciphertext) it has never seen a live instance of can construct one purely
// from the CurveType string carried alongside it. Concrete curve packages
// (e.g. crypto/ecc/bn254) register themselves in their init().
var registry = map[string]func() Point{}

// Register associates a curve type name with a factory for fresh points on
// that curve. Intended to be called once from a concrete curve package's
// init().
func Register(curveType string, factory func() Point) {
	registry[curveType] = factory
}

// New returns a fresh zero-valued point for the named curve type, or an
// error if no curve package registered that name.
func New(curveType string) (Point, error) {
	factory, ok := registry[curveType]
	if !ok {
		return nil, ErrUnknownCurve(curveType)
	}
	return factory(), nil
}

// ErrUnknownCurve reports a curve type string with no registered factory.
type ErrUnknownCurve string

func (e ErrUnknownCurve) Error() string {
	return "ecc: unknown curve type " + string(e)
}

// BigToFF reduces iv modulo baseField, returning 0 if iv already equals
// baseField. Used to fold oversized random scalars back into the field.
func BigToFF(baseField, iv *big.Int) *big.Int {
	z := big.NewInt(0)
	if c := iv.Cmp(baseField); c == 0 {
		return z
	} else if c != 1 && iv.Cmp(z) != -1 {
		return iv
	}
	return z.Mod(iv, baseField)
}
