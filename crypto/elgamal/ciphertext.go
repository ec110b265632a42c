package elgamal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/lokivote/cbr-voting/crypto/ecc"
)

// Ciphertext is an ElGamal pair (C1, C2) = (r*g, m*g + r*pk) encrypting a
// group element m*g under pk with randomness r.
type Ciphertext struct {
	C1 ecc.Point
	C2 ecc.Point
}

// NewCiphertext returns a zero-valued Ciphertext on the same curve as group.
func NewCiphertext(group ecc.Point) *Ciphertext {
	return &Ciphertext{C1: group.New(), C2: group.New()}
}

// Encrypt encrypts message under publicKey, using k if non-nil or fresh
// randomness otherwise, and stores the result in z.
func (z *Ciphertext) Encrypt(message *big.Int, publicKey ecc.Point, k *big.Int) (*Ciphertext, error) {
	var err error
	if k == nil {
		k, err = RandK(publicKey)
		if err != nil {
			return nil, fmt.Errorf("elgamal encryption failed: %w", err)
		}
	}
	c1, c2, err := EncryptWithK(publicKey, message, k)
	if err != nil {
		return nil, fmt.Errorf("elgamal encryption failed: %w", err)
	}
	z.C1, z.C2 = c1, c2
	return z, nil
}

// ReEncrypt re-randomises z under publicKey with randomness r (or fresh
// randomness if r is nil), without changing the encrypted plaintext.
func (z *Ciphertext) ReEncrypt(publicKey ecc.Point, r *big.Int) (*Ciphertext, error) {
	var err error
	if r == nil {
		r, err = RandK(publicKey)
		if err != nil {
			return nil, fmt.Errorf("elgamal re-encryption failed: %w", err)
		}
	}
	c1, c2, err := ReEncrypt(publicKey, z.C1, z.C2, r)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{C1: c1, C2: c2}, nil
}

// Add sets z to the homomorphic sum x + y (a ciphertext of the sum of the
// two plaintexts, under the key both were encrypted with) and returns z.
func (z *Ciphertext) Add(x, y *Ciphertext) *Ciphertext {
	z.C1.SafeAdd(x.C1, y.C1)
	z.C2.SafeAdd(x.C2, y.C2)
	return z
}

// Sub sets z to the homomorphic difference x - y and returns z.
func (z *Ciphertext) Sub(x, y *Ciphertext) *Ciphertext {
	negYC1 := y.C1.New()
	negYC1.Neg(y.C1)
	negYC2 := y.C2.New()
	negYC2.Neg(y.C2)
	z.C1.SafeAdd(x.C1, negYC1)
	z.C2.SafeAdd(x.C2, negYC2)
	return z
}

// ScalarMul sets z to k*x component-wise (a ciphertext of k times x's
// plaintext) and returns z. Used to build ct_i = 2*ctlid.
func (z *Ciphertext) ScalarMul(x *Ciphertext, k *big.Int) *Ciphertext {
	z.C1.ScalarMult(x.C1, k)
	z.C2.ScalarMult(x.C2, k)
	return z
}

// Clone returns a deep copy of z.
func (z *Ciphertext) Clone() *Ciphertext {
	c := &Ciphertext{C1: z.C1.New(), C2: z.C2.New()}
	c.C1.Set(z.C1)
	c.C2.Set(z.C2)
	return c
}

// String returns a human-readable representation for logging.
func (z *Ciphertext) String() string {
	if z == nil || z.C1 == nil || z.C2 == nil {
		return "{C1: nil, C2: nil}"
	}
	return fmt.Sprintf("{C1: %s, C2: %s}", z.C1.String(), z.C2.String())
}

// wireCiphertext is the base64-in-JSON wire format the rest of the system
// exchanges over HTTP (see the Bulletin Board's ciphertext blob columns).
type wireCiphertext struct {
	CurveType string `json:"curveType"`
	C1        string `json:"c1"`
	C2        string `json:"c2"`
}

// MarshalJSON encodes z as base64-encoded marshaled points, as stored and
// transmitted by the Bulletin Board.
func (z *Ciphertext) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCiphertext{
		CurveType: z.C1.Type(),
		C1:        base64.StdEncoding.EncodeToString(z.C1.Marshal()),
		C2:        base64.StdEncoding.EncodeToString(z.C2.Marshal()),
	})
}

// UnmarshalJSON decodes z from the base64-in-JSON wire format. If z.C1/z.C2
// are already non-nil (as returned by NewCiphertext), those point instances
// are reused; otherwise fresh points are constructed from the wire's
// CurveType via ecc.New, so a zero-valued Ciphertext can be decoded directly
// (e.g. as a struct field via encoding/json) without the caller needing to
// know the curve in advance.
func (z *Ciphertext) UnmarshalJSON(data []byte) error {
	var w wireCiphertext
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if z.C1 == nil {
		p, err := ecc.New(w.CurveType)
		if err != nil {
			return fmt.Errorf("ciphertext: %w", err)
		}
		z.C1 = p
	}
	if z.C2 == nil {
		p, err := ecc.New(w.CurveType)
		if err != nil {
			return fmt.Errorf("ciphertext: %w", err)
		}
		z.C2 = p
	}
	c1, err := base64.StdEncoding.DecodeString(w.C1)
	if err != nil {
		return fmt.Errorf("ciphertext: invalid c1 base64: %w", err)
	}
	c2, err := base64.StdEncoding.DecodeString(w.C2)
	if err != nil {
		return fmt.Errorf("ciphertext: invalid c2 base64: %w", err)
	}
	if err := z.C1.Unmarshal(c1); err != nil {
		return fmt.Errorf("ciphertext: invalid c1 point: %w", err)
	}
	if err := z.C2.Unmarshal(c2); err != nil {
		return fmt.Errorf("ciphertext: invalid c2 point: %w", err)
	}
	return nil
}
