// Package elgamal implements EC-ElGamal encryption, re-encryption and
// small-message decryption (via baby-step giant-step discrete log search)
// over a generic ecc.Point group.
package elgamal

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/lokivote/cbr-voting/crypto/ecc"
)

// RandK draws a fresh scalar in the group's scalar field, suitable as
// ElGamal encryption randomness.
func RandK(group ecc.Point) (*big.Int, error) {
	kBytes := make([]byte, 20)
	if _, err := rand.Read(kBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random k: %w", err)
	}
	k := new(big.Int).SetBytes(kBytes)
	return ecc.BigToFF(group.Order(), k), nil
}

// Encrypt encrypts msg*g under publicKey with fresh randomness, returning
// the ciphertext points and the randomness used.
func Encrypt(publicKey ecc.Point, msg *big.Int) (c1, c2 ecc.Point, k *big.Int, err error) {
	k, err = RandK(publicKey)
	if err != nil {
		return nil, nil, nil, err
	}
	c1, c2, err = EncryptWithK(publicKey, msg, k)
	if err != nil {
		return nil, nil, nil, err
	}
	return c1, c2, k, nil
}

// EncryptWithK encrypts msg*g under publicKey using the explicit randomness
// k. c1 = k*g, c2 = msg*g + k*publicKey.
func EncryptWithK(pubKey ecc.Point, msg, k *big.Int) (c1, c2 ecc.Point, err error) {
	order := pubKey.Order()
	m := new(big.Int).Mod(msg, order)

	c1 = pubKey.New()
	c1.ScalarBaseMult(k)

	s := pubKey.New()
	s.ScalarMult(pubKey, k)

	mPoint := pubKey.New()
	mPoint.ScalarBaseMult(m)

	c2 = pubKey.New()
	c2.Add(mPoint, s)
	return c1, c2, nil
}

// ReEncrypt re-randomises a ciphertext without changing its plaintext: it
// homomorphically adds an encryption of zero under the same key, using
// fresh (or caller-supplied) randomness r.
func ReEncrypt(pubKey ecc.Point, c1, c2 ecc.Point, r *big.Int) (rc1, rc2 ecc.Point, err error) {
	zc1, zc2, err := EncryptWithK(pubKey, big.NewInt(0), r)
	if err != nil {
		return nil, nil, err
	}
	rc1 = pubKey.New()
	rc1.Add(c1, zc1)
	rc2 = pubKey.New()
	rc2.Add(c2, zc2)
	return rc1, rc2, nil
}

// GenerateKey generates a new ElGamal key pair over the given group.
func GenerateKey(group ecc.Point) (publicKey ecc.Point, privateKey *big.Int, err error) {
	order := group.Order()
	d, err := rand.Int(rand.Reader, order)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key scalar: %w", err)
	}
	if d.Sign() == 0 {
		d = big.NewInt(1)
	}
	publicKey = group.New()
	publicKey.SetGenerator()
	publicKey.ScalarMult(publicKey, d)
	return publicKey, d, nil
}

// Decrypt recovers the plaintext scalar message such that c2 - privateKey*c1
// == message*g, searching message in [0, maxMessage] via BabyStepGiantStepECC.
func Decrypt(privateKey *big.Int, c1, c2 ecc.Point, maxMessage uint64) (M ecc.Point, message *big.Int, err error) {
	dC1 := c2.New()
	dC1.ScalarMult(c1, privateKey)
	dC1.Neg(dC1)

	M = c2.New()
	M.Set(c2)
	M.Add(M, dC1)

	G := c2.New()
	G.SetGenerator()

	message, err = BabyStepGiantStepECC(M, G, maxMessage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find discrete log: %w", err)
	}
	return M, message, nil
}

// BabyStepGiantStepECC solves M = x*G for x in [0, maxMessage] using the
// baby-step giant-step algorithm.
func BabyStepGiantStepECC(M, G ecc.Point, maxMessage uint64) (*big.Int, error) {
	mSqrt := uint64(math.Sqrt(float64(maxMessage))) + 1

	babySteps := make(map[string]uint64, mSqrt)
	babyStep := M.New()
	babyStep.SetZero()

	for j := uint64(0); j < mSqrt; j++ {
		babySteps[babyStep.String()] = j
		babyStep.Add(babyStep, G)
	}

	c := M.New()
	c.ScalarBaseMult(new(big.Int).SetUint64(mSqrt))
	c.Neg(c)

	giantStep := M.New()
	giantStep.Set(M)

	for i := uint64(0); i <= mSqrt; i++ {
		if j, found := babySteps[giantStep.String()]; found {
			return new(big.Int).SetUint64(i*mSqrt + j), nil
		}
		giantStep.Add(giantStep, c)
	}
	return nil, fmt.Errorf("failed to compute discrete logarithm using baby-step giant-step")
}

// CheckK reports whether k was the randomness used to produce c1 = k*G.
func CheckK(c1 ecc.Point, k *big.Int) bool {
	check := c1.New()
	check.ScalarBaseMult(k)
	return check.Equal(c1)
}
