// Package vrf implements a verifiable random function over Ed25519.
//
// For a key pair (x, Y=xG) and input alpha the prover computes H=HashToPoint(alpha)
// and Gamma=xH, then a Chaum-Pedersen proof that log_G(Y) == log_H(Gamma).
// The output is BLAKE2b-256 over 8*Gamma. Because Gamma is fixed by the key
// and alpha, a prover can produce exactly one verifiable output per input.
package vrf

import (
	"bytes"
	"crypto/subtle"
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/suites"
	"golang.org/x/crypto/blake2b"
)

const (
	hashToPointDomain = "cardgame/v1/vrf/h2c"
	challengeDomain   = "cardgame/v1/vrf/challenge"
	outputDomain      = "cardgame/v1/vrf/beta"

	// OutputSize is the length of a VRF output.
	OutputSize = blake2b.Size256
)

var (
	ErrInvalidProof = errors.New("vrf: invalid proof")
	ErrMalformed    = errors.New("vrf: malformed encoding")
)

var suite suites.Suite = suites.MustFind("Ed25519")

var cofactor = suite.Scalar().SetInt64(8)

// ProofSize is Gamma || c || s.
func ProofSize() int {
	return suite.PointLen() + 2*suite.ScalarLen()
}

type PublicKey struct {
	y kyber.Point
}

type PrivateKey struct {
	x   kyber.Scalar
	pub *PublicKey
}

// GenerateKey draws a fresh key pair from the suite's random stream.
func GenerateKey() *PrivateKey {
	x := suite.Scalar().Pick(suite.RandomStream())
	return newPrivateKey(x)
}

func newPrivateKey(x kyber.Scalar) *PrivateKey {
	return &PrivateKey{x: x, pub: &PublicKey{y: suite.Point().Mul(x, nil)}}
}

func (k *PrivateKey) Public() *PublicKey { return k.pub }

func (k *PrivateKey) Bytes() []byte {
	b, _ := k.x.MarshalBinary()
	return b
}

func (k *PrivateKey) Hex() string { return hex.EncodeToString(k.Bytes()) }

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != suite.ScalarLen() {
		return nil, fmt.Errorf("%w: private key is %d bytes", ErrMalformed, len(b))
	}
	x := suite.Scalar()
	if err := x.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return newPrivateKey(x), nil
}

func ParsePrivateKey(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return PrivateKeyFromBytes(b)
}

func (p *PublicKey) Bytes() []byte {
	b, _ := p.y.MarshalBinary()
	return b
}

func (p *PublicKey) Hex() string { return hex.EncodeToString(p.Bytes()) }

func (p *PublicKey) Equal(o *PublicKey) bool {
	return o != nil && p.y.Equal(o.y)
}

func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != suite.PointLen() {
		return nil, fmt.Errorf("%w: public key is %d bytes", ErrMalformed, len(b))
	}
	y := suite.Point()
	if err := y.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if y.Equal(suite.Point().Null()) {
		return nil, fmt.Errorf("%w: identity public key", ErrMalformed)
	}
	return &PublicKey{y: y}, nil
}

func ParsePublicKey(s string) (*PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return PublicKeyFromBytes(b)
}

// Prove returns the output for alpha and a proof of its correctness.
func (k *PrivateKey) Prove(alpha []byte) (beta, proof []byte, err error) {
	h := hashToPoint(alpha)
	gamma := suite.Point().Mul(k.x, h)

	v := suite.Scalar().Pick(suite.RandomStream())
	vG := suite.Point().Mul(v, nil)
	vH := suite.Point().Mul(v, h)

	c, err := challenge(k.pub.y, h, gamma, vG, vH)
	if err != nil {
		return nil, nil, err
	}
	// s = v - c*x
	s := suite.Scalar().Sub(v, suite.Scalar().Mul(c, k.x))

	var buf bytes.Buffer
	for _, m := range []encoding.BinaryMarshaler{gamma, c, s} {
		b, err := m.MarshalBinary()
		if err != nil {
			return nil, nil, err
		}
		buf.Write(b)
	}
	beta, err = output(gamma)
	if err != nil {
		return nil, nil, err
	}
	return beta, buf.Bytes(), nil
}

// Verify checks that proof shows beta is the unique output of pub on alpha.
func Verify(pub *PublicKey, alpha, beta, proof []byte) error {
	if pub == nil {
		return fmt.Errorf("%w: nil public key", ErrInvalidProof)
	}
	if len(beta) != OutputSize || len(proof) != ProofSize() {
		return fmt.Errorf("%w: bad lengths", ErrInvalidProof)
	}
	pl, sl := suite.PointLen(), suite.ScalarLen()

	gamma := suite.Point()
	if err := gamma.UnmarshalBinary(proof[:pl]); err != nil {
		return fmt.Errorf("%w: gamma: %v", ErrInvalidProof, err)
	}
	if gamma.Equal(suite.Point().Null()) {
		return fmt.Errorf("%w: identity gamma", ErrInvalidProof)
	}
	c := suite.Scalar()
	if err := c.UnmarshalBinary(proof[pl : pl+sl]); err != nil {
		return fmt.Errorf("%w: challenge: %v", ErrInvalidProof, err)
	}
	s := suite.Scalar()
	if err := s.UnmarshalBinary(proof[pl+sl:]); err != nil {
		return fmt.Errorf("%w: response: %v", ErrInvalidProof, err)
	}

	h := hashToPoint(alpha)
	// vG = sG + cY, vH = sH + cGamma
	vG := suite.Point().Add(suite.Point().Mul(s, nil), suite.Point().Mul(c, pub.y))
	vH := suite.Point().Add(suite.Point().Mul(s, h), suite.Point().Mul(c, gamma))

	expected, err := challenge(pub.y, h, gamma, vG, vH)
	if err != nil {
		return err
	}
	if !expected.Equal(c) {
		return ErrInvalidProof
	}

	want, err := output(gamma)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(want, beta) != 1 {
		return fmt.Errorf("%w: output does not match proof", ErrInvalidProof)
	}
	return nil
}

// ProofToHash extracts the output from a proof without verifying it.
func ProofToHash(proof []byte) ([]byte, error) {
	if len(proof) != ProofSize() {
		return nil, ErrMalformed
	}
	gamma := suite.Point()
	if err := gamma.UnmarshalBinary(proof[:suite.PointLen()]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return output(gamma)
}

func hashToPoint(alpha []byte) kyber.Point {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(hashToPointDomain))
	h.Write(alpha)
	return suite.Point().Pick(suite.XOF(h.Sum(nil)))
}

func challenge(points ...kyber.Point) (kyber.Scalar, error) {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(challengeDomain))
	for _, p := range points {
		if _, err := p.MarshalTo(h); err != nil {
			return nil, err
		}
	}
	return suite.Scalar().Pick(suite.XOF(h.Sum(nil))), nil
}

// output hashes 8*Gamma; small-order components never reach beta.
func output(gamma kyber.Point) ([]byte, error) {
	cleared := suite.Point().Mul(cofactor, gamma)
	b, err := cleared.MarshalBinary()
	if err != nil {
		return nil, err
	}
	h, _ := blake2b.New256(nil)
	h.Write([]byte(outputDomain))
	h.Write(b)
	return h.Sum(nil), nil
}
