// Package randomness issues randomness requests bound to a session and
// accepts only proof-backed fulfillments for the exact nonce issued.
package randomness

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/ledger"
	"github.com/vilass86/cardgame/internal/vrf"

	"golang.org/x/crypto/blake2b"
)

const (
	nonceDomain   = "cardgame/v1/nonce"
	nonceSequence = "randomness_nonce"
	entropySize   = 32
)

// Oracle delivers a request to the randomness provider. Submit runs inside
// the issuing step; an error aborts the request.
type Oracle interface {
	Submit(ctx context.Context, req *domain.RandomnessRequest) error
}

type Coordinator struct {
	pub     *vrf.PublicKey
	oracle  Oracle
	entropy io.Reader
	now     func() time.Time
}

func NewCoordinator(pub *vrf.PublicKey, oracle Oracle) *Coordinator {
	return &Coordinator{
		pub:     pub,
		oracle:  oracle,
		entropy: rand.Reader,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

func (c *Coordinator) PublicKey() *vrf.PublicKey { return c.pub }

// Request creates a pending request for s and hands it to the oracle.
// The nonce mixes a persisted counter, the session id and fresh entropy, so
// nobody can precompute a proof for it before it exists.
func (c *Coordinator) Request(ctx context.Context, tx ledger.Tx, s *domain.Session) (*domain.RandomnessRequest, error) {
	seq, err := tx.NextSequence(ctx, nonceSequence)
	if err != nil {
		return nil, fmt.Errorf("nonce sequence: %w", err)
	}
	nonce, err := c.newNonce(seq, s.ID)
	if err != nil {
		return nil, err
	}

	req := &domain.RandomnessRequest{
		Nonce:       nonce,
		SessionID:   s.ID,
		Status:      domain.RequestPending,
		RequestedAt: c.now(),
		ExpiresAt:   s.ExpiresAt,
	}
	if err := tx.InsertRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("store request: %w", err)
	}
	if err := c.oracle.Submit(ctx, req); err != nil {
		return nil, fmt.Errorf("submit to oracle: %w", err)
	}
	return req, nil
}

func (c *Coordinator) newNonce(seq uint64, sessionID string) (string, error) {
	var entropy [entropySize]byte
	if _, err := io.ReadFull(c.entropy, entropy[:]); err != nil {
		return "", fmt.Errorf("nonce entropy: %w", err)
	}
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], seq)

	h, _ := blake2b.New256(nil)
	h.Write([]byte(nonceDomain))
	h.Write(counter[:])
	h.Write([]byte(sessionID))
	h.Write(entropy[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fulfill validates a response and marks the request fulfilled. Checks run in
// a fixed order: unknown nonce, already fulfilled, expired, then the proof.
func (c *Coordinator) Fulfill(ctx context.Context, tx ledger.Tx, nonce string, raw, proof []byte) (*domain.RandomnessRequest, error) {
	req, err := tx.Request(ctx, nonce)
	if err != nil {
		return nil, err
	}
	now := c.now()
	switch req.Status {
	case domain.RequestFulfilled:
		return nil, fmt.Errorf("%w: nonce %s", domain.ErrAlreadyFulfilled, nonce)
	case domain.RequestExpired, domain.RequestRejected:
		return nil, fmt.Errorf("%w: request %s is %s", domain.ErrDeadlinePassed, nonce, req.Status)
	}
	if !now.Before(req.ExpiresAt) {
		return nil, fmt.Errorf("%w: request %s expired at %s", domain.ErrDeadlinePassed, nonce, req.ExpiresAt.Format(time.RFC3339))
	}
	if now.Before(req.RequestedAt) {
		return nil, fmt.Errorf("%w: fulfillment predates request", domain.ErrInvalidState)
	}

	if err := vrf.Verify(c.pub, req.Alpha(), raw, proof); err != nil {
		if errors.Is(err, vrf.ErrInvalidProof) || errors.Is(err, vrf.ErrMalformed) {
			return nil, fmt.Errorf("%w: %v", domain.ErrProofVerificationFailed, err)
		}
		return nil, err
	}

	req.Status = domain.RequestFulfilled
	req.RawValue = append([]byte(nil), raw...)
	req.Proof = append([]byte(nil), proof...)
	req.FulfilledAt = &now
	if err := tx.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Expire retires a pending request so its nonce can never be fulfilled.
func (c *Coordinator) Expire(ctx context.Context, tx ledger.Tx, nonce string) error {
	req, err := tx.Request(ctx, nonce)
	if err != nil {
		return err
	}
	if req.Status != domain.RequestPending {
		return nil
	}
	req.Status = domain.RequestExpired
	return tx.UpdateRequest(ctx, req)
}

// VerifyStored re-checks a fulfilled request against the configured key.
func (c *Coordinator) VerifyStored(req *domain.RandomnessRequest) error {
	if req.Status != domain.RequestFulfilled {
		return fmt.Errorf("%w: request %s is %s", domain.ErrInvalidState, req.Nonce, req.Status)
	}
	if err := vrf.Verify(c.pub, req.Alpha(), req.RawValue, req.Proof); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProofVerificationFailed, err)
	}
	return nil
}
