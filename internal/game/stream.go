package game

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
)

const dealDomain = "cardgame/v1/deal"

const (
	MinSeedSize = 16
	MaxSeedSize = blake2b.Size
)

// Stream is a deterministic ChaCha20 keystream used as the dealer's random source.
//
// The key is BLAKE2b-256 keyed by the seed over the domain tag and the session
// id, so one seed never yields the same stream for two sessions.
type Stream struct {
	cipher *chacha20.Cipher
	buf    [8]byte
}

// NewStream derives a stream from a verified seed and the session it is bound to.
func NewStream(seed []byte, sessionID string) (*Stream, error) {
	if len(seed) < MinSeedSize || len(seed) > MaxSeedSize {
		return nil, fmt.Errorf("seed must be %d to %d bytes, got %d", MinSeedSize, MaxSeedSize, len(seed))
	}
	h, err := blake2b.New256(seed)
	if err != nil {
		return nil, fmt.Errorf("derive deal key: %w", err)
	}
	h.Write([]byte(dealDomain))
	h.Write([]byte(sessionID))
	key := h.Sum(nil)

	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("init chacha20: %w", err)
	}
	return &Stream{cipher: c}, nil
}

// Uint64 returns the next 8 keystream bytes as a little-endian integer.
func (s *Stream) Uint64() uint64 {
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.cipher.XORKeyStream(s.buf[:], s.buf[:])
	return binary.LittleEndian.Uint64(s.buf[:])
}

// UintN returns a uniform integer in [0, n). Values below 2^64 mod n are
// rejected so every residue is equally likely.
func (s *Stream) UintN(n uint64) (uint64, error) {
	if n == 0 {
		return 0, errors.New("UintN: n must be positive")
	}
	threshold := -n % n
	for {
		r := s.Uint64()
		if r >= threshold {
			return r % n, nil
		}
	}
}

// Shuffle is Fisher-Yates driven by UintN.
func (s *Stream) Shuffle(cards []Card) error {
	for i := len(cards) - 1; i > 0; i-- {
		j, err := s.UintN(uint64(i + 1))
		if err != nil {
			return err
		}
		cards[i], cards[j] = cards[j], cards[i]
	}
	return nil
}
