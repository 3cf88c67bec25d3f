package randomness

import (
	"context"
	"sync"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/vrf"
)

// Fulfiller accepts oracle responses.
type Fulfiller interface {
	FulfillRandomness(ctx context.Context, nonce string, raw, proof []byte) (*domain.Session, error)
}

// Respond computes the oracle's answer for req.
func Respond(key *vrf.PrivateKey, req *domain.RandomnessRequest) (raw, proof []byte, err error) {
	return key.Prove(req.Alpha())
}

// LocalOracle answers requests in-process after a delay. It stands in for an
// external oracle network in development and tests.
type LocalOracle struct {
	key   *vrf.PrivateKey
	delay time.Duration

	mu     sync.RWMutex
	target Fulfiller
	wg     sync.WaitGroup
}

func NewLocalOracle(key *vrf.PrivateKey, delay time.Duration) *LocalOracle {
	return &LocalOracle{key: key, delay: delay}
}

// Bind sets where responses are delivered.
func (o *LocalOracle) Bind(f Fulfiller) {
	o.mu.Lock()
	o.target = f
	o.mu.Unlock()
}

// Submit must not deliver synchronously: it runs inside the issuing step.
func (o *LocalOracle) Submit(_ context.Context, req *domain.RandomnessRequest) error {
	r := req.Clone()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if o.delay > 0 {
			time.Sleep(o.delay)
		}
		o.mu.RLock()
		target := o.target
		o.mu.RUnlock()
		if target == nil {
			logger.Warn("local oracle has no fulfiller bound", "nonce", r.Nonce)
			return
		}

		raw, proof, err := Respond(o.key, r)
		if err != nil {
			logger.Error("local oracle prove failed", "error", err, "nonce", r.Nonce)
			return
		}
		if _, err := target.FulfillRandomness(context.Background(), r.Nonce, raw, proof); err != nil {
			logger.Warn("local oracle fulfillment rejected", "error", err, "nonce", r.Nonce, "session_id", r.SessionID)
		}
	}()
	return nil
}

// Wait blocks until every submitted request has been answered.
func (o *LocalOracle) Wait() {
	o.wg.Wait()
}
