package service

import (
	"context"
	"errors"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/logger"
)

const sweepBatch = 100

// Sweeper expires sessions whose deadline has passed so escrow never lingers.
type Sweeper struct {
	sessions *SessionService
	interval time.Duration
}

func NewSweeper(sessions *SessionService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{sessions: sessions, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.Sweep(ctx); err != nil {
				logger.Error("expiry sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("expired sessions", "count", n)
			}
		}
	}
}

// Sweep expires one batch and returns how many sessions moved.
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := w.sessions.host.ExpiredSessions(ctx, w.sessions.now(), sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		_, err := w.sessions.Expire(ctx, id)
		switch {
		case err == nil:
			n++
		case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrDeadlineNotReached):
			// raced with another step
		default:
			logger.Warn("expire session failed", "session_id", id, "error", err)
		}
	}
	return n, nil
}
