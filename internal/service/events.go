package service

import (
	"context"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/logger"
)

// EventSink receives events after the producing step commits.
type EventSink interface {
	Publish(ctx context.Context, e domain.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, e domain.Event)

func (f EventSinkFunc) Publish(ctx context.Context, e domain.Event) { f(ctx, e) }

// LogSink writes every event to the structured log.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, e domain.Event) {
	logger.Info("session event",
		"kind", e.Kind,
		"session_id", e.SessionID,
		"state", e.State,
		"address", e.Address,
		"amount", e.Amount,
	)
}

// emitter collects events inside a step. They are dropped if the step fails.
type emitter struct {
	at     time.Time
	events []domain.Event
}

func (em *emitter) emit(kind domain.EventKind, s *domain.Session, addr string, amount int64, data map[string]interface{}) {
	em.events = append(em.events, domain.Event{
		Kind:      kind,
		SessionID: s.ID,
		State:     s.State,
		Address:   addr,
		Amount:    amount,
		Data:      data,
		At:        em.at,
	})
}

// refunded reports whether this step already paid addr a refund.
func (em *emitter) refunded(addr string) bool {
	for _, e := range em.events {
		if e.Kind == domain.EventRefundPaid && e.Address == addr {
			return true
		}
	}
	return false
}
