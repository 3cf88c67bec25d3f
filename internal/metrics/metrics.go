// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"context"

	"github.com/vilass86/cardgame/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgame_session_events_total",
			Help: "Committed session events by kind",
		},
		[]string{"kind"},
	)
	Fulfillments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgame_randomness_fulfillments_total",
			Help: "Oracle responses by result code",
		},
		[]string{"result"},
	)
	Funds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgame_funds_moved_total",
			Help: "Units paid out of escrow by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(SessionEvents)
	prometheus.MustRegister(Fulfillments)
	prometheus.MustRegister(Funds)
}

// ObserveFulfillment counts an oracle response. A nil error counts as "ok".
func ObserveFulfillment(err error) {
	result := "ok"
	if err != nil {
		result = string(domain.CodeOf(err))
	}
	Fulfillments.WithLabelValues(result).Inc()
}

// Sink counts committed events.
type Sink struct{}

func (Sink) Publish(_ context.Context, e domain.Event) {
	SessionEvents.WithLabelValues(string(e.Kind)).Inc()
	switch e.Kind {
	case domain.EventPayoutPaid:
		Funds.WithLabelValues("payout").Add(float64(e.Amount))
	case domain.EventRefundPaid:
		Funds.WithLabelValues("refund").Add(float64(e.Amount))
	case domain.EventSessionResolved:
		if rake, ok := e.Data["rake"].(int64); ok && rake > 0 {
			Funds.WithLabelValues("rake").Add(float64(rake))
		}
	}
}
