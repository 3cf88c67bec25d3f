package domain

import "time"

// EventKind names a session lifecycle event.
type EventKind string

const (
	EventSessionCreated      EventKind = "session_created"
	EventPlayerJoined        EventKind = "player_joined"
	EventPlayerLeft          EventKind = "player_left"
	EventSessionLocked       EventKind = "session_locked"
	EventRandomnessRequested EventKind = "randomness_requested"
	EventRandomnessFulfilled EventKind = "randomness_fulfilled"
	EventSessionResolved     EventKind = "session_resolved"
	EventSessionCancelled    EventKind = "session_cancelled"
	EventSessionExpired      EventKind = "session_expired"
	EventPayoutPaid          EventKind = "payout_paid"
	EventRefundPaid          EventKind = "refund_paid"
)

// Event is published after the step that produced it commits.
type Event struct {
	Kind      EventKind              `json:"kind"`
	SessionID string                 `json:"session_id"`
	State     SessionState           `json:"state"`
	Address   string                 `json:"address,omitempty"`
	Amount    int64                  `json:"amount,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	At        time.Time              `json:"at"`
}
