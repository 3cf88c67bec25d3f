package ws

import (
	"github.com/vilass86/cardgame/internal/domain"
)

const (
	// client - server
	MsgPing = "ping"

	// server - client
	MsgReady    = "ready"
	MsgSnapshot = "snapshot"
	MsgEvent    = "event"
	MsgPong     = "pong"
	MsgError    = "error"
)

// Message is every frame the server writes.
type Message struct {
	Type    string          `json:"type"`
	Session *domain.Session `json:"session,omitempty"`
	Event   *domain.Event   `json:"event,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type inbound struct {
	Type string `json:"type"`
}
