package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/vilass86/cardgame/internal/game"
)

// SessionState is the lifecycle state of a game session.
type SessionState string

const (
	StateCreated             SessionState = "created"
	StateAwaitingPlayers     SessionState = "awaiting_players"
	StateLocked              SessionState = "locked"
	StateRandomnessRequested SessionState = "randomness_requested"
	StateRandomnessFulfilled SessionState = "randomness_fulfilled"
	StateResolved            SessionState = "resolved"
	StateCancelled           SessionState = "cancelled"
	StateExpired             SessionState = "expired"
)

// transitions lists every legal edge. Anything absent is rejected with ErrInvalidState.
var transitions = map[SessionState][]SessionState{
	StateCreated:             {StateAwaitingPlayers},
	StateAwaitingPlayers:     {StateLocked, StateCancelled, StateExpired},
	StateLocked:              {StateRandomnessRequested, StateExpired},
	StateRandomnessRequested: {StateRandomnessFulfilled, StateExpired},
	StateRandomnessFulfilled: {StateResolved},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s SessionState) IsTerminal() bool {
	return s == StateResolved || s == StateCancelled || s == StateExpired
}

// Expirable reports whether a passed deadline moves s to Expired.
// A fulfilled session is never expirable: once the seed is public the
// session can only be resolved.
func (s SessionState) Expirable() bool {
	return s.CanTransitionTo(StateExpired)
}

func (s SessionState) Valid() bool {
	switch s {
	case StateCreated, StateAwaitingPlayers, StateLocked, StateRandomnessRequested,
		StateRandomnessFulfilled, StateResolved, StateCancelled, StateExpired:
		return true
	}
	return false
}

// Player is a seat at a session.
type Player struct {
	Address        string    `json:"address"`
	Seat           int       `json:"seat"`
	StakeCommitted bool      `json:"stake_committed"`
	HasClaimed     bool      `json:"has_claimed"`
	Payout         int64     `json:"payout"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Session is one game instance and the unit of escrow.
type Session struct {
	ID             string        `json:"id"`
	Creator        string        `json:"creator"`
	Players        []Player      `json:"players"`
	StakePerPlayer int64         `json:"stake_per_player"`
	Capacity       int           `json:"capacity"`
	MinPlayers     int           `json:"min_players"`
	RakeBps        int64         `json:"rake_bps"`
	Ranker         string        `json:"ranker"`
	State          SessionState  `json:"state"`
	RequestNonce   string        `json:"request_nonce,omitempty"`
	Seed           []byte        `json:"-"`
	Outcome        *game.Outcome `json:"outcome,omitempty"`
	Rake           int64         `json:"rake"`
	CreatedAt      time.Time     `json:"created_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Transition moves the session to next or returns ErrInvalidState.
func (s *Session) Transition(next SessionState, at time.Time) error {
	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.State, next)
	}
	s.State = next
	s.UpdatedAt = at
	return nil
}

// PlayerIndex returns the index of addr in join order.
func (s *Session) PlayerIndex(addr string) (int, bool) {
	for i := range s.Players {
		if s.Players[i].Address == addr {
			return i, true
		}
	}
	return -1, false
}

// IsParticipant reports whether addr created or joined the session.
func (s *Session) IsParticipant(addr string) bool {
	if addr == "" {
		return false
	}
	if addr == s.Creator {
		return true
	}
	_, ok := s.PlayerIndex(addr)
	return ok
}

// DeadlinePassed reports whether now is at or beyond the session deadline.
func (s *Session) DeadlinePassed(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Addresses returns player addresses in join order.
func (s *Session) Addresses() []string {
	out := make([]string, len(s.Players))
	for i, p := range s.Players {
		out[i] = p.Address
	}
	return out
}

// Pool is the total committed stake. It fails rather than wrapping on overflow.
func (s *Session) Pool() (int64, error) {
	var committed int64
	for _, p := range s.Players {
		if p.StakeCommitted {
			committed++
		}
	}
	if committed > 0 && s.StakePerPlayer > math.MaxInt64/committed {
		return 0, fmt.Errorf("%w: pool overflows", ErrInvalidArgument)
	}
	return s.StakePerPlayer * committed, nil
}

// Reseat assigns seats from join order.
func (s *Session) Reseat() {
	for i := range s.Players {
		s.Players[i].Seat = i
	}
}

// Clone returns a deep copy so staged writes never alias committed state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = append([]Player(nil), s.Players...)
	if s.Seed != nil {
		c.Seed = append([]byte(nil), s.Seed...)
	}
	if s.Outcome != nil {
		c.Outcome = s.Outcome.Clone()
	}
	return &c
}
