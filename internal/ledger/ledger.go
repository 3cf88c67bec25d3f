// Package ledger defines the host ledger contract: persisted sessions,
// randomness requests, balances and a journal, all mutated inside atomic steps.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
)

var ErrAccountNotFound = errors.New("account not found")

// Entry describes why funds moved. It is written to the journal for both sides.
type Entry struct {
	Type      string
	SessionID string
	Meta      map[string]interface{}
}

// Tx is one atomic step. Every write becomes visible only if the step returns nil.
type Tx interface {
	// Session loads a session for update. Missing sessions are domain.ErrSessionNotFound.
	Session(ctx context.Context, id string) (*domain.Session, error)
	InsertSession(ctx context.Context, s *domain.Session) error
	UpdateSession(ctx context.Context, s *domain.Session) error

	// Request loads a request for update. Missing nonces are domain.ErrUnknownRequest.
	Request(ctx context.Context, nonce string) (*domain.RandomnessRequest, error)
	InsertRequest(ctx context.Context, r *domain.RandomnessRequest) error
	UpdateRequest(ctx context.Context, r *domain.RandomnessRequest) error

	// NextSequence returns a strictly increasing counter per name.
	NextSequence(ctx context.Context, name string) (uint64, error)

	// Balance of an account; unknown accounts hold zero.
	Balance(ctx context.Context, account string) (int64, error)
	// Transfer moves amount and fails with domain.ErrInsufficientFunds rather than go negative.
	Transfer(ctx context.Context, from, to string, amount int64, e Entry) error
	// Credit mints funds into an account from outside the ledger.
	Credit(ctx context.Context, account string, amount int64, e Entry) error
}

// Host runs atomic steps and serves committed reads.
type Host interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	Session(ctx context.Context, id string) (*domain.Session, error)
	Request(ctx context.Context, nonce string) (*domain.RandomnessRequest, error)
	// ExpiredSessions lists ids of expirable sessions whose deadline is at or before now.
	ExpiredSessions(ctx context.Context, now time.Time, limit int) ([]string, error)
	Balance(ctx context.Context, account string) (int64, error)
	Transactions(ctx context.Context, account string, limit int) ([]*domain.Transaction, error)
}

// ExpirableStates are the states a passed deadline moves to Expired.
func ExpirableStates() []domain.SessionState {
	return []domain.SessionState{
		domain.StateAwaitingPlayers,
		domain.StateLocked,
		domain.StateRandomnessRequested,
	}
}

// CheckCredit rejects a credit that would overflow the receiving balance.
func CheckCredit(account string, balance, amount int64) error {
	if balance > math.MaxInt64-amount {
		return fmt.Errorf("%w: crediting %d to %s overflows balance %d", domain.ErrInvalidArgument, amount, account, balance)
	}
	return nil
}
