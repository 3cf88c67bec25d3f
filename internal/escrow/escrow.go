// Package escrow holds session stakes in a per-session host account.
//
// The escrow account is the only place a committed stake lives between join
// and payout or refund, so its balance is the session's outstanding hold.
package escrow

import (
	"context"
	"fmt"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/ledger"
)

const accountPrefix = "escrow:"

// AccountID returns the host account holding a session's stakes.
func AccountID(sessionID string) string {
	return accountPrefix + sessionID
}

// Ledger moves funds between players, session escrow and the house.
type Ledger struct {
	house string
}

func New(houseAccount string) *Ledger {
	return &Ledger{house: houseAccount}
}

func (l *Ledger) House() string { return l.house }

// Hold debits a player's stake into the session escrow.
func (l *Ledger) Hold(ctx context.Context, tx ledger.Tx, sessionID, from string, amount int64) error {
	bal, err := tx.Balance(ctx, from)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: balance %d, stake %d", domain.ErrInsufficientFunds, bal, amount)
	}
	return tx.Transfer(ctx, from, AccountID(sessionID), amount, ledger.Entry{
		Type:      domain.TxTypeStake,
		SessionID: sessionID,
	})
}

// Release pays amount out of escrow. kind is a refund or a payout.
func (l *Ledger) Release(ctx context.Context, tx ledger.Tx, sessionID, to string, amount int64, kind string) error {
	if amount == 0 {
		return nil
	}
	if err := l.ensureHeld(ctx, tx, sessionID, amount); err != nil {
		return err
	}
	return tx.Transfer(ctx, AccountID(sessionID), to, amount, ledger.Entry{
		Type:      kind,
		SessionID: sessionID,
	})
}

// CollectRake moves the rake to the house account.
func (l *Ledger) CollectRake(ctx context.Context, tx ledger.Tx, sessionID string, amount int64) error {
	if amount == 0 {
		return nil
	}
	if err := l.ensureHeld(ctx, tx, sessionID, amount); err != nil {
		return err
	}
	return tx.Transfer(ctx, AccountID(sessionID), l.house, amount, ledger.Entry{
		Type:      domain.TxTypeRake,
		SessionID: sessionID,
	})
}

// Held is the session's current escrow balance.
func (l *Ledger) Held(ctx context.Context, tx ledger.Tx, sessionID string) (int64, error) {
	return tx.Balance(ctx, AccountID(sessionID))
}

func (l *Ledger) ensureHeld(ctx context.Context, tx ledger.Tx, sessionID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: negative release %d", domain.ErrInvalidArgument, amount)
	}
	held, err := l.Held(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("escrow %s holds %d, cannot release %d", sessionID, held, amount)
	}
	return nil
}
