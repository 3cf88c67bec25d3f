package service

import (
	"context"
	"fmt"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/ledger"
)

// BalanceService reads accounts and mints operator deposits.
type BalanceService struct {
	host ledger.Host
}

func NewBalanceService(host ledger.Host) *BalanceService {
	return &BalanceService{host: host}
}

// GetBalance returns the account's current balance. Unknown accounts hold zero.
func (s *BalanceService) GetBalance(ctx context.Context, account string) (int64, error) {
	return s.host.Balance(ctx, account)
}

// Deposit credits funds from outside the ledger and returns the new balance.
func (s *BalanceService) Deposit(ctx context.Context, account string, amount int64, meta map[string]interface{}) (newBalance int64, err error) {
	if account == "" {
		return 0, fmt.Errorf("%w: empty account", domain.ErrInvalidArgument)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	err = s.host.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.Credit(ctx, account, amount, ledger.Entry{Type: domain.TxTypeDeposit, Meta: meta}); err != nil {
			return err
		}
		newBalance, err = tx.Balance(ctx, account)
		return err
	})
	return newBalance, err
}

// History returns the account's most recent journal rows.
func (s *BalanceService) History(ctx context.Context, account string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.host.Transactions(ctx, account, limit)
}
