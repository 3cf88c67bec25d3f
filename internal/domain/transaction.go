package domain

import "time"

// Transaction types
const (
	TxTypeDeposit = "deposit"
	TxTypeStake   = "stake"
	TxTypeRefund  = "refund"
	TxTypePayout  = "payout"
	TxTypeRake    = "rake"
)

// Transaction is one side of a balance movement. Amount is negative for debits.
type Transaction struct {
	ID        int64                  `db:"id" json:"id"`
	AccountID string                 `db:"account_id" json:"account_id"`
	SessionID string                 `db:"session_id" json:"session_id,omitempty"`
	Type      string                 `db:"type" json:"type"`
	Amount    int64                  `db:"amount" json:"amount"`
	Meta      map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Account is a balance held by the host ledger.
type Account struct {
	ID        string    `db:"id" json:"id"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
