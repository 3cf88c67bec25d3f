package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vilass86/cardgame/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// ListByAccount returns recent journal rows for an account
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, account_id, COALESCE(session_id, ''), type, amount, meta, created_at
		 FROM transactions
		 WHERE account_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListBySession returns every journal row touching a session, oldest first
func (r *TransactionRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, account_id, COALESCE(session_id, ''), type, amount, meta, created_at
		 FROM transactions
		 WHERE session_id = $1
		 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CreateWithTx inserts a transaction using an existing database transaction
func (r *TransactionRepository) CreateWithTx(ctx context.Context, dbTx pgx.Tx, tx *domain.Transaction) error {
	metaJSON, err := json.Marshal(tx.Meta)
	if err != nil || tx.Meta == nil {
		metaJSON = []byte("{}")
	}
	var sessionID *string
	if tx.SessionID != "" {
		sessionID = &tx.SessionID
	}

	return dbTx.QueryRow(ctx,
		`INSERT INTO transactions (account_id, session_id, type, amount, meta)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		tx.AccountID, sessionID, tx.Type, tx.Amount, metaJSON,
	).Scan(&tx.ID, &tx.CreatedAt)
}

// Helper to scan rows into Transaction slice
func (r *TransactionRepository) scanRows(rows pgx.Rows) ([]*domain.Transaction, error) {
	var result []*domain.Transaction

	for rows.Next() {
		var (
			tx        domain.Transaction
			metaJSON  []byte
			createdAt time.Time
		)

		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.SessionID, &tx.Type, &tx.Amount, &metaJSON, &createdAt); err != nil {
			return nil, err
		}

		tx.CreatedAt = createdAt
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &tx.Meta)
		}

		result = append(result, &tx)
	}

	return result, rows.Err()
}
