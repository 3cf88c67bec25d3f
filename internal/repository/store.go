package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/game"
	"github.com/vilass86/cardgame/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Store is the Postgres ledger host. Each step is one database transaction;
// rows it touches are locked FOR UPDATE until commit.
type Store struct {
	db     *pgxpool.Pool
	txRepo *TransactionRepository
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, txRepo: NewTransactionRepository(db)}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, txRepo: s.txRepo}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Session(ctx context.Context, id string) (*domain.Session, error) {
	return scanSession(s.db.QueryRow(ctx, selectSession+` WHERE id = $1`, id), id)
}

func (s *Store) Request(ctx context.Context, nonce string) (*domain.RandomnessRequest, error) {
	return scanRequest(s.db.QueryRow(ctx, selectRequest+` WHERE nonce = $1`, nonce), nonce)
}

func (s *Store) ExpiredSessions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	states := make([]string, 0, 3)
	for _, st := range ledger.ExpirableStates() {
		states = append(states, string(st))
	}
	rows, err := s.db.Query(ctx,
		`SELECT id FROM sessions
		 WHERE state = ANY($1) AND expires_at <= $2
		 ORDER BY expires_at, id
		 LIMIT $3`,
		states, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Balance(ctx context.Context, account string) (int64, error) {
	return balanceOf(ctx, s.db, account, false)
}

func (s *Store) Transactions(ctx context.Context, account string, limit int) ([]*domain.Transaction, error) {
	return s.txRepo.ListByAccount(ctx, account, limit)
}

type pgTx struct {
	tx     pgx.Tx
	txRepo *TransactionRepository
}

func (t *pgTx) Session(ctx context.Context, id string) (*domain.Session, error) {
	return scanSession(t.tx.QueryRow(ctx, selectSession+` WHERE id = $1 FOR UPDATE`, id), id)
}

func (t *pgTx) InsertSession(ctx context.Context, s *domain.Session) error {
	players, outcome, err := encodeSession(s)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO sessions (id, creator, players, stake_per_player, capacity, min_players, rake_bps,
		                       ranker, state, request_nonce, seed, outcome, rake, created_at, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, $15, $16)`,
		s.ID, s.Creator, players, s.StakePerPlayer, s.Capacity, s.MinPlayers, s.RakeBps,
		s.Ranker, string(s.State), s.RequestNonce, s.Seed, outcome, s.Rake, s.CreatedAt, s.ExpiresAt, s.UpdatedAt,
	)
	return err
}

func (t *pgTx) UpdateSession(ctx context.Context, s *domain.Session) error {
	players, outcome, err := encodeSession(s)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE sessions
		 SET players = $2, state = $3, request_nonce = NULLIF($4, ''), seed = $5, outcome = $6,
		     rake = $7, updated_at = $8
		 WHERE id = $1`,
		s.ID, players, string(s.State), s.RequestNonce, s.Seed, outcome, s.Rake, s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, s.ID)
	}
	return nil
}

func (t *pgTx) Request(ctx context.Context, nonce string) (*domain.RandomnessRequest, error) {
	return scanRequest(t.tx.QueryRow(ctx, selectRequest+` WHERE nonce = $1 FOR UPDATE`, nonce), nonce)
}

func (t *pgTx) InsertRequest(ctx context.Context, r *domain.RandomnessRequest) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO randomness_requests (nonce, session_id, status, raw_value, proof, requested_at, fulfilled_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.Nonce, r.SessionID, string(r.Status), r.RawValue, r.Proof, r.RequestedAt, r.FulfilledAt, r.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: session %s already has a pending request", domain.ErrInvalidState, r.SessionID)
	}
	return err
}

func (t *pgTx) UpdateRequest(ctx context.Context, r *domain.RandomnessRequest) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE randomness_requests
		 SET status = $2, raw_value = $3, proof = $4, fulfilled_at = $5
		 WHERE nonce = $1`,
		r.Nonce, string(r.Status), r.RawValue, r.Proof, r.FulfilledAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRequest, r.Nonce)
	}
	return nil
}

func (t *pgTx) NextSequence(ctx context.Context, name string) (uint64, error) {
	var v int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sequences (name, value) VALUES ($1, 1)
		 ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		 RETURNING value`,
		name,
	).Scan(&v)
	return uint64(v), err
}

func (t *pgTx) Balance(ctx context.Context, account string) (int64, error) {
	return balanceOf(ctx, t.tx, account, true)
}

func (t *pgTx) Transfer(ctx context.Context, from, to string, amount int64, e ledger.Entry) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer amount must be positive", domain.ErrInvalidArgument)
	}
	if from == to {
		return fmt.Errorf("%w: transfer to self", domain.ErrInvalidArgument)
	}
	balances, err := t.lockAccounts(ctx, from, to)
	if err != nil {
		return err
	}
	if balances[from] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", domain.ErrInsufficientFunds, from, balances[from], amount)
	}
	if err := ledger.CheckCredit(to, balances[to], amount); err != nil {
		return err
	}
	if err := t.adjust(ctx, from, -amount, e); err != nil {
		return err
	}
	return t.adjust(ctx, to, amount, e)
}

func (t *pgTx) Credit(ctx context.Context, account string, amount int64, e ledger.Entry) error {
	if amount <= 0 {
		return fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidArgument)
	}
	balances, err := t.lockAccounts(ctx, account)
	if err != nil {
		return err
	}
	if err := ledger.CheckCredit(account, balances[account], amount); err != nil {
		return err
	}
	return t.adjust(ctx, account, amount, e)
}

// lockAccounts creates missing accounts and locks them in id order so
// concurrent transfers cannot deadlock.
func (t *pgTx) lockAccounts(ctx context.Context, ids ...string) (map[string]int64, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO accounts (id) SELECT unnest($1::text[]) ON CONFLICT (id) DO NOTHING`,
		sorted,
	); err != nil {
		return nil, fmt.Errorf("ensure accounts: %w", err)
	}
	rows, err := t.tx.Query(ctx,
		`SELECT id, balance FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		sorted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64, len(ids))
	for rows.Next() {
		var (
			id  string
			bal int64
		)
		if err := rows.Scan(&id, &bal); err != nil {
			return nil, err
		}
		out[id] = bal
	}
	return out, rows.Err()
}

func (t *pgTx) adjust(ctx context.Context, account string, delta int64, e ledger.Entry) error {
	if _, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = now() WHERE id = $2`,
		delta, account,
	); err != nil {
		return err
	}
	return t.txRepo.CreateWithTx(ctx, t.tx, &domain.Transaction{
		AccountID: account,
		SessionID: e.SessionID,
		Type:      e.Type,
		Amount:    delta,
		Meta:      e.Meta,
	})
}

const selectSession = `SELECT id, creator, players, stake_per_player, capacity, min_players, rake_bps, ranker,
	state, COALESCE(request_nonce, ''), seed, outcome, rake, created_at, expires_at, updated_at
	FROM sessions`

const selectRequest = `SELECT nonce, session_id, status, raw_value, proof, requested_at, fulfilled_at, expires_at
	FROM randomness_requests`

func scanSession(row pgx.Row, id string) (*domain.Session, error) {
	var (
		s       domain.Session
		state   string
		players []byte
		outcome []byte
	)
	err := row.Scan(&s.ID, &s.Creator, &players, &s.StakePerPlayer, &s.Capacity, &s.MinPlayers, &s.RakeBps,
		&s.Ranker, &state, &s.RequestNonce, &s.Seed, &outcome, &s.Rake, &s.CreatedAt, &s.ExpiresAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	s.State = domain.SessionState(state)
	if err := json.Unmarshal(players, &s.Players); err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	if len(outcome) > 0 {
		s.Outcome = &game.Outcome{}
		if err := json.Unmarshal(outcome, s.Outcome); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
	}
	return &s, nil
}

func encodeSession(s *domain.Session) (players, outcome []byte, err error) {
	ps := s.Players
	if ps == nil {
		ps = []domain.Player{}
	}
	if players, err = json.Marshal(ps); err != nil {
		return nil, nil, fmt.Errorf("encode players: %w", err)
	}
	if s.Outcome != nil {
		if outcome, err = json.Marshal(s.Outcome); err != nil {
			return nil, nil, fmt.Errorf("encode outcome: %w", err)
		}
	}
	return players, outcome, nil
}

func scanRequest(row pgx.Row, nonce string) (*domain.RandomnessRequest, error) {
	var (
		r      domain.RandomnessRequest
		status string
	)
	err := row.Scan(&r.Nonce, &r.SessionID, &status, &r.RawValue, &r.Proof, &r.RequestedAt, &r.FulfilledAt, &r.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRequest, nonce)
	}
	if err != nil {
		return nil, err
	}
	r.Status = domain.RequestStatus(status)
	return &r, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func balanceOf(ctx context.Context, q queryRower, account string, lock bool) (int64, error) {
	sql := `SELECT balance FROM accounts WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var bal int64
	err := q.QueryRow(ctx, sql, account).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return bal, err
}
