package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
)

// Memory is an in-process Host. Steps are serialized and stage their writes
// in an overlay that is merged only when the step succeeds.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	requests map[string]*domain.RandomnessRequest
	balances map[string]int64
	seqs     map[string]uint64
	journal  []*domain.Transaction
	nextTxID int64
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*domain.Session),
		requests: make(map[string]*domain.RandomnessRequest),
		balances: make(map[string]int64),
		seqs:     make(map[string]uint64),
		now:      time.Now,
	}
}

// Atomic runs fn against a staged view and commits it if fn returns nil.
func (m *Memory) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		m:        m,
		sessions: make(map[string]*domain.Session),
		requests: make(map[string]*domain.RandomnessRequest),
		balances: make(map[string]int64),
		seqs:     make(map[string]uint64),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, s := range tx.sessions {
		m.sessions[id] = s
	}
	for n, r := range tx.requests {
		m.requests[n] = r
	}
	for a, b := range tx.balances {
		m.balances[a] = b
	}
	for n, v := range tx.seqs {
		m.seqs[n] = v
	}
	now := m.now()
	for _, t := range tx.journal {
		m.nextTxID++
		t.ID = m.nextTxID
		t.CreatedAt = now
		m.journal = append(m.journal, t)
	}
	return nil
}

func (m *Memory) Session(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

func (m *Memory) Request(_ context.Context, nonce string) (*domain.RandomnessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[nonce]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRequest, nonce)
	}
	return r.Clone(), nil
}

func (m *Memory) ExpiredSessions(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*domain.Session
	for _, s := range m.sessions {
		if s.State.Expirable() && s.DeadlinePassed(now) {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ExpiresAt.Equal(due[j].ExpiresAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].ExpiresAt.Before(due[j].ExpiresAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, len(due))
	for i, s := range due {
		ids[i] = s.ID
	}
	return ids, nil
}

func (m *Memory) Balance(_ context.Context, account string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

func (m *Memory) Transactions(_ context.Context, account string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Transaction
	for i := len(m.journal) - 1; i >= 0 && len(out) < limit; i-- {
		if t := m.journal[i]; t.AccountID == account {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

// memTx reads through its overlay to the committed maps. The caller holds m.mu.
type memTx struct {
	m        *Memory
	sessions map[string]*domain.Session
	requests map[string]*domain.RandomnessRequest
	balances map[string]int64
	seqs     map[string]uint64
	journal  []*domain.Transaction
}

func (t *memTx) Session(_ context.Context, id string) (*domain.Session, error) {
	if s, ok := t.sessions[id]; ok {
		return s.Clone(), nil
	}
	if s, ok := t.m.sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
}

func (t *memTx) InsertSession(_ context.Context, s *domain.Session) error {
	if _, ok := t.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	if _, ok := t.m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	t.sessions[s.ID] = s.Clone()
	return nil
}

func (t *memTx) UpdateSession(ctx context.Context, s *domain.Session) error {
	if _, err := t.Session(ctx, s.ID); err != nil {
		return err
	}
	t.sessions[s.ID] = s.Clone()
	return nil
}

func (t *memTx) Request(_ context.Context, nonce string) (*domain.RandomnessRequest, error) {
	if r, ok := t.requests[nonce]; ok {
		return r.Clone(), nil
	}
	if r, ok := t.m.requests[nonce]; ok {
		return r.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRequest, nonce)
}

func (t *memTx) InsertRequest(_ context.Context, r *domain.RandomnessRequest) error {
	if _, ok := t.requests[r.Nonce]; ok {
		return fmt.Errorf("request %s already exists", r.Nonce)
	}
	if _, ok := t.m.requests[r.Nonce]; ok {
		return fmt.Errorf("request %s already exists", r.Nonce)
	}
	if t.hasPending(r.SessionID) {
		return fmt.Errorf("session %s already has a pending request", r.SessionID)
	}
	t.requests[r.Nonce] = r.Clone()
	return nil
}

// hasPending mirrors the partial unique index on pending requests per session.
func (t *memTx) hasPending(sessionID string) bool {
	for nonce, r := range t.m.requests {
		if staged, ok := t.requests[nonce]; ok {
			r = staged
		}
		if r.SessionID == sessionID && r.Status == domain.RequestPending {
			return true
		}
	}
	for nonce, r := range t.requests {
		if _, committed := t.m.requests[nonce]; committed {
			continue
		}
		if r.SessionID == sessionID && r.Status == domain.RequestPending {
			return true
		}
	}
	return false
}

func (t *memTx) UpdateRequest(ctx context.Context, r *domain.RandomnessRequest) error {
	if _, err := t.Request(ctx, r.Nonce); err != nil {
		return err
	}
	t.requests[r.Nonce] = r.Clone()
	return nil
}

func (t *memTx) NextSequence(_ context.Context, name string) (uint64, error) {
	v, ok := t.seqs[name]
	if !ok {
		v = t.m.seqs[name]
	}
	v++
	t.seqs[name] = v
	return v, nil
}

func (t *memTx) Balance(_ context.Context, account string) (int64, error) {
	if b, ok := t.balances[account]; ok {
		return b, nil
	}
	return t.m.balances[account], nil
}

func (t *memTx) Transfer(ctx context.Context, from, to string, amount int64, e Entry) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer amount must be positive", domain.ErrInvalidArgument)
	}
	if from == to {
		return fmt.Errorf("%w: transfer to self", domain.ErrInvalidArgument)
	}
	fb, _ := t.Balance(ctx, from)
	if fb < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", domain.ErrInsufficientFunds, from, fb, amount)
	}
	tb, _ := t.Balance(ctx, to)
	if err := CheckCredit(to, tb, amount); err != nil {
		return err
	}
	t.balances[from] = fb - amount
	t.balances[to] = tb + amount
	t.record(from, -amount, e)
	t.record(to, amount, e)
	return nil
}

func (t *memTx) Credit(ctx context.Context, account string, amount int64, e Entry) error {
	if amount <= 0 {
		return fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidArgument)
	}
	b, _ := t.Balance(ctx, account)
	if err := CheckCredit(account, b, amount); err != nil {
		return err
	}
	t.balances[account] = b + amount
	t.record(account, amount, e)
	return nil
}

func (t *memTx) record(account string, amount int64, e Entry) {
	t.journal = append(t.journal, &domain.Transaction{
		AccountID: account,
		SessionID: e.SessionID,
		Type:      e.Type,
		Amount:    amount,
		Meta:      e.Meta,
	})
}
