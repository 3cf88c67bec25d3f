package ledger

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
)

func TestMemoryRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Atomic(ctx, func(tx Tx) error {
		return tx.Credit(ctx, "alice", 100, Entry{Type: domain.TxTypeDeposit})
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	boom := errors.New("boom")
	err := m.Atomic(ctx, func(tx Tx) error {
		if err := tx.Transfer(ctx, "alice", "bob", 60, Entry{Type: domain.TxTypeStake}); err != nil {
			return err
		}
		if err := tx.InsertSession(ctx, &domain.Session{ID: "s1", State: domain.StateAwaitingPlayers}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want boom", err)
	}
	if b, _ := m.Balance(ctx, "alice"); b != 100 {
		t.Fatalf("alice balance = %d after rollback; want 100", b)
	}
	if b, _ := m.Balance(ctx, "bob"); b != 0 {
		t.Fatalf("bob balance = %d after rollback; want 0", b)
	}
	if _, err := m.Session(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("session leaked from rolled back step: %v", err)
	}
	txs, _ := m.Transactions(ctx, "alice", 10)
	if len(txs) != 1 {
		t.Fatalf("journal has %d alice rows; want 1", len(txs))
	}
}

func TestMemoryTransfer(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	err := m.Atomic(ctx, func(tx Tx) error {
		if err := tx.Credit(ctx, "alice", 50, Entry{Type: domain.TxTypeDeposit}); err != nil {
			return err
		}
		return tx.Transfer(ctx, "alice", "bob", 80, Entry{Type: domain.TxTypeStake})
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v; want ErrInsufficientFunds", err)
	}

	err = m.Atomic(ctx, func(tx Tx) error {
		if err := tx.Credit(ctx, "alice", 50, Entry{Type: domain.TxTypeDeposit}); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, "alice", "bob", 30, Entry{Type: domain.TxTypeStake, SessionID: "s"}); err != nil {
			return err
		}
		b, _ := tx.Balance(ctx, "bob")
		if b != 30 {
			t.Fatalf("staged bob balance = %d", b)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if b, _ := m.Balance(ctx, "alice"); b != 20 {
		t.Fatalf("alice = %d; want 20", b)
	}
	txs, _ := m.Transactions(ctx, "bob", 10)
	if len(txs) != 1 || txs[0].Amount != 30 || txs[0].SessionID != "s" || txs[0].ID == 0 {
		t.Fatalf("bob journal = %+v", txs)
	}
}

func TestMemorySequence(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var last uint64
	for i := 0; i < 3; i++ {
		_ = m.Atomic(ctx, func(tx Tx) error {
			v, _ := tx.NextSequence(ctx, "nonce")
			if v <= last {
				t.Fatalf("sequence went from %d to %d", last, v)
			}
			last = v
			return nil
		})
	}
	// a rolled back step must not consume a value
	_ = m.Atomic(ctx, func(tx Tx) error {
		_, _ = tx.NextSequence(ctx, "nonce")
		return errors.New("abort")
	})
	_ = m.Atomic(ctx, func(tx Tx) error {
		v, _ := tx.NextSequence(ctx, "nonce")
		if v != last+1 {
			t.Fatalf("sequence = %d; want %d", v, last+1)
		}
		return nil
	})
}

func TestMemoryOnePendingRequest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	err := m.Atomic(ctx, func(tx Tx) error {
		return tx.InsertRequest(ctx, &domain.RandomnessRequest{Nonce: "n1", SessionID: "s", Status: domain.RequestPending})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	err = m.Atomic(ctx, func(tx Tx) error {
		return tx.InsertRequest(ctx, &domain.RandomnessRequest{Nonce: "n2", SessionID: "s", Status: domain.RequestPending})
	})
	if err == nil {
		t.Fatalf("second pending request for one session accepted")
	}
	err = m.Atomic(ctx, func(tx Tx) error {
		r, err := tx.Request(ctx, "n1")
		if err != nil {
			return err
		}
		r.Status = domain.RequestExpired
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return err
		}
		return tx.InsertRequest(ctx, &domain.RandomnessRequest{Nonce: "n2", SessionID: "s", Status: domain.RequestPending})
	})
	if err != nil {
		t.Fatalf("insert after expiry: %v", err)
	}
}

func TestMemoryExpiredSessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Unix(1_700_000_000, 0)
	sessions := []*domain.Session{
		{ID: "a", State: domain.StateAwaitingPlayers, ExpiresAt: now.Add(-time.Minute)},
		{ID: "b", State: domain.StateRandomnessRequested, ExpiresAt: now.Add(-2 * time.Minute)},
		{ID: "c", State: domain.StateRandomnessFulfilled, ExpiresAt: now.Add(-time.Hour)},
		{ID: "d", State: domain.StateResolved, ExpiresAt: now.Add(-time.Hour)},
		{ID: "e", State: domain.StateLocked, ExpiresAt: now.Add(time.Hour)},
		{ID: "f", State: domain.StateLocked, ExpiresAt: now},
	}
	_ = m.Atomic(ctx, func(tx Tx) error {
		for _, s := range sessions {
			if err := tx.InsertSession(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	ids, err := m.ExpiredSessions(ctx, now, 0)
	if err != nil {
		t.Fatalf("expired: %v", err)
	}
	want := []string{"b", "a", "f"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v; want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v; want %v", ids, want)
		}
	}
}

func TestMemoryRejectsBalanceOverflow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Atomic(ctx, func(tx Tx) error {
		if err := tx.Credit(ctx, "whale", math.MaxInt64-10, Entry{Type: domain.TxTypeDeposit}); err != nil {
			return err
		}
		return tx.Credit(ctx, "alice", 50, Entry{Type: domain.TxTypeDeposit})
	}); err != nil {
		t.Fatalf("seed balances: %v", err)
	}

	cases := []struct {
		name string
		fn   func(tx Tx) error
	}{
		{"credit", func(tx Tx) error {
			return tx.Credit(ctx, "whale", 11, Entry{Type: domain.TxTypeDeposit})
		}},
		{"transfer", func(tx Tx) error {
			return tx.Transfer(ctx, "alice", "whale", 11, Entry{Type: domain.TxTypeDeposit})
		}},
	}
	for _, tc := range cases {
		err := m.Atomic(ctx, tc.fn)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("%s: err = %v; want ErrInvalidArgument", tc.name, err)
		}
	}
	if b, _ := m.Balance(ctx, "whale"); b != math.MaxInt64-10 {
		t.Fatalf("whale = %d; want unchanged", b)
	}
	if b, _ := m.Balance(ctx, "alice"); b != 50 {
		t.Fatalf("alice = %d; want 50", b)
	}

	// exactly reaching the limit is allowed
	if err := m.Atomic(ctx, func(tx Tx) error {
		return tx.Credit(ctx, "whale", 10, Entry{Type: domain.TxTypeDeposit})
	}); err != nil {
		t.Fatalf("credit to limit: %v", err)
	}
}
