package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/ledger"
)

func TestHoldRelease(t *testing.T) {
	ctx := context.Background()
	host := ledger.NewMemory()
	esc := New("house")

	err := host.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.Credit(ctx, "alice", 150, ledger.Entry{Type: domain.TxTypeDeposit}); err != nil {
			return err
		}
		if err := esc.Hold(ctx, tx, "s1", "alice", 100); err != nil {
			return err
		}
		if held, _ := esc.Held(ctx, tx, "s1"); held != 100 {
			t.Fatalf("held = %d; want 100", held)
		}
		if err := esc.CollectRake(ctx, tx, "s1", 5); err != nil {
			return err
		}
		return esc.Release(ctx, tx, "s1", "alice", 95, domain.TxTypePayout)
	})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if b, _ := host.Balance(ctx, "alice"); b != 145 {
		t.Fatalf("alice = %d; want 145", b)
	}
	if b, _ := host.Balance(ctx, "house"); b != 5 {
		t.Fatalf("house = %d; want 5", b)
	}
	if b, _ := host.Balance(ctx, AccountID("s1")); b != 0 {
		t.Fatalf("escrow = %d; want 0", b)
	}
}

func TestHoldInsufficient(t *testing.T) {
	ctx := context.Background()
	host := ledger.NewMemory()
	esc := New("house")
	err := host.Atomic(ctx, func(tx ledger.Tx) error {
		return esc.Hold(ctx, tx, "s1", "bob", 10)
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v; want ErrInsufficientFunds", err)
	}
}

func TestReleaseOverdraw(t *testing.T) {
	ctx := context.Background()
	host := ledger.NewMemory()
	esc := New("house")
	err := host.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.Credit(ctx, "alice", 10, ledger.Entry{Type: domain.TxTypeDeposit}); err != nil {
			return err
		}
		if err := esc.Hold(ctx, tx, "s1", "alice", 10); err != nil {
			return err
		}
		return esc.Release(ctx, tx, "s1", "alice", 11, domain.TxTypeRefund)
	})
	if err == nil {
		t.Fatalf("release beyond hold succeeded")
	}
	if b, _ := host.Balance(ctx, "alice"); b != 0 {
		t.Fatalf("failed step leaked: alice = %d", b)
	}
}
