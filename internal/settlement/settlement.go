// Package settlement turns a dealt outcome into payouts and applies them, or
// refunds stakes when a session ends without a result.
package settlement

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/escrow"
	"github.com/vilass86/cardgame/internal/game"
	"github.com/vilass86/cardgame/internal/ledger"
)

// MaxRakeBps is 100%.
const MaxRakeBps = 10000

// Payout is one seat's share of the pool.
type Payout struct {
	Seat        int    `json:"seat"`
	Address     string `json:"address"`
	Score       int64  `json:"score"`
	Description string `json:"description,omitempty"`
	Winner      bool   `json:"winner"`
	Amount      int64  `json:"amount"`
}

// Result is the full split of a pool.
type Result struct {
	Pool          int64    `json:"pool"`
	Rake          int64    `json:"rake"`
	Distributable int64    `json:"distributable"`
	WinningSeats  []int    `json:"winning_seats"`
	Payouts       []Payout `json:"payouts"`
}

// Rake is floor(pool * bps / 10000), computed without overflowing.
func Rake(pool, bps int64) (int64, error) {
	if pool < 0 {
		return 0, fmt.Errorf("%w: negative pool", domain.ErrInvalidArgument)
	}
	if bps < 0 || bps > MaxRakeBps {
		return 0, fmt.Errorf("%w: rake %d bps out of range", domain.ErrInvalidArgument, bps)
	}
	q, r := pool/MaxRakeBps, pool%MaxRakeBps
	return q*bps + r*bps/MaxRakeBps, nil
}

// Compute scores every hand and splits the pool. The best score wins, equal
// best scores split equally and the indivisible remainder goes one unit at a
// time to winners in ascending seat order.
func Compute(outcome *game.Outcome, ranker game.Ranker, stake, rakeBps int64) (*Result, error) {
	if outcome == nil || len(outcome.Hands) == 0 {
		return nil, fmt.Errorf("%w: empty outcome", domain.ErrInvalidArgument)
	}
	if stake <= 0 {
		return nil, fmt.Errorf("%w: stake must be positive", domain.ErrInvalidArgument)
	}
	n := int64(len(outcome.Hands))
	if stake > math.MaxInt64/n {
		return nil, fmt.Errorf("%w: pool overflows", domain.ErrInvalidArgument)
	}
	pool := stake * n
	rake, err := Rake(pool, rakeBps)
	if err != nil {
		return nil, err
	}

	hands := append([]game.Hand(nil), outcome.Hands...)
	sort.Slice(hands, func(i, j int) bool { return hands[i].Seat < hands[j].Seat })

	res := &Result{Pool: pool, Rake: rake, Distributable: pool - rake}
	best := int64(math.MinInt64)
	for _, h := range hands {
		score, err := ranker.Score(h.Cards, outcome.Board)
		if err != nil {
			return nil, fmt.Errorf("score seat %d: %w", h.Seat, err)
		}
		desc, _ := ranker.Describe(h.Cards, outcome.Board)
		res.Payouts = append(res.Payouts, Payout{Seat: h.Seat, Address: h.Address, Score: score, Description: desc})
		if score > best {
			best = score
		}
	}

	for i := range res.Payouts {
		if res.Payouts[i].Score == best {
			res.Payouts[i].Winner = true
			res.WinningSeats = append(res.WinningSeats, res.Payouts[i].Seat)
		}
	}
	winners := int64(len(res.WinningSeats))
	share, remainder := res.Distributable/winners, res.Distributable%winners
	for i := range res.Payouts {
		if !res.Payouts[i].Winner {
			continue
		}
		res.Payouts[i].Amount = share
		if remainder > 0 {
			res.Payouts[i].Amount++
			remainder--
		}
	}
	return res, nil
}

// Engine applies results and refunds through the escrow ledger.
type Engine struct {
	escrow *escrow.Ledger
}

func NewEngine(e *escrow.Ledger) *Engine {
	return &Engine{escrow: e}
}

// Settle pays every winner, collects the rake and marks every seat claimed,
// all in the caller's step.
func (e *Engine) Settle(ctx context.Context, tx ledger.Tx, s *domain.Session, res *Result) error {
	if s.State == domain.StateResolved {
		return fmt.Errorf("%w: session %s", domain.ErrAlreadySettled, s.ID)
	}
	if len(res.Payouts) != len(s.Players) {
		return fmt.Errorf("result covers %d seats, session has %d", len(res.Payouts), len(s.Players))
	}
	for _, p := range s.Players {
		if p.HasClaimed {
			return fmt.Errorf("%w: seat %d already paid", domain.ErrAlreadySettled, p.Seat)
		}
	}

	var total int64
	for _, po := range res.Payouts {
		total += po.Amount
	}
	if total+res.Rake != res.Pool {
		return fmt.Errorf("payouts %d + rake %d != pool %d", total, res.Rake, res.Pool)
	}

	for _, po := range res.Payouts {
		idx := po.Seat
		if idx < 0 || idx >= len(s.Players) || s.Players[idx].Address != po.Address {
			return fmt.Errorf("payout seat %d does not match session", po.Seat)
		}
		if err := e.escrow.Release(ctx, tx, s.ID, po.Address, po.Amount, domain.TxTypePayout); err != nil {
			return fmt.Errorf("pay seat %d: %w", po.Seat, err)
		}
		s.Players[idx].Payout = po.Amount
		s.Players[idx].HasClaimed = true
	}
	if err := e.escrow.CollectRake(ctx, tx, s.ID, res.Rake); err != nil {
		return fmt.Errorf("collect rake: %w", err)
	}
	s.Rake = res.Rake
	return nil
}

// Refund returns exactly the committed stake of the player at index i.
func (e *Engine) Refund(ctx context.Context, tx ledger.Tx, s *domain.Session, i int) (int64, error) {
	if i < 0 || i >= len(s.Players) {
		return 0, fmt.Errorf("%w: no seat %d", domain.ErrInvalidArgument, i)
	}
	p := &s.Players[i]
	if !p.StakeCommitted {
		return 0, fmt.Errorf("%w: %s has no stake", domain.ErrUnauthorized, p.Address)
	}
	if p.HasClaimed {
		return 0, fmt.Errorf("%w: %s already refunded", domain.ErrAlreadySettled, p.Address)
	}
	if err := e.escrow.Release(ctx, tx, s.ID, p.Address, s.StakePerPlayer, domain.TxTypeRefund); err != nil {
		return 0, err
	}
	p.HasClaimed = true
	p.Payout = s.StakePerPlayer
	return s.StakePerPlayer, nil
}

// RefundAll refunds every unclaimed committed stake and returns amounts by address.
func (e *Engine) RefundAll(ctx context.Context, tx ledger.Tx, s *domain.Session) (map[string]int64, error) {
	out := make(map[string]int64)
	for i := range s.Players {
		if !s.Players[i].StakeCommitted || s.Players[i].HasClaimed {
			continue
		}
		amt, err := e.Refund(ctx, tx, s, i)
		if err != nil {
			return nil, err
		}
		out[s.Players[i].Address] = amt
	}
	return out, nil
}
