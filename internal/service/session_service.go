package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/escrow"
	"github.com/vilass86/cardgame/internal/game"
	"github.com/vilass86/cardgame/internal/ledger"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/metrics"
	"github.com/vilass86/cardgame/internal/randomness"
	"github.com/vilass86/cardgame/internal/settlement"

	"github.com/google/uuid"
)

// Options are the operator-controlled limits for new sessions.
type Options struct {
	MinStake      int64
	MaxStake      int64
	MaxCapacity   int
	DefaultTTL    time.Duration
	MaxTTL        time.Duration
	RakeBps       int64
	DefaultRanker string
	AutoResolve   bool
}

// CreateParams is a CreateSession instruction. Deadline wins over TTL.
type CreateParams struct {
	Stake      int64
	Capacity   int
	MinPlayers int
	TTL        time.Duration
	Deadline   time.Time
	Ranker     string
}

// RefundReceipt is what ClaimRefund reports for the caller.
type RefundReceipt struct {
	SessionID   string              `json:"session_id"`
	Address     string              `json:"address"`
	Amount      int64               `json:"amount"`
	Transferred bool                `json:"transferred"`
	State       domain.SessionState `json:"state"`
}

// SessionService runs every session instruction as one atomic host step.
type SessionService struct {
	host   ledger.Host
	coord  *randomness.Coordinator
	escrow *escrow.Ledger
	engine *settlement.Engine
	opts   Options
	sinks  []EventSink
	now    func() time.Time
}

func NewSessionService(host ledger.Host, coord *randomness.Coordinator, esc *escrow.Ledger, opts Options, sinks ...EventSink) *SessionService {
	if opts.DefaultRanker == "" {
		opts.DefaultRanker = game.RankerHoldem
	}
	return &SessionService{
		host:   host,
		coord:  coord,
		escrow: esc,
		engine: settlement.NewEngine(esc),
		opts:   opts,
		sinks:  sinks,
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// AddSink registers another event consumer. Not safe to call while serving.
func (s *SessionService) AddSink(sink EventSink) {
	s.sinks = append(s.sinks, sink)
}

func (s *SessionService) Host() ledger.Host { return s.host }

func (s *SessionService) Coordinator() *randomness.Coordinator { return s.coord }

// step runs fn atomically and publishes its events only after commit.
func (s *SessionService) step(ctx context.Context, fn func(tx ledger.Tx, em *emitter) error) error {
	var em *emitter
	err := s.host.Atomic(ctx, func(tx ledger.Tx) error {
		em = &emitter{at: s.now()}
		return fn(tx, em)
	})
	if err != nil {
		return err
	}
	for _, e := range em.events {
		for _, sink := range s.sinks {
			sink.Publish(ctx, e)
		}
	}
	return nil
}

// Create validates the parameters and opens a session for joining.
func (s *SessionService) Create(ctx context.Context, creator string, p CreateParams) (*domain.Session, error) {
	if creator == "" {
		return nil, fmt.Errorf("%w: missing caller", domain.ErrUnauthorized)
	}
	if p.Stake <= 0 || (s.opts.MinStake > 0 && p.Stake < s.opts.MinStake) || (s.opts.MaxStake > 0 && p.Stake > s.opts.MaxStake) {
		return nil, fmt.Errorf("%w: stake %d outside [%d, %d]", domain.ErrInvalidArgument, p.Stake, s.opts.MinStake, s.opts.MaxStake)
	}
	if p.Capacity < 2 || (s.opts.MaxCapacity > 0 && p.Capacity > s.opts.MaxCapacity) {
		return nil, fmt.Errorf("%w: capacity %d outside [2, %d]", domain.ErrInvalidArgument, p.Capacity, s.opts.MaxCapacity)
	}
	if p.MinPlayers == 0 {
		p.MinPlayers = p.Capacity
	}
	if p.MinPlayers < 2 || p.MinPlayers > p.Capacity {
		return nil, fmt.Errorf("%w: min players %d outside [2, %d]", domain.ErrInvalidArgument, p.MinPlayers, p.Capacity)
	}
	if p.Ranker == "" {
		p.Ranker = s.opts.DefaultRanker
	}
	ranker, err := game.RankerByName(p.Ranker)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if rules := ranker.Rules(); !rules.Accommodates(p.Capacity) {
		return nil, fmt.Errorf("%w: %s deals at most %d players, capacity is %d",
			domain.ErrInvalidArgument, ranker.Name(), rules.MaxPlayers(), p.Capacity)
	}
	if p.Stake > math.MaxInt64/int64(p.Capacity) {
		return nil, fmt.Errorf("%w: stake %d x %d seats overflows", domain.ErrInvalidArgument, p.Stake, p.Capacity)
	}

	now := s.now()
	deadline := p.Deadline
	if deadline.IsZero() {
		ttl := p.TTL
		if ttl <= 0 {
			ttl = s.opts.DefaultTTL
		}
		deadline = now.Add(ttl)
	}
	if !deadline.After(now) {
		return nil, fmt.Errorf("%w: deadline must be in the future", domain.ErrInvalidArgument)
	}
	if s.opts.MaxTTL > 0 && deadline.Sub(now) > s.opts.MaxTTL {
		return nil, fmt.Errorf("%w: deadline beyond %s", domain.ErrInvalidArgument, s.opts.MaxTTL)
	}

	sess := &domain.Session{
		ID:             uuid.NewString(),
		Creator:        creator,
		Players:        []domain.Player{},
		StakePerPlayer: p.Stake,
		Capacity:       p.Capacity,
		MinPlayers:     p.MinPlayers,
		RakeBps:        s.opts.RakeBps,
		Ranker:         ranker.Name(),
		State:          domain.StateCreated,
		CreatedAt:      now,
		ExpiresAt:      deadline,
		UpdatedAt:      now,
	}
	err = s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		if err := sess.Transition(domain.StateAwaitingPlayers, now); err != nil {
			return err
		}
		if err := tx.InsertSession(ctx, sess); err != nil {
			return err
		}
		em.emit(domain.EventSessionCreated, sess, creator, 0, map[string]interface{}{
			"stake":    sess.StakePerPlayer,
			"capacity": sess.Capacity,
			"ranker":   sess.Ranker,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Join commits the caller's stake into escrow and seats them.
func (s *SessionService) Join(ctx context.Context, id, addr string) (*domain.Session, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: missing caller", domain.ErrUnauthorized)
	}
	var out *domain.Session
	err := s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		sess, err := tx.Session(ctx, id)
		if err != nil {
			return err
		}
		if sess.State != domain.StateAwaitingPlayers {
			return fmt.Errorf("%w: cannot join in %s", domain.ErrInvalidState, sess.State)
		}
		if sess.DeadlinePassed(em.at) {
			return fmt.Errorf("%w: session %s", domain.ErrDeadlinePassed, id)
		}
		if _, ok := sess.PlayerIndex(addr); ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicatePlayer, addr)
		}
		if len(sess.Players) >= sess.Capacity {
			return fmt.Errorf("%w: %d/%d seats taken", domain.ErrCapacityExceeded, len(sess.Players), sess.Capacity)
		}
		if err := s.escrow.Hold(ctx, tx, sess.ID, addr, sess.StakePerPlayer); err != nil {
			return err
		}
		sess.Players = append(sess.Players, domain.Player{
			Address:        addr,
			Seat:           len(sess.Players),
			StakeCommitted: true,
			JoinedAt:       em.at,
		})
		sess.UpdatedAt = em.at
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		em.emit(domain.EventPlayerJoined, sess, addr, sess.StakePerPlayer, nil)
		out = sess
		return nil
	})
	return out, err
}

// Leave refunds a player who changes their mind before lock.
func (s *SessionService) Leave(ctx context.Context, id, addr string) (*domain.Session, error) {
	var out *domain.Session
	err := s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		sess, err := tx.Session(ctx, id)
		if err != nil {
			return err
		}
		if sess.State != domain.StateAwaitingPlayers {
			return fmt.Errorf("%w: cannot leave in %s", domain.ErrInvalidState, sess.State)
		}
		idx, ok := sess.PlayerIndex(addr)
		if !ok {
			return fmt.Errorf("%w: %s has not joined", domain.ErrUnauthorized, addr)
		}
		amount, err := s.engine.Refund(ctx, tx, sess, idx)
		if err != nil {
			return err
		}
		sess.Players = append(sess.Players[:idx], sess.Players[idx+1:]...)
		sess.Reseat()
		sess.UpdatedAt = em.at
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		em.emit(domain.EventRefundPaid, sess, addr, amount, nil)
		em.emit(domain.EventPlayerLeft, sess, addr, 0, nil)
		out = sess
		return nil
	})
	return out, err
}

// Lock closes the table once enough players have joined.
func (s *SessionService) Lock(ctx context.Context, id, caller string) (*domain.Session, error) {
	var out *domain.Session
	err := s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		sess, err := tx.Session(ctx, id)
		if err != nil {
			return err
		}
		if sess.State != domain.StateAwaitingPlayers {
			return fmt.Errorf("%w: cannot lock in %s", domain.ErrInvalidState, sess.State)
		}
		if !sess.IsParticipant(caller) {
			return fmt.Errorf("%w: %s is not in session %s", domain.ErrUnauthorized, caller, id)
		}
		if sess.DeadlinePassed(em.at) {
			return fmt.Errorf("%w: session %s", domain.ErrDeadlinePassed, id)
		}
		if len(sess.Players) < sess.MinPlayers {
			return fmt.Errorf("%w: %d players, need %d", domain.ErrInvalidState, len(sess.Players), sess.MinPlayers)
		}
		if err := sess.Transition(domain.StateLocked, em.at); err != nil {
			return err
		}
		sess.Reseat()
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		em.emit(domain.EventSessionLocked, sess, caller, 0, map[string]interface{}{"players": len(sess.Players)})
		out = sess
		return nil
	})
	return out, err
}

// RequestRandomness issues the session's single request. Calling it again
// returns the live request without contacting the oracle.
func (s *SessionService) RequestRandomness(ctx context.Context, id, caller string) (*domain.RandomnessRequest, error) {
	var out *domain.RandomnessRequest
	err := s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		sess, err := tx.Session(ctx, id)
		if err != nil {
			return err
		}
		if !sess.IsParticipant(caller) {
			return fmt.Errorf("%w: %s is not in session %s", domain.ErrUnauthorized, caller, id)
		}
		switch sess.State {
		case domain.StateRandomnessRequested:
			out, err = tx.Request(ctx, sess.RequestNonce)
			return err
		case domain.StateLocked:
		default:
			return fmt.Errorf("%w: cannot request randomness in %s", domain.ErrInvalidState, sess.State)
		}
		if sess.DeadlinePassed(em.at) {
			return fmt.Errorf("%w: session %s", domain.ErrDeadlinePassed, id)
		}

		req, err := s.coord.Request(ctx, tx, sess)
		if err != nil {
			return err
		}
		sess.RequestNonce = req.Nonce
		if err := sess.Transition(domain.StateRandomnessRequested, em.at); err != nil {
			return err
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		em.emit(domain.EventRandomnessRequested, sess, caller, 0, map[string]interface{}{"nonce": req.Nonce})
		out = req
		return nil
	})
	return out, err
}

// FulfillRandomness applies an oracle response. Rejections leave the session untouched.
func (s *SessionService) FulfillRandomness(ctx context.Context, nonce string, raw, proof []byte) (*domain.Session, error) {
	var out *domain.Session
	err := s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		req, err := s.coord.Fulfill(ctx, tx, nonce, raw, proof)
		if err != nil {
			return err
		}
		sess, err := tx.Session(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if sess.State != domain.StateRandomnessRequested || sess.RequestNonce != nonce {
			return fmt.Errorf("%w: nonce %s is not live for session %s", domain.ErrUnknownRequest, nonce, sess.ID)
		}
		if sess.Seed != nil {
			return fmt.Errorf("%w: session %s already seeded", domain.ErrAlreadyFulfilled, sess.ID)
		}
		sess.Seed = append([]byte(nil), req.RawValue...)
		if err := sess.Transition(domain.StateRandomnessFulfilled, em.at); err != nil {
			return err
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		em.emit(domain.EventRandomnessFulfilled, sess, "", 0, map[string]interface{}{
			"nonce": nonce,
			"seed":  hex.EncodeToString(sess.Seed),
		})
		out = sess
		return nil
	})
	metrics.ObserveFulfillment(err)
	if err != nil {
		logger.Warn("randomness fulfillment rejected", "nonce", nonce, "code", domain.CodeOf(err), "error", err)
		return nil, err
	}

	if s.opts.AutoResolve {
		resolved, _, err := s.Resolve(ctx, out.ID)
		if err != nil {
			logger.Session(out.ID).Error("auto resolve failed", "error", err)
			return out, nil
		}
		return resolved, nil
	}
	return out, nil
}

// Resolve deals from the verified seed and pays out. It runs once per session.
func (s *SessionService) Resolve(ctx context.Context, id string) (*domain.Session, *settlement.Result, error) {
	var (
		out *domain.Session
		res *settlement.Result
	)
	err := s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		sess, err := tx.Session(ctx, id)
		if err != nil {
			return err
		}
		switch sess.State {
		case domain.StateResolved:
			return fmt.Errorf("%w: session %s", domain.ErrAlreadySettled, id)
		case domain.StateRandomnessFulfilled:
		default:
			return fmt.Errorf("%w: cannot resolve in %s", domain.ErrInvalidState, sess.State)
		}

		ranker, err := game.RankerByName(sess.Ranker)
		if err != nil {
			return err
		}
		outcome, err := game.Deal(sess.Seed, sess.ID, sess.Addresses(), ranker.Rules())
		if err != nil {
			return fmt.Errorf("deal: %w", err)
		}
		res, err = settlement.Compute(outcome, ranker, sess.StakePerPlayer, sess.RakeBps)
		if err != nil {
			return fmt.Errorf("compute payouts: %w", err)
		}
		if err := s.engine.Settle(ctx, tx, sess, res); err != nil {
			return err
		}
		if held, err := s.escrow.Held(ctx, tx, sess.ID); err != nil {
			return err
		} else if held != 0 {
			return fmt.Errorf("escrow for %s holds %d after settlement", sess.ID, held)
		}

		sess.Outcome = outcome
		if err := sess.Transition(domain.StateResolved, em.at); err != nil {
			return err
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		digest, _ := outcome.Digest()
		for _, p := range res.Payouts {
			if p.Amount > 0 {
				em.emit(domain.EventPayoutPaid, sess, p.Address, p.Amount, map[string]interface{}{
					"seat": p.Seat,
					"hand": p.Description,
				})
			}
		}
		em.emit(domain.EventSessionResolved, sess, "", res.Pool, map[string]interface{}{
			"winning_seats": res.WinningSeats,
			"rake":          res.Rake,
			"digest":        digest,
		})
		out = sess
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Session(id).Info("session resolved", "pool", res.Pool, "rake", res.Rake, "winning_seats", res.WinningSeats)
	return out, res, nil
}

// Cancel lets the creator abandon a session before lock. Every stake is refunded.
func (s *SessionService) Cancel(ctx context.Context, id, caller string) (*domain.Session, error) {
	var out *domain.Session
	err := s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		sess, err := tx.Session(ctx, id)
		if err != nil {
			return err
		}
		if caller == "" || caller != sess.Creator {
			return fmt.Errorf("%w: only the creator may cancel", domain.ErrUnauthorized)
		}
		if sess.State != domain.StateAwaitingPlayers {
			return fmt.Errorf("%w: cannot cancel in %s", domain.ErrInvalidState, sess.State)
		}
		if err := sess.Transition(domain.StateCancelled, em.at); err != nil {
			return err
		}
		if err := s.refundAll(ctx, tx, sess, em); err != nil {
			return err
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		em.emit(domain.EventSessionCancelled, sess, caller, 0, nil)
		out = sess
		return nil
	})
	return out, err
}

// Expire moves a session past its deadline to Expired and refunds it. Anyone may call it.
func (s *SessionService) Expire(ctx context.Context, id string) (*domain.Session, error) {
	var out *domain.Session
	err := s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		sess, err := tx.Session(ctx, id)
		if err != nil {
			return err
		}
		if err := s.expire(ctx, tx, sess, em); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *SessionService) expire(ctx context.Context, tx ledger.Tx, sess *domain.Session, em *emitter) error {
	if !sess.State.Expirable() {
		return fmt.Errorf("%w: cannot expire in %s", domain.ErrInvalidState, sess.State)
	}
	if !sess.DeadlinePassed(em.at) {
		return fmt.Errorf("%w: expires at %s", domain.ErrDeadlineNotReached, sess.ExpiresAt.Format(time.RFC3339))
	}
	if sess.RequestNonce != "" {
		if err := s.coord.Expire(ctx, tx, sess.RequestNonce); err != nil {
			return err
		}
	}
	if err := sess.Transition(domain.StateExpired, em.at); err != nil {
		return err
	}
	if err := s.refundAll(ctx, tx, sess, em); err != nil {
		return err
	}
	if err := tx.UpdateSession(ctx, sess); err != nil {
		return err
	}
	em.emit(domain.EventSessionExpired, sess, "", 0, nil)
	return nil
}

func (s *SessionService) refundAll(ctx context.Context, tx ledger.Tx, sess *domain.Session, em *emitter) error {
	refunds, err := s.engine.RefundAll(ctx, tx, sess)
	if err != nil {
		return err
	}
	addrs := make([]string, 0, len(refunds))
	for a := range refunds {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		em.emit(domain.EventRefundPaid, sess, a, refunds[a], nil)
	}
	if held, err := s.escrow.Held(ctx, tx, sess.ID); err != nil {
		return err
	} else if held != 0 {
		return fmt.Errorf("escrow for %s holds %d after refunds", sess.ID, held)
	}
	return nil
}

// ClaimRefund returns the caller's stake from a cancelled or expired session,
// expiring it first if the deadline has passed. Repeat claims report the
// earlier refund and move nothing.
func (s *SessionService) ClaimRefund(ctx context.Context, id, caller string) (*RefundReceipt, error) {
	var out *RefundReceipt
	err := s.step(ctx, func(tx ledger.Tx, em *emitter) error {
		sess, err := tx.Session(ctx, id)
		if err != nil {
			return err
		}
		idx, ok := sess.PlayerIndex(caller)
		if !ok || caller == "" || !sess.Players[idx].StakeCommitted {
			return fmt.Errorf("%w: %s has no stake in session %s", domain.ErrUnauthorized, caller, id)
		}
		if sess.State.Expirable() {
			if err := s.expire(ctx, tx, sess, em); err != nil {
				return err
			}
		}
		if sess.State != domain.StateCancelled && sess.State != domain.StateExpired {
			return fmt.Errorf("%w: no refunds in %s", domain.ErrInvalidState, sess.State)
		}

		receipt := &RefundReceipt{SessionID: sess.ID, Address: caller, Amount: sess.StakePerPlayer, State: sess.State}
		if !sess.Players[idx].HasClaimed {
			amount, err := s.engine.Refund(ctx, tx, sess, idx)
			if err != nil {
				return err
			}
			if err := tx.UpdateSession(ctx, sess); err != nil {
				return err
			}
			em.emit(domain.EventRefundPaid, sess, caller, amount, nil)
			receipt.Transferred = true
		} else if em.refunded(caller) {
			receipt.Transferred = true
		}
		out = receipt
		return nil
	})
	return out, err
}

// Get returns committed session state.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.host.Session(ctx, id)
}

// Verification is everything an observer needs to replay a resolved deal.
type Verification struct {
	SessionID string        `json:"session_id"`
	Nonce     string        `json:"nonce"`
	Seed      string        `json:"seed"`
	Proof     string        `json:"proof"`
	PublicKey string        `json:"public_key"`
	Digest    string        `json:"digest"`
	Outcome   *game.Outcome `json:"outcome"`
	Matches   bool          `json:"matches"`
}

// Verify re-checks the stored proof and re-derives the deal from the seed.
func (s *SessionService) Verify(ctx context.Context, id string) (*Verification, error) {
	sess, err := s.host.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != domain.StateRandomnessFulfilled && sess.State != domain.StateResolved {
		return nil, fmt.Errorf("%w: nothing to verify in %s", domain.ErrInvalidState, sess.State)
	}
	req, err := s.host.Request(ctx, sess.RequestNonce)
	if err != nil {
		return nil, err
	}
	if err := s.coord.VerifyStored(req); err != nil {
		return nil, err
	}
	ranker, err := game.RankerByName(sess.Ranker)
	if err != nil {
		return nil, err
	}
	outcome, err := game.Deal(req.RawValue, sess.ID, sess.Addresses(), ranker.Rules())
	if err != nil {
		return nil, err
	}
	digest, err := outcome.Digest()
	if err != nil {
		return nil, err
	}

	v := &Verification{
		SessionID: sess.ID,
		Nonce:     req.Nonce,
		Seed:      hex.EncodeToString(req.RawValue),
		Proof:     hex.EncodeToString(req.Proof),
		PublicKey: s.coord.PublicKey().Hex(),
		Digest:    digest,
		Outcome:   outcome,
		Matches:   true,
	}
	if sess.Outcome != nil {
		stored, err := sess.Outcome.Digest()
		if err != nil {
			return nil, err
		}
		v.Matches = stored == digest
	}
	return v, nil
}
