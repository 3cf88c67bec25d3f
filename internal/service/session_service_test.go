package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/escrow"
	"github.com/vilass86/cardgame/internal/game"
	"github.com/vilass86/cardgame/internal/ledger"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/randomness"
	"github.com/vilass86/cardgame/internal/vrf"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// captureOracle keeps requests so tests decide when and how to answer.
type captureOracle struct {
	reqs []*domain.RandomnessRequest
}

func (o *captureOracle) Submit(_ context.Context, req *domain.RandomnessRequest) error {
	o.reqs = append(o.reqs, req.Clone())
	return nil
}

type recordSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordSink) Publish(_ context.Context, e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordSink) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type harness struct {
	svc     *SessionService
	host    *ledger.Memory
	key     *vrf.PrivateKey
	oracle  *captureOracle
	clock   *fakeClock
	sink    *recordSink
	balance *BalanceService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	key := vrf.GenerateKey()
	oracle := &captureOracle{}
	coord := randomness.NewCoordinator(key.Public(), oracle).WithClock(clock.Now)
	host := ledger.NewMemory()
	sink := &recordSink{}
	svc := NewSessionService(host, coord, escrow.New("house"), Options{
		MinStake:      1,
		MaxStake:      1_000_000,
		MaxCapacity:   9,
		DefaultTTL:    time.Hour,
		MaxTTL:        24 * time.Hour,
		RakeBps:       500,
		DefaultRanker: game.RankerHighCard,
	}, sink).WithClock(clock.Now)
	return &harness{svc: svc, host: host, key: key, oracle: oracle, clock: clock, sink: sink, balance: NewBalanceService(host)}
}

func (h *harness) fund(t *testing.T, amount int64, addrs ...string) {
	t.Helper()
	for _, a := range addrs {
		if _, err := h.balance.Deposit(context.Background(), a, amount, nil); err != nil {
			t.Fatalf("deposit %s: %v", a, err)
		}
	}
}

func (h *harness) bal(t *testing.T, acct string) int64 {
	t.Helper()
	b, err := h.host.Balance(context.Background(), acct)
	if err != nil {
		t.Fatalf("balance %s: %v", acct, err)
	}
	return b
}

// seated creates a session and joins every address.
func (h *harness) seated(t *testing.T, capacity int, addrs ...string) *domain.Session {
	t.Helper()
	ctx := context.Background()
	s, err := h.svc.Create(ctx, addrs[0], CreateParams{Stake: 100, Capacity: capacity})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, a := range addrs {
		if s, err = h.svc.Join(ctx, s.ID, a); err != nil {
			t.Fatalf("join %s: %v", a, err)
		}
	}
	return s
}

// requested drives a seated session to RandomnessRequested.
func (h *harness) requested(t *testing.T, s *domain.Session) *domain.RandomnessRequest {
	t.Helper()
	ctx := context.Background()
	if _, err := h.svc.Lock(ctx, s.ID, s.Creator); err != nil {
		t.Fatalf("lock: %v", err)
	}
	req, err := h.svc.RequestRandomness(ctx, s.ID, s.Creator)
	if err != nil {
		t.Fatalf("request randomness: %v", err)
	}
	return req
}

func TestFullRoundSettlesWithRake(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	players := []string{"a", "b", "c", "d"}
	h.fund(t, 100, players...)

	s := h.seated(t, 4, players...)
	if got := h.bal(t, escrow.AccountID(s.ID)); got != 400 {
		t.Fatalf("escrow = %d; want 400", got)
	}
	req := h.requested(t, s)
	if len(h.oracle.reqs) != 1 || h.oracle.reqs[0].Nonce != req.Nonce {
		t.Fatalf("oracle saw %d requests", len(h.oracle.reqs))
	}

	raw, proof, err := randomness.Respond(h.key, req)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	h.clock.Advance(time.Minute)
	fs, err := h.svc.FulfillRandomness(ctx, req.Nonce, raw, proof)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if fs.State != domain.StateRandomnessFulfilled {
		t.Fatalf("state = %s", fs.State)
	}

	rs, res, err := h.svc.Resolve(ctx, s.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rs.State != domain.StateResolved || rs.Outcome == nil {
		t.Fatalf("resolved session = %+v", rs)
	}
	if res.Rake != 20 || len(res.WinningSeats) != 1 {
		t.Fatalf("result = %+v", res)
	}
	winner := res.Payouts[res.WinningSeats[0]].Address
	var total int64
	for _, p := range players {
		b := h.bal(t, p)
		total += b
		want := int64(0)
		if p == winner {
			want = 380
		}
		if b != want {
			t.Fatalf("%s = %d; want %d", p, b, want)
		}
	}
	if house := h.bal(t, "house"); house != 20 || total+house != 400 {
		t.Fatalf("house = %d, players = %d", house, total)
	}
	if got := h.bal(t, escrow.AccountID(s.ID)); got != 0 {
		t.Fatalf("escrow after resolve = %d", got)
	}

	if _, _, err := h.svc.Resolve(ctx, s.ID); !errors.Is(err, domain.ErrAlreadySettled) {
		t.Fatalf("second resolve err = %v; want ErrAlreadySettled", err)
	}

	v, err := h.svc.Verify(ctx, s.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Matches || v.Nonce != req.Nonce {
		t.Fatalf("verification = %+v", v)
	}
}

func TestDealIsReproducibleFromSeed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b", "c")
	s := h.seated(t, 3, "a", "b", "c")
	req := h.requested(t, s)
	raw, proof, _ := randomness.Respond(h.key, req)
	if _, err := h.svc.FulfillRandomness(ctx, req.Nonce, raw, proof); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	rs, _, err := h.svc.Resolve(ctx, s.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	again, err := game.Deal(raw, s.ID, []string{"a", "b", "c"}, game.HighCardRanker{}.Rules())
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	d1, _ := rs.Outcome.Digest()
	d2, _ := again.Digest()
	if d1 != d2 {
		t.Fatalf("replayed deal differs")
	}
}

func TestFulfillRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b")
	s := h.seated(t, 2, "a", "b")
	req := h.requested(t, s)
	raw, proof, _ := randomness.Respond(h.key, req)

	tampered := append([]byte(nil), raw...)
	tampered[0] ^= 0xff
	other := vrf.GenerateKey()
	foreignRaw, foreignProof, _ := randomness.Respond(other, req)

	cases := []struct {
		name  string
		nonce string
		raw   []byte
		proof []byte
		want  error
	}{
		{"unknown nonce", "00ff00ff", raw, proof, domain.ErrUnknownRequest},
		{"tampered value", req.Nonce, tampered, proof, domain.ErrProofVerificationFailed},
		{"foreign key", req.Nonce, foreignRaw, foreignProof, domain.ErrProofVerificationFailed},
		{"short proof", req.Nonce, raw, proof[:10], domain.ErrProofVerificationFailed},
	}
	for _, tc := range cases {
		_, err := h.svc.FulfillRandomness(ctx, tc.nonce, tc.raw, tc.proof)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v; want %v", tc.name, err, tc.want)
		}
		got, _ := h.svc.Get(ctx, s.ID)
		if got.State != domain.StateRandomnessRequested || got.Seed != nil {
			t.Fatalf("%s: session moved to %s", tc.name, got.State)
		}
	}

	if _, err := h.svc.FulfillRandomness(ctx, req.Nonce, raw, proof); err != nil {
		t.Fatalf("valid fulfill: %v", err)
	}
	if _, err := h.svc.FulfillRandomness(ctx, req.Nonce, raw, proof); !errors.Is(err, domain.ErrAlreadyFulfilled) {
		t.Fatalf("replay err = %v; want ErrAlreadyFulfilled", err)
	}
}

func TestRequestRandomnessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b")
	s := h.seated(t, 2, "a", "b")
	first := h.requested(t, s)
	again, err := h.svc.RequestRandomness(ctx, s.ID, "b")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if again.Nonce != first.Nonce || len(h.oracle.reqs) != 1 {
		t.Fatalf("second call issued a new request")
	}
	if _, err := h.svc.RequestRandomness(ctx, s.ID, "mallory"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("outsider err = %v; want ErrUnauthorized", err)
	}
}

func TestJoinGuards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b", "c")
	h.fund(t, 50, "poor")
	s, err := h.svc.Create(ctx, "a", CreateParams{Stake: 100, Capacity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.svc.Join(ctx, s.ID, "a"); err != nil {
		t.Fatalf("join a: %v", err)
	}

	cases := []struct {
		addr string
		want error
	}{
		{"a", domain.ErrDuplicatePlayer},
		{"poor", domain.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		if _, err := h.svc.Join(ctx, s.ID, tc.addr); !errors.Is(err, tc.want) {
			t.Fatalf("join %s: err = %v; want %v", tc.addr, err, tc.want)
		}
	}
	if got := h.bal(t, "poor"); got != 50 {
		t.Fatalf("failed join moved funds: %d", got)
	}
	if _, err := h.svc.Join(ctx, s.ID, "b"); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if _, err := h.svc.Join(ctx, s.ID, "c"); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("join c err = %v; want ErrCapacityExceeded", err)
	}
	if _, err := h.svc.Join(ctx, "missing", "c"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("join missing err = %v", err)
	}

	if _, err := h.svc.Lock(ctx, s.ID, "c"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("outsider lock err = %v", err)
	}
	if _, err := h.svc.Lock(ctx, s.ID, "b"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := h.svc.Join(ctx, s.ID, "c"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("join after lock err = %v; want ErrInvalidState", err)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cases := []struct {
		name string
		p    CreateParams
	}{
		{"zero stake", CreateParams{Stake: 0, Capacity: 2}},
		{"over max stake", CreateParams{Stake: 2_000_000, Capacity: 2}},
		{"solo table", CreateParams{Stake: 10, Capacity: 1}},
		{"over max capacity", CreateParams{Stake: 10, Capacity: 10}},
		{"min above capacity", CreateParams{Stake: 10, Capacity: 3, MinPlayers: 4}},
		{"unknown ranker", CreateParams{Stake: 10, Capacity: 2, Ranker: "bridge"}},
		{"ttl too long", CreateParams{Stake: 10, Capacity: 2, TTL: 48 * time.Hour}},
		{"past deadline", CreateParams{Stake: 10, Capacity: 2, Deadline: h.clock.Now().Add(-time.Second)}},
	}
	for _, tc := range cases {
		if _, err := h.svc.Create(ctx, "a", tc.p); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("%s: err = %v; want ErrInvalidArgument", tc.name, err)
		}
	}
	if _, err := h.svc.Create(ctx, "", CreateParams{Stake: 10, Capacity: 2}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("anonymous create err = %v", err)
	}
	s, err := h.svc.Create(ctx, "a", CreateParams{Stake: 10, Capacity: 9, MinPlayers: 2, Ranker: game.RankerHoldem})
	if err != nil {
		t.Fatalf("create holdem: %v", err)
	}
	if s.State != domain.StateAwaitingPlayers || !s.ExpiresAt.Equal(h.clock.Now().Add(time.Hour)) {
		t.Fatalf("session = %+v", s)
	}
}

func TestLockRespectsMinPlayers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b", "c")
	s, err := h.svc.Create(ctx, "a", CreateParams{Stake: 100, Capacity: 4, MinPlayers: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, a := range []string{"a", "b"} {
		if _, err := h.svc.Join(ctx, s.ID, a); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if _, err := h.svc.Lock(ctx, s.ID, "a"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("lock with 2/3 err = %v", err)
	}
	if _, err := h.svc.Join(ctx, s.ID, "c"); err != nil {
		t.Fatalf("join c: %v", err)
	}
	if _, err := h.svc.Lock(ctx, s.ID, "a"); err != nil {
		t.Fatalf("lock: %v", err)
	}
}

func TestLeaveRefundsAndReseats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b", "c")
	s := h.seated(t, 3, "a", "b", "c")
	s, err := h.svc.Leave(ctx, s.ID, "b")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if h.bal(t, "b") != 100 || h.bal(t, escrow.AccountID(s.ID)) != 200 {
		t.Fatalf("leave did not refund")
	}
	if len(s.Players) != 2 || s.Players[1].Address != "c" || s.Players[1].Seat != 1 {
		t.Fatalf("players = %+v", s.Players)
	}
	if _, err := h.svc.Leave(ctx, s.ID, "b"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("second leave err = %v", err)
	}
}

func TestCancelRefundsEveryone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b", "c")
	s := h.seated(t, 4, "a", "b", "c")

	if _, err := h.svc.Cancel(ctx, s.ID, "b"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-creator cancel err = %v", err)
	}
	cs, err := h.svc.Cancel(ctx, s.ID, "a")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cs.State != domain.StateCancelled {
		t.Fatalf("state = %s", cs.State)
	}
	for _, a := range []string{"a", "b", "c"} {
		if got := h.bal(t, a); got != 100 {
			t.Fatalf("%s = %d; want 100", a, got)
		}
	}
	r, err := h.svc.ClaimRefund(ctx, s.ID, "c")
	if err != nil {
		t.Fatalf("claim after cancel: %v", err)
	}
	if r.Amount != 100 || r.Transferred {
		t.Fatalf("receipt = %+v", r)
	}
	if got := h.bal(t, "c"); got != 100 {
		t.Fatalf("claim paid twice: %d", got)
	}
}

func TestExpiryAndClaimRefund(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b", "c")
	s := h.seated(t, 4, "a", "b")

	if _, err := h.svc.ClaimRefund(ctx, s.ID, "a"); !errors.Is(err, domain.ErrDeadlineNotReached) {
		t.Fatalf("early claim err = %v; want ErrDeadlineNotReached", err)
	}
	if _, err := h.svc.Expire(ctx, s.ID); !errors.Is(err, domain.ErrDeadlineNotReached) {
		t.Fatalf("early expire err = %v", err)
	}

	h.clock.Advance(2 * time.Hour)
	if _, err := h.svc.Join(ctx, s.ID, "d"); !errors.Is(err, domain.ErrDeadlinePassed) {
		t.Fatalf("late join err = %v; want ErrDeadlinePassed", err)
	}

	r, err := h.svc.ClaimRefund(ctx, s.ID, "a")
	if err != nil {
		t.Fatalf("claim a: %v", err)
	}
	if r.Amount != 100 || !r.Transferred || r.State != domain.StateExpired {
		t.Fatalf("receipt = %+v", r)
	}
	for _, a := range []string{"b"} {
		r, err := h.svc.ClaimRefund(ctx, s.ID, a)
		if err != nil {
			t.Fatalf("claim %s: %v", a, err)
		}
		if r.Amount != 100 {
			t.Fatalf("%s receipt = %+v", a, r)
		}
	}
	for _, a := range []string{"a", "b", "c"} {
		if got := h.bal(t, a); got != 100 {
			t.Fatalf("%s = %d; want 100", a, got)
		}
	}
	if got := h.bal(t, escrow.AccountID(s.ID)); got != 0 {
		t.Fatalf("escrow = %d", got)
	}
	if _, err := h.svc.ClaimRefund(ctx, s.ID, "c"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("outsider claim err = %v; want ErrUnauthorized", err)
	}
}

func TestExpireRetiresPendingRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b")
	s := h.seated(t, 2, "a", "b")
	req := h.requested(t, s)
	raw, proof, _ := randomness.Respond(h.key, req)

	h.clock.Advance(2 * time.Hour)
	es, err := h.svc.Expire(ctx, s.ID)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if es.State != domain.StateExpired {
		t.Fatalf("state = %s", es.State)
	}
	stored, _ := h.host.Request(ctx, req.Nonce)
	if stored.Status != domain.RequestExpired {
		t.Fatalf("request status = %s", stored.Status)
	}
	if _, err := h.svc.FulfillRandomness(ctx, req.Nonce, raw, proof); !errors.Is(err, domain.ErrDeadlinePassed) {
		t.Fatalf("late fulfill err = %v; want ErrDeadlinePassed", err)
	}
	if h.bal(t, "a") != 100 || h.bal(t, "b") != 100 {
		t.Fatalf("stakes not refunded")
	}
	if _, err := h.svc.Expire(ctx, s.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second expire err = %v", err)
	}
}

func TestFulfilledSessionCannotExpire(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b")
	s := h.seated(t, 2, "a", "b")
	req := h.requested(t, s)
	raw, proof, _ := randomness.Respond(h.key, req)
	if _, err := h.svc.FulfillRandomness(ctx, req.Nonce, raw, proof); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	h.clock.Advance(2 * time.Hour)
	if _, err := h.svc.Expire(ctx, s.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expire fulfilled err = %v; want ErrInvalidState", err)
	}
	if _, _, err := h.svc.Resolve(ctx, s.ID); err != nil {
		t.Fatalf("resolve after deadline: %v", err)
	}
}

func TestSweeperExpiresStaleSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b", "c")
	stale := h.seated(t, 3, "a", "b")
	fresh, err := h.svc.Create(ctx, "c", CreateParams{Stake: 100, Capacity: 2, TTL: 10 * time.Hour})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h.clock.Advance(2 * time.Hour)
	n, err := NewSweeper(h.svc, time.Second).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d; want 1", n)
	}
	if got, _ := h.svc.Get(ctx, stale.ID); got.State != domain.StateExpired {
		t.Fatalf("stale state = %s", got.State)
	}
	if got, _ := h.svc.Get(ctx, fresh.ID); got.State != domain.StateAwaitingPlayers {
		t.Fatalf("fresh state = %s", got.State)
	}
}

func TestEventsPublishedAfterCommitOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 100, "a", "b")
	s := h.seated(t, 2, "a", "b")
	_, _ = h.svc.Join(ctx, s.ID, "a") // rejected, no event
	want := []domain.EventKind{domain.EventSessionCreated, domain.EventPlayerJoined, domain.EventPlayerJoined}
	got := h.sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v; want %v", got, want)
		}
	}
}

func TestAutoResolveWithLocalOracle(t *testing.T) {
	ctx := context.Background()
	clock := time.Now
	key := vrf.GenerateKey()
	oracle := randomness.NewLocalOracle(key, 0)
	host := ledger.NewMemory()
	svc := NewSessionService(host, randomness.NewCoordinator(key.Public(), oracle), escrow.New("house"), Options{
		DefaultTTL:    time.Hour,
		DefaultRanker: game.RankerHoldem,
		AutoResolve:   true,
	}).WithClock(clock)
	oracle.Bind(svc)

	bal := NewBalanceService(host)
	for _, a := range []string{"a", "b"} {
		if _, err := bal.Deposit(ctx, a, 50, nil); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	s, err := svc.Create(ctx, "a", CreateParams{Stake: 50, Capacity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, a := range []string{"a", "b"} {
		if _, err := svc.Join(ctx, s.ID, a); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if _, err := svc.Lock(ctx, s.ID, "a"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := svc.RequestRandomness(ctx, s.ID, "a"); err != nil {
		t.Fatalf("request: %v", err)
	}
	oracle.Wait()

	got, err := svc.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.StateResolved {
		t.Fatalf("state = %s; want resolved", got.State)
	}
	a, _ := host.Balance(ctx, "a")
	b, _ := host.Balance(ctx, "b")
	if a+b != 100 {
		t.Fatalf("payouts %d + %d != 100", a, b)
	}
}

// settle runs a seated session through fulfillment and resolution.
func (h *harness) settle(t *testing.T, s *domain.Session) {
	t.Helper()
	ctx := context.Background()
	req := h.requested(t, s)
	raw, proof, err := randomness.Respond(h.key, req)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := h.svc.FulfillRandomness(ctx, req.Nonce, raw, proof); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if _, _, err := h.svc.Resolve(ctx, s.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestVerifyMatchesStoredOutcomeForEveryRanker(t *testing.T) {
	ctx := context.Background()
	for _, ranker := range []string{game.RankerHighCard, game.RankerHoldem} {
		h := newHarness(t)
		h.fund(t, 100, "a", "b")
		s, err := h.svc.Create(ctx, "a", CreateParams{Stake: 100, Capacity: 2, Ranker: ranker})
		if err != nil {
			t.Fatalf("%s: create: %v", ranker, err)
		}
		for _, a := range []string{"a", "b"} {
			if _, err := h.svc.Join(ctx, s.ID, a); err != nil {
				t.Fatalf("%s: join: %v", ranker, err)
			}
		}
		h.settle(t, s)

		v, err := h.svc.Verify(ctx, s.ID)
		if err != nil {
			t.Fatalf("%s: verify: %v", ranker, err)
		}
		if !v.Matches {
			t.Fatalf("%s: honest deal reported as mismatched", ranker)
		}
		stored, _ := h.svc.Get(ctx, s.ID)
		if d, _ := stored.Outcome.Digest(); d != v.Digest {
			t.Fatalf("%s: stored digest %s != replay %s", ranker, d, v.Digest)
		}
	}
}

func TestResolveLogsSessionID(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, "info", true)
	defer logger.Init("info", false)

	h := newHarness(t)
	h.fund(t, 100, "a", "b")
	s := h.seated(t, 2, "a", "b")
	h.settle(t, s)

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]interface{}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec["msg"] == "session resolved" {
			if rec["session_id"] != s.ID {
				t.Fatalf("resolved log session_id = %v; want %s", rec["session_id"], s.ID)
			}
			return
		}
	}
	t.Fatalf("no session resolved log line in %q", buf.String())
}
