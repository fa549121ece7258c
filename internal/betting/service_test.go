package betting_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/betting"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/event"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/ledger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *storage.Memory
	ledger  *ledger.Service
	betting *betting.Service
	events  *event.Service
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := t0
	f := &fixture{store: storage.NewMemory(), clock: &now}
	tick := func() time.Time { return *f.clock }
	f.ledger = ledger.NewService(f.store, tick)
	f.betting = betting.NewService(f.store, f.ledger, betting.Limits{BetMin: 100, BetMax: 1000000, Cutoff: time.Hour}, tick)
	f.events = event.NewService(f.store, f.ledger, time.Hour, tick)
	return f
}

func (f *fixture) fund(t *testing.T, userID string, cents int64) {
	t.Helper()
	u := userID
	if _, err := f.ledger.Append(context.Background(), ledger.Entry{
		To: &u, AmountCents: cents, Type: storage.TxDeposit,
	}); err != nil {
		t.Fatalf("fund %s: %v", userID, err)
	}
}

// openEvent cria um evento aberto para apostas com início em start.
func (f *fixture) openEvent(t *testing.T, start *time.Time) *storage.Event {
	t.Helper()
	ctx := context.Background()
	ev, err := f.events.Create(ctx, event.CreateParams{
		Title: "arena", MaxParticipants: 2, FeePercent: 5, MatchStart: start,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.events.Open(ctx, ev.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := f.events.OpenBets(ctx, ev.ID); err != nil {
		t.Fatalf("open bets: %v", err)
	}
	return ev
}

func TestPlaceValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.openEvent(t, nil)
	f.fund(t, "u1", 10000)

	tests := []struct {
		name   string
		side   storage.Side
		amount int64
	}{
		{"invalid side", storage.Side("C"), 500},
		{"below minimum", storage.SideA, 99},
		{"above maximum", storage.SideA, 1000001},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.betting.Place(ctx, ev.ID, "u1", tc.side, tc.amount, "")
			if !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	if _, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideA, 20000, ""); !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestPlaceEscrowsStake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.openEvent(t, nil)
	f.fund(t, "u1", 10000)

	res, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideA, 2000, "")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if res.Matched {
		t.Fatalf("lone bet should stay pending")
	}
	if res.Bet.Status != storage.BetPending {
		t.Fatalf("expected pending, got %s", res.Bet.Status)
	}
	if res.NewBalance != 8000 {
		t.Fatalf("expected balance 8000, got %d", res.NewBalance)
	}

	escrow, err := f.ledger.Balance(ctx, storage.AccountEscrow)
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if escrow != 2000 {
		t.Fatalf("expected escrow 2000, got %d", escrow)
	}
}

func TestExactAmountMatching(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.openEvent(t, nil)
	f.fund(t, "u1", 10000)
	f.fund(t, "u2", 10000)

	a, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideA, 2000, "")
	if err != nil {
		t.Fatalf("place a: %v", err)
	}
	b, err := f.betting.Place(ctx, ev.ID, "u2", storage.SideB, 2000, "")
	if err != nil {
		t.Fatalf("place b: %v", err)
	}
	if !b.Matched {
		t.Fatalf("opposite bet of same amount should match")
	}
	if b.Bet.Status != storage.BetMatched {
		t.Fatalf("expected matched, got %s", b.Bet.Status)
	}

	// Os dois lados compartilham o mesmo lançamento bet_match.
	aFresh, err := f.betting.Get(ctx, a.Bet.ID)
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if aFresh.Status != storage.BetMatched {
		t.Fatalf("counterpart not marked matched: %s", aFresh.Status)
	}
	if aFresh.MatchTxHash == nil || b.Bet.MatchTxHash == nil || *aFresh.MatchTxHash != *b.Bet.MatchTxHash {
		t.Fatalf("both bets should carry the same match hash")
	}

	view, err := f.events.Status(ctx, ev.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Event.TotalPoolCents != 4000 {
		t.Fatalf("expected pool 4000, got %d", view.Event.TotalPoolCents)
	}
}

func TestNoMatchOnDifferentAmountOrSameSideOrSameUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.openEvent(t, nil)
	f.fund(t, "u1", 10000)
	f.fund(t, "u2", 10000)

	if _, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideA, 2000, ""); err != nil {
		t.Fatalf("place: %v", err)
	}

	diff, err := f.betting.Place(ctx, ev.ID, "u2", storage.SideB, 3000, "")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if diff.Matched {
		t.Fatalf("different amount must not match")
	}

	same, err := f.betting.Place(ctx, ev.ID, "u2", storage.SideA, 2000, "")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if same.Matched {
		t.Fatalf("same side must not match")
	}

	// u1 do lado oposto de si mesmo: sem casamento.
	self, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideB, 3000, "")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if self.Matched {
		t.Fatalf("a user must not match their own bet")
	}
}

func TestMatchIsFIFO(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.openEvent(t, nil)
	for _, u := range []string{"u1", "u2", "u3"} {
		f.fund(t, u, 10000)
	}

	first, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideA, 2000, "")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	*f.clock = f.clock.Add(time.Second)
	if _, err := f.betting.Place(ctx, ev.ID, "u2", storage.SideA, 2000, ""); err != nil {
		t.Fatalf("place: %v", err)
	}
	*f.clock = f.clock.Add(time.Second)

	res, err := f.betting.Place(ctx, ev.ID, "u3", storage.SideB, 2000, "")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if !res.Matched {
		t.Fatalf("expected match")
	}
	if res.Bet.MatchedBetID == nil || *res.Bet.MatchedBetID != first.Bet.ID {
		t.Fatalf("expected match with oldest pending bet")
	}
}

func TestWindowClosedByCutoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "u1", 10000)

	// Início a 30 minutos: dentro do corte de 1h, janela já fechada.
	start := t0.Add(30 * time.Minute)
	ev := f.openEvent(t, &start)
	if _, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideA, 2000, ""); !errors.Is(err, errs.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict inside cutoff, got %v", err)
	}

	// Início a 2 horas: ainda aberta.
	start2 := t0.Add(2 * time.Hour)
	ev2 := f.openEvent(t, &start2)
	if _, err := f.betting.Place(ctx, ev2.ID, "u1", storage.SideA, 2000, ""); err != nil {
		t.Fatalf("window should be open 2h before start: %v", err)
	}

	// Exatamente no corte: fechada (estritamente antes).
	*f.clock = start2.Add(-time.Hour)
	if _, err := f.betting.Place(ctx, ev2.ID, "u1", storage.SideA, 2000, ""); !errors.Is(err, errs.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict at exact cutoff, got %v", err)
	}
}

func TestPlaceRejectedAfterStatusAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "u1", 10000)

	start := t0.Add(2 * time.Hour)
	ev := f.openEvent(t, &start)
	*f.clock = start.Add(time.Minute)
	if _, err := f.events.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideA, 2000, ""); !errors.Is(err, errs.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict after event went live, got %v", err)
	}
}

func TestPlaceIdempotentByExternalRef(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.openEvent(t, nil)
	f.fund(t, "u1", 10000)

	first, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideA, 2000, "bet-ref-1")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	retry, err := f.betting.Place(ctx, ev.ID, "u1", storage.SideA, 2000, "bet-ref-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Bet.ID != first.Bet.ID {
		t.Fatalf("retry created a second bet")
	}
	if retry.NewBalance != 8000 {
		t.Fatalf("retry double-charged: balance %d", retry.NewBalance)
	}
}
