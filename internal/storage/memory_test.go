package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	boom := errors.New("boom")

	err := mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.AdjustBalance(ctx, "u1", 500); err != nil {
			return err
		}
		u := "u1"
		if err := tx.InsertTransaction(ctx, &LedgerTransaction{
			ID: "tx-1", Seq: 1, ToUser: &u, AmountCents: 500, Type: TxDeposit, Hash: "h1", CreatedAt: t0,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// Nada pode ter vazado do clone abortado.
	_ = mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		bal, _ := tx.Balance(ctx, "u1")
		if bal != 0 {
			t.Fatalf("balance leaked from aborted tx: %d", bal)
		}
		txs, _ := tx.Transactions(ctx)
		if len(txs) != 0 {
			t.Fatalf("ledger leaked from aborted tx: %d entries", len(txs))
		}
		prev, seq, _ := tx.LockTail(ctx)
		if prev != nil || seq != 0 {
			t.Fatalf("tail leaked from aborted tx: %v %d", prev, seq)
		}
		return nil
	})
}

func TestInsertTransactionRejectsDuplicateRef(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	u := "u1"
	ref := "psp-1"

	insert := func(id string, seq int64) error {
		return mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.InsertTransaction(ctx, &LedgerTransaction{
				ID: id, Seq: seq, ToUser: &u, AmountCents: 100, Type: TxDeposit,
				ExternalRef: &ref, Hash: "h" + id, CreatedAt: t0,
			})
		})
	}
	if err := insert("tx-1", 1); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Uma segunda escrita com o mesmo token — uma concorrente que passou pela
	// checagem de replay antes do commit da primeira — devolve conflito em vez
	// de duplicar o lançamento.
	if err := insert("tx-2", 2); !errors.Is(err, errs.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
	_ = mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		txs, _ := tx.Transactions(ctx)
		if len(txs) != 1 {
			t.Fatalf("duplicate ref produced %d transactions", len(txs))
		}
		return nil
	})
}

func TestAdjustBalanceRejectsNegative(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	err := mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.AdjustBalance(ctx, "u1", -1)
		return err
	})
	if !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestLockMatchCandidateOrderAndFilters(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	seed := []Bet{
		{ID: "b1", EventID: "e1", UserID: "u1", Side: SideA, AmountCents: 2000, Status: BetPending, PlacedAt: t0},
		{ID: "b2", EventID: "e1", UserID: "u2", Side: SideA, AmountCents: 2000, Status: BetPending, PlacedAt: t0.Add(time.Second)},
		{ID: "b3", EventID: "e1", UserID: "u3", Side: SideA, AmountCents: 3000, Status: BetPending, PlacedAt: t0.Add(2 * time.Second)},
		{ID: "b4", EventID: "e2", UserID: "u4", Side: SideA, AmountCents: 2000, Status: BetPending, PlacedAt: t0.Add(3 * time.Second)},
	}
	if err := mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		for i := range seed {
			b := seed[i]
			if err := tx.InsertBet(ctx, &b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	check := func(side Side, amount int64, exclude, wantID string) {
		t.Helper()
		_ = mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			got, err := tx.LockMatchCandidate(ctx, "e1", side, amount, exclude)
			if err != nil {
				t.Fatalf("lock: %v", err)
			}
			if wantID == "" {
				if got != nil {
					t.Fatalf("expected no candidate, got %s", got.ID)
				}
				return nil
			}
			if got == nil || got.ID != wantID {
				t.Fatalf("expected %s, got %+v", wantID, got)
			}
			return nil
		})
	}

	check(SideA, 2000, "u9", "b1") // mais antiga primeiro
	check(SideA, 2000, "u1", "b2") // exclui o próprio usuário
	check(SideA, 2500, "u9", "")   // valor exato apenas
	check(SideB, 2000, "u9", "")   // lado requerido
}

func TestTransitionEventStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	winner := "alice"
	start := t0.Add(time.Hour)
	seed := Event{
		ID: "e1", Title: "arena", Status: StatusAcceptingBets,
		TotalPoolCents: 4000, WinnerUserID: &winner, MatchStart: &start, CreatedAt: t0,
	}
	if err := mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		e := seed
		return tx.InsertEvent(ctx, &e)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Status divergente do lido: a escrita vira no-op.
	_ = mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.TransitionEventStatus(ctx, "e1", StatusBettingClosed, StatusLive)
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		if ok {
			t.Fatalf("stale transition must not apply")
		}
		ok, err = tx.TransitionEventStatus(ctx, "missing", StatusAcceptingBets, StatusLive)
		if err != nil || ok {
			t.Fatalf("unknown event must be a no-op, got ok=%v err=%v", ok, err)
		}
		return nil
	})

	// Transição aplicada muda só o status.
	_ = mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.TransitionEventStatus(ctx, "e1", StatusAcceptingBets, StatusBettingClosed)
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		if !ok {
			t.Fatalf("matching transition should apply")
		}
		return nil
	})
	_ = mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ev, err := tx.GetEvent(ctx, "e1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ev.Status != StatusBettingClosed {
			t.Fatalf("expected betting_closed, got %s", ev.Status)
		}
		if ev.TotalPoolCents != 4000 || ev.WinnerUserID == nil || *ev.WinnerUserID != winner || ev.MatchStart == nil {
			t.Fatalf("transition touched more than status: %+v", ev)
		}
		return nil
	})
}

func TestEventForUpdateNotFound(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	err := mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.EventForUpdate(ctx, "missing")
		return err
	})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsByStatus(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	if err := mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, ev := range []Event{
			{ID: "e1", Title: "a", Status: StatusAcceptingBets, CreatedAt: t0},
			{ID: "e2", Title: "b", Status: StatusReady, CreatedAt: t0},
			{ID: "e3", Title: "c", Status: StatusClosed, CreatedAt: t0},
		} {
			e := ev
			if err := tx.InsertEvent(ctx, &e); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_ = mem.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		evs, err := tx.EventsByStatus(ctx, StatusAcceptingBets, StatusReady)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(evs) != 2 {
			t.Fatalf("expected 2 events, got %d", len(evs))
		}
		return nil
	})
}
