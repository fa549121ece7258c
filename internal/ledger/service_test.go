package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAppendLinksChain(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemory(), fixedClock(t0))
	u := "u1"

	first, err := svc.Append(ctx, Entry{To: &u, AmountCents: 500, Type: storage.TxDeposit})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.PrevHash != nil {
		t.Fatalf("genesis entry should have nil prev hash, got %v", *first.PrevHash)
	}
	if first.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", first.Seq)
	}

	second, err := svc.Append(ctx, Entry{From: &u, AmountCents: 200, Type: storage.TxWithdrawal})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.PrevHash == nil || *second.PrevHash != first.Hash {
		t.Fatalf("second entry should chain to first")
	}
	if second.Seq != 2 {
		t.Fatalf("expected seq 2, got %d", second.Seq)
	}

	bal, err := svc.Balance(ctx, u)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 300 {
		t.Fatalf("expected balance 300, got %d", bal)
	}
}

func TestAppendRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemory(), fixedClock(t0))
	u := "u1"

	if _, err := svc.Append(ctx, Entry{To: &u, AmountCents: 100, Type: storage.TxDeposit}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err := svc.Append(ctx, Entry{From: &u, AmountCents: 200, Type: storage.TxWithdrawal})
	if !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// A transação falhada não pode deixar efeitos parciais.
	bal, _ := svc.Balance(ctx, u)
	if bal != 100 {
		t.Fatalf("balance changed after failed append: %d", bal)
	}
	hist, _ := svc.History(ctx, u, 10)
	if len(hist) != 1 {
		t.Fatalf("expected 1 transaction after failed append, got %d", len(hist))
	}
}

func TestAppendIdempotentByExternalRef(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemory(), fixedClock(t0))
	u := "u1"

	first, err := svc.Append(ctx, Entry{To: &u, AmountCents: 500, Type: storage.TxDeposit, ExternalRef: "dep-1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	retry, err := svc.Append(ctx, Entry{To: &u, AmountCents: 500, Type: storage.TxDeposit, ExternalRef: "dep-1"})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.ID != first.ID || retry.Hash != first.Hash {
		t.Fatalf("retry should return the original transaction")
	}

	bal, _ := svc.Balance(ctx, u)
	if bal != 500 {
		t.Fatalf("retry double-credited: balance %d", bal)
	}
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemory(), fixedClock(t0))
	u := "u1"

	if _, err := svc.Append(ctx, Entry{To: &u, AmountCents: -1, Type: storage.TxDeposit}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("negative amount: expected ErrValidation, got %v", err)
	}
	if _, err := svc.Append(ctx, Entry{To: &u, AmountCents: 10}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("missing type: expected ErrValidation, got %v", err)
	}
}

func TestVerifyIntegrityValid(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemory(), fixedClock(t0))
	u := "u1"
	for i := 0; i < 4; i++ {
		if _, err := svc.Append(ctx, Entry{To: &u, AmountCents: 100, Type: storage.TxDeposit}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	rep, err := svc.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !rep.Valid || rep.Length != 4 || rep.FirstBadIndex != -1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if svc.Halted() {
		t.Fatalf("valid chain must not halt the service")
	}
}

// tamperTx devolve a corrente com um lançamento adulterado, sem tocar no
// armazenamento subjacente.
type tamperTx struct {
	storage.Tx
	index int
}

func (t tamperTx) Transactions(ctx context.Context) ([]storage.LedgerTransaction, error) {
	txs, err := t.Tx.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	if t.index < len(txs) {
		txs[t.index].AmountCents += 1000
	}
	return txs, nil
}

type tamperStore struct {
	inner storage.Store
	index int
}

func (s tamperStore) WithinTx(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, tamperTx{Tx: tx, index: s.index})
	})
}

func TestVerifyIntegrityHaltsOnTampering(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()

	seed := NewService(mem, fixedClock(t0))
	u := "u1"
	for i := 0; i < 4; i++ {
		if _, err := seed.Append(ctx, Entry{To: &u, AmountCents: 100, Type: storage.TxDeposit}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	svc := NewService(tamperStore{inner: mem, index: 2}, fixedClock(t0))
	rep, err := svc.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Valid || rep.FirstBadIndex != 2 {
		t.Fatalf("expected first bad index 2, got %+v", rep)
	}
	if !svc.Halted() {
		t.Fatalf("service should halt after integrity failure")
	}
	if _, err := svc.Append(ctx, Entry{To: &u, AmountCents: 100, Type: storage.TxDeposit}); !errors.Is(err, errs.ErrChainIntegrity) {
		t.Fatalf("halted service should refuse appends, got %v", err)
	}
}

func TestConservation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemory(), fixedClock(t0))
	u1, u2 := "u1", "u2"

	if _, err := svc.Append(ctx, Entry{To: &u1, AmountCents: 1000, Type: storage.TxDeposit}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Append(ctx, Entry{From: &u1, To: &u2, AmountCents: 400, Type: storage.TxTransfer}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := svc.Append(ctx, Entry{From: &u2, AmountCents: 150, Type: storage.TxWithdrawal}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	rep, err := svc.Conservation(ctx)
	if err != nil {
		t.Fatalf("conservation: %v", err)
	}
	if !rep.Consistent {
		t.Fatalf("expected consistent report: %+v", rep)
	}
	if rep.Minted != 1000 || rep.Burned != 150 || rep.SumBalances != 850 {
		t.Fatalf("unexpected totals: %+v", rep)
	}
}
