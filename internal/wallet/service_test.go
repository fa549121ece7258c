package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/ledger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newWallet(t *testing.T) *Service {
	t.Helper()
	mem := storage.NewMemory()
	lg := ledger.NewService(mem, func() time.Time { return t0 })
	return NewService(mem, lg, Limits{DepositMin: 100, DepositMax: 1000000, WithdrawMin: 1000})
}

func TestDepositLimits(t *testing.T) {
	ctx := context.Background()
	svc := newWallet(t)

	tests := []struct {
		name   string
		amount int64
		ok     bool
	}{
		{"below minimum", 99, false},
		{"at minimum", 100, true},
		{"at maximum", 1000000, true},
		{"above maximum", 1000001, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Deposit(ctx, "u1", tc.amount, "")
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestDepositIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newWallet(t)

	first, err := svc.Deposit(ctx, "u1", 5000, "psp-123")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if first.NewBalance != 5000 {
		t.Fatalf("expected balance 5000, got %d", first.NewBalance)
	}

	retry, err := svc.Deposit(ctx, "u1", 5000, "psp-123")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Tx.ID != first.Tx.ID {
		t.Fatalf("retry should return the original transaction")
	}
	if retry.NewBalance != 5000 {
		t.Fatalf("retry double-credited: balance %d", retry.NewBalance)
	}
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	svc := newWallet(t)

	if _, err := svc.Deposit(ctx, "u1", 5000, ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := svc.Withdraw(ctx, "u1", 500, ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("below minimum: expected ErrValidation, got %v", err)
	}
	if _, err := svc.Withdraw(ctx, "u1", 6000, ""); !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("overdraft: expected ErrInsufficientFunds, got %v", err)
	}

	res, err := svc.Withdraw(ctx, "u1", 2000, "")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.NewBalance != 3000 {
		t.Fatalf("expected balance 3000, got %d", res.NewBalance)
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	svc := newWallet(t)

	if _, err := svc.Deposit(ctx, "u1", 5000, ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := svc.Transfer(ctx, "u1", "u1", 100, "", ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("self-transfer: expected ErrValidation, got %v", err)
	}
	if _, err := svc.Transfer(ctx, "u1", "u2", 0, "", ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("zero amount: expected ErrValidation, got %v", err)
	}

	res, err := svc.Transfer(ctx, "u1", "u2", 1500, "gift", "")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.NewBalance != 3500 {
		t.Fatalf("expected sender balance 3500, got %d", res.NewBalance)
	}
	if res.Tx.Data["note"] != "gift" {
		t.Fatalf("note not recorded: %+v", res.Tx.Data)
	}

	bal, err := svc.Balance(ctx, "u2")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 1500 {
		t.Fatalf("expected receiver balance 1500, got %d", bal)
	}
}

func TestHistoryOrder(t *testing.T) {
	ctx := context.Background()
	svc := newWallet(t)

	for i := 0; i < 3; i++ {
		if _, err := svc.Deposit(ctx, "u1", 1000, ""); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}
	hist, err := svc.History(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hist))
	}
	if hist[0].Seq < hist[1].Seq {
		t.Fatalf("history should be newest first: %d before %d", hist[0].Seq, hist[1].Seq)
	}
}
