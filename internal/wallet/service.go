// Package wallet é a camada fina de validação sobre a corrente para
// depósito, saque e transferência.
package wallet

import (
	"context"
	"fmt"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/ledger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

// Limits são os limites de movimentação, em centavos.
type Limits struct {
	DepositMin  int64
	DepositMax  int64
	WithdrawMin int64
}

type Service struct {
	store  storage.Store
	ledger *ledger.Service
	limits Limits
}

func NewService(store storage.Store, lg *ledger.Service, limits Limits) *Service {
	return &Service{store: store, ledger: lg, limits: limits}
}

// Result devolve o lançamento gravado e o saldo resultante do usuário.
type Result struct {
	Tx         *storage.LedgerTransaction
	NewBalance int64
}

// Deposit emite fundos para o usuário (nil → user).
func (s *Service) Deposit(ctx context.Context, userID string, amountCents int64, externalRef string) (Result, error) {
	if userID == "" {
		return Result{}, fmt.Errorf("%w: userId required", errs.ErrValidation)
	}
	if amountCents < s.limits.DepositMin || amountCents > s.limits.DepositMax {
		return Result{}, fmt.Errorf("%w: deposit amount out of range [%d, %d]",
			errs.ErrValidation, s.limits.DepositMin, s.limits.DepositMax)
	}
	return s.append(ctx, userID, ledger.Entry{
		To:          &userID,
		AmountCents: amountCents,
		Type:        storage.TxDeposit,
		ExternalRef: externalRef,
	})
}

// Withdraw queima fundos do usuário (user → nil).
func (s *Service) Withdraw(ctx context.Context, userID string, amountCents int64, externalRef string) (Result, error) {
	if userID == "" {
		return Result{}, fmt.Errorf("%w: userId required", errs.ErrValidation)
	}
	if amountCents < s.limits.WithdrawMin {
		return Result{}, fmt.Errorf("%w: withdrawal below minimum %d", errs.ErrValidation, s.limits.WithdrawMin)
	}
	return s.append(ctx, userID, ledger.Entry{
		From:        &userID,
		AmountCents: amountCents,
		Type:        storage.TxWithdrawal,
		ExternalRef: externalRef,
	})
}

// Transfer move fundos entre usuários, com nota opcional no payload.
func (s *Service) Transfer(ctx context.Context, fromUser, toUser string, amountCents int64, note, externalRef string) (Result, error) {
	if fromUser == "" || toUser == "" {
		return Result{}, fmt.Errorf("%w: both users required", errs.ErrValidation)
	}
	if fromUser == toUser {
		return Result{}, fmt.Errorf("%w: self-transfer not allowed", errs.ErrValidation)
	}
	if amountCents <= 0 {
		return Result{}, fmt.Errorf("%w: transfer amount must be positive", errs.ErrValidation)
	}
	var data map[string]string
	if note != "" {
		data = map[string]string{"note": note}
	}
	return s.append(ctx, fromUser, ledger.Entry{
		From:        &fromUser,
		To:          &toUser,
		AmountCents: amountCents,
		Type:        storage.TxTransfer,
		Data:        data,
		ExternalRef: externalRef,
	})
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]storage.LedgerTransaction, error) {
	return s.ledger.History(ctx, userID, limit)
}

// append grava o lançamento e lê o saldo resultante na mesma transação.
func (s *Service) append(ctx context.Context, balanceUser string, e ledger.Entry) (Result, error) {
	var res Result
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		lt, err := s.ledger.AppendIn(ctx, tx, e)
		if err != nil {
			return err
		}
		bal, err := tx.Balance(ctx, balanceUser)
		if err != nil {
			return err
		}
		res = Result{Tx: lt, NewBalance: bal}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
