package ledger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/metrics"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

// Entry descreve um lançamento a gravar. From/To nil significam emissão e
// queima pelo sistema; ExternalRef vazio desliga a deduplicação.
type Entry struct {
	From        *string
	To          *string
	AmountCents int64
	Type        storage.TxType
	Data        map[string]string
	ExternalRef string
}

// Service é o único caminho de escrita da corrente. Depois que uma
// verificação encontra hash divergente, o serviço trava e recusa novos
// lançamentos até remediação manual.
type Service struct {
	store  storage.Store
	now    func() time.Time
	halted atomic.Bool
}

func NewService(store storage.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// AppendIn grava um lançamento dentro de uma transação já aberta. Sequência:
// trava a cauda, recomputa o hash, insere, debita e credita — tudo ou nada.
// Um ExternalRef repetido devolve o lançamento já gravado sem novo débito.
func (s *Service) AppendIn(ctx context.Context, tx storage.Tx, e Entry) (*storage.LedgerTransaction, error) {
	if s.halted.Load() {
		return nil, errs.ErrChainIntegrity
	}
	if e.AmountCents < 0 {
		return nil, fmt.Errorf("%w: amount must be non-negative", errs.ErrValidation)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("%w: missing transaction type", errs.ErrValidation)
	}

	if e.ExternalRef != "" {
		prior, err := tx.TransactionByRef(ctx, e.ExternalRef)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return prior, nil
		}
	}

	prev, seq, err := tx.LockTail(ctx)
	if err != nil {
		return nil, err
	}

	ts := HashTimestamp(s.now())
	lt := &storage.LedgerTransaction{
		ID:          uuid.NewString(),
		Seq:         seq + 1,
		FromUser:    e.From,
		ToUser:      e.To,
		AmountCents: e.AmountCents,
		Type:        e.Type,
		Data:        e.Data,
		PrevHash:    prev,
		Hash:        ComputeHash(e.From, e.To, e.AmountCents, e.Type, ts, prev, e.Data),
		CreatedAt:   ts,
	}
	if e.ExternalRef != "" {
		ref := e.ExternalRef
		lt.ExternalRef = &ref
	}

	if e.From != nil {
		if _, err := tx.AdjustBalance(ctx, *e.From, -e.AmountCents); err != nil {
			return nil, err
		}
	}
	if e.To != nil {
		if _, err := tx.AdjustBalance(ctx, *e.To, e.AmountCents); err != nil {
			return nil, err
		}
	}

	if err := tx.InsertTransaction(ctx, lt); err != nil {
		return nil, err
	}

	metrics.LedgerAppends.WithLabelValues(string(e.Type)).Inc()
	return lt, nil
}

// Append grava um lançamento em transação própria.
func (s *Service) Append(ctx context.Context, e Entry) (*storage.LedgerTransaction, error) {
	var out *storage.LedgerTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = s.AppendIn(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IntegrityReport é o resultado de um replay completo da corrente.
type IntegrityReport struct {
	Valid         bool
	Length        int
	FirstBadIndex int // -1 quando válida
}

// VerifyIntegrity reexecuta a corrente desde o gênese. Divergência trava o
// serviço: preferimos recusar escrita a estender uma corrente de validade
// desconhecida.
func (s *Service) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	var rep IntegrityReport
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		txs, err := tx.Transactions(ctx)
		if err != nil {
			return err
		}
		rep.Length = len(txs)
		rep.FirstBadIndex = Replay(txs)
		rep.Valid = rep.FirstBadIndex == -1
		return nil
	})
	if err != nil {
		return IntegrityReport{}, err
	}
	if !rep.Valid {
		s.halted.Store(true)
		metrics.IntegrityFailures.Inc()
	}
	return rep, nil
}

// Halted informa se novos lançamentos estão bloqueados.
func (s *Service) Halted() bool { return s.halted.Load() }

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		bal, err = tx.Balance(ctx, userID)
		return err
	})
	return bal, err
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]storage.LedgerTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []storage.LedgerTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.UserTransactions(ctx, userID, limit)
		return err
	})
	return out, err
}

// ConservationReport compara os saldos materializados com o que a corrente
// implica: soma de saldos = emitido − queimado, e cada usuário bate com o
// replay.
type ConservationReport struct {
	SumBalances int64
	Minted      int64
	Burned      int64
	Consistent  bool
}

func (s *Service) Conservation(ctx context.Context) (ConservationReport, error) {
	var rep ConservationReport
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		txs, err := tx.Transactions(ctx)
		if err != nil {
			return err
		}
		balances, err := tx.Balances(ctx)
		if err != nil {
			return err
		}

		for _, t := range txs {
			if t.FromUser == nil {
				rep.Minted += t.AmountCents
			}
			if t.ToUser == nil {
				rep.Burned += t.AmountCents
			}
		}
		for _, b := range balances {
			rep.SumBalances += b
		}

		replayed := ReplayBalances(txs)
		rep.Consistent = rep.SumBalances == rep.Minted-rep.Burned
		for user, want := range replayed {
			if balances[user] != want {
				rep.Consistent = false
				break
			}
		}
		return nil
	})
	return rep, err
}
