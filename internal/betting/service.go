// Package betting aplica a janela de corte e o casamento de apostas por
// valor exato: a aposta nova casa com a pendente mais antiga do lado oposto,
// mesmo valor, usuário diferente. Sem casamento parcial.
package betting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/ledger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/metrics"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

// Limits parametriza a janela e os valores aceitos.
type Limits struct {
	BetMin int64
	BetMax int64
	Cutoff time.Duration // apostas fecham Cutoff antes do match_start
}

type Service struct {
	store  storage.Store
	ledger *ledger.Service
	limits Limits
	now    func() time.Time
}

func NewService(store storage.Store, lg *ledger.Service, limits Limits, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, ledger: lg, limits: limits, now: now}
}

// PlaceResult é o retorno de uma colocação de aposta.
type PlaceResult struct {
	Bet        *storage.Bet
	Matched    bool
	TxHash     string
	NewBalance int64
}

// statusAcceptsBets diz se o status do evento ainda admite apostas.
func statusAcceptsBets(st storage.EventStatus) bool {
	switch st {
	case storage.StatusCreated, storage.StatusWaitingForPlayers, storage.StatusAcceptingBets:
		return true
	}
	return false
}

// WindowOpen diz se a janela temporal está aberta: estritamente antes de
// match_start − cutoff. Evento sem início agendado depende só do status.
func WindowOpen(ev *storage.Event, cutoff time.Duration, now time.Time) bool {
	if !statusAcceptsBets(ev.Status) {
		return false
	}
	if ev.MatchStart == nil {
		return true
	}
	return now.Before(ev.MatchStart.Add(-cutoff))
}

// Place valida, retém o stake em escrow e tenta casar — tudo numa transação.
// Duas colocações concorrentes não casam com a mesma contraparte: a candidata
// fica travada até o commit.
func (s *Service) Place(ctx context.Context, eventID, userID string, side storage.Side, amountCents int64, externalRef string) (PlaceResult, error) {
	if eventID == "" || userID == "" {
		return PlaceResult{}, fmt.Errorf("%w: eventId and userId required", errs.ErrValidation)
	}
	if side != storage.SideA && side != storage.SideB {
		return PlaceResult{}, fmt.Errorf("%w: side must be A or B", errs.ErrValidation)
	}
	if amountCents < s.limits.BetMin || amountCents > s.limits.BetMax {
		return PlaceResult{}, fmt.Errorf("%w: bet amount out of range [%d, %d]",
			errs.ErrValidation, s.limits.BetMin, s.limits.BetMax)
	}

	var res PlaceResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		// Retry com o mesmo external_ref devolve a aposta já gravada.
		if externalRef != "" {
			prior, err := tx.TransactionByRef(ctx, externalRef)
			if err != nil {
				return err
			}
			if prior != nil {
				return s.replayResult(ctx, tx, prior, userID, &res)
			}
		}

		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if !statusAcceptsBets(ev.Status) {
			return fmt.Errorf("%w: event %s does not accept bets", errs.ErrStateConflict, ev.Status)
		}
		if !WindowOpen(ev, s.limits.Cutoff, now) {
			return fmt.Errorf("%w: betting window closed", errs.ErrStateConflict)
		}

		betID := uuid.NewString()
		placeTx, err := s.ledger.AppendIn(ctx, tx, ledger.Entry{
			From:        &userID,
			To:          ptr(storage.AccountEscrow),
			AmountCents: amountCents,
			Type:        storage.TxBetPlace,
			Data: map[string]string{
				"bet_id":   betID,
				"event_id": eventID,
				"side":     string(side),
			},
			ExternalRef: externalRef,
		})
		if err != nil {
			return err
		}

		bet := &storage.Bet{
			ID:          betID,
			EventID:     eventID,
			UserID:      userID,
			Side:        side,
			AmountCents: amountCents,
			Status:      storage.BetPending,
			PlacedAt:    now.UTC(),
			PlaceTxHash: placeTx.Hash,
		}
		if err := tx.InsertBet(ctx, bet); err != nil {
			return err
		}

		matched, err := s.tryMatch(ctx, tx, ev, bet)
		if err != nil {
			return err
		}

		bal, err := tx.Balance(ctx, userID)
		if err != nil {
			return err
		}
		if matched {
			fresh, err := tx.GetBet(ctx, betID)
			if err != nil {
				return err
			}
			bet = fresh
		}
		res = PlaceResult{Bet: bet, Matched: matched, TxHash: placeTx.Hash, NewBalance: bal}
		return nil
	})
	if err != nil {
		return PlaceResult{}, err
	}

	metrics.BetsPlaced.Inc()
	if res.Matched {
		metrics.BetsMatched.Inc()
	}
	return res, nil
}

// tryMatch procura a contraparte FIFO e, achando, grava o lançamento
// bet_match de valor zero (os stakes já estão em escrow), marca as duas
// apostas e soma os dois stakes ao pool do evento.
func (s *Service) tryMatch(ctx context.Context, tx storage.Tx, ev *storage.Event, bet *storage.Bet) (bool, error) {
	candidate, err := tx.LockMatchCandidate(ctx, bet.EventID, bet.Side.Opposite(), bet.AmountCents, bet.UserID)
	if err != nil {
		return false, err
	}
	if candidate == nil {
		return false, nil
	}

	matchTx, err := s.ledger.AppendIn(ctx, tx, ledger.Entry{
		AmountCents: 0,
		Type:        storage.TxBetMatch,
		Data: map[string]string{
			"event_id":       bet.EventID,
			"bet_id":         bet.ID,
			"matched_bet_id": candidate.ID,
			"amount_cents":   strconv.FormatInt(bet.AmountCents, 10),
		},
	})
	if err != nil {
		return false, err
	}

	if err := tx.MarkMatched(ctx, bet.ID, candidate.ID, matchTx.Hash, s.now().UTC()); err != nil {
		return false, err
	}

	ev.TotalPoolCents += 2 * bet.AmountCents
	if err := tx.UpdateEvent(ctx, ev); err != nil {
		return false, err
	}
	return true, nil
}

// replayResult reconstrói o resultado de uma colocação já efetivada a partir
// do lançamento de escrow encontrado pelo external_ref.
func (s *Service) replayResult(ctx context.Context, tx storage.Tx, placeTx *storage.LedgerTransaction, userID string, res *PlaceResult) error {
	betID := placeTx.Data["bet_id"]
	if betID == "" {
		return fmt.Errorf("%w: external_ref already used by a non-bet transaction", errs.ErrStateConflict)
	}
	bet, err := tx.GetBet(ctx, betID)
	if err != nil {
		return err
	}
	bal, err := tx.Balance(ctx, userID)
	if err != nil {
		return err
	}
	*res = PlaceResult{Bet: bet, Matched: bet.Status == storage.BetMatched, TxHash: placeTx.Hash, NewBalance: bal}
	return nil
}

// Get devolve uma aposta pelo id.
func (s *Service) Get(ctx context.Context, betID string) (*storage.Bet, error) {
	var bet *storage.Bet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		bet, err = tx.GetBet(ctx, betID)
		return err
	})
	return bet, err
}

func ptr(s string) *string { return &s }
