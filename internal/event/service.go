// Package event implementa o ciclo de vida dos confrontos: criação, entrada
// com escrow do stake, transições por tempo (sweep idempotente) e
// cancelamento com reembolso.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/betting"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/ledger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/metrics"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

type Service struct {
	store  storage.Store
	ledger *ledger.Service
	cutoff time.Duration
	now    func() time.Time
}

func NewService(store storage.Store, lg *ledger.Service, cutoff time.Duration, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, ledger: lg, cutoff: cutoff, now: now}
}

// CreateParams vem do colaborador administrativo externo.
type CreateParams struct {
	Title           string
	StakeCents      int64
	FeePercent      int64
	MaxParticipants int
	MatchStart      *time.Time
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*storage.Event, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("%w: title required", errs.ErrValidation)
	}
	if p.StakeCents < 0 {
		return nil, fmt.Errorf("%w: stake must be non-negative", errs.ErrValidation)
	}
	if p.FeePercent < 0 || p.FeePercent > 100 {
		return nil, fmt.Errorf("%w: fee percent out of range", errs.ErrValidation)
	}
	if p.MaxParticipants < 2 {
		return nil, fmt.Errorf("%w: at least two participants required", errs.ErrValidation)
	}

	ev := &storage.Event{
		ID:              uuid.NewString(),
		Title:           p.Title,
		Status:          storage.StatusCreated,
		StakeCents:      p.StakeCents,
		FeePercent:      p.FeePercent,
		MaxParticipants: p.MaxParticipants,
		MatchStart:      p.MatchStart,
		CreatedAt:       s.now().UTC(),
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Open libera o evento para entrada de competidores.
func (s *Service) Open(ctx context.Context, eventID string) error {
	return s.transition(ctx, eventID, storage.StatusCreated, storage.StatusWaitingForPlayers)
}

// OpenBets move um evento ainda sem roster completo para a fase de apostas.
func (s *Service) OpenBets(ctx context.Context, eventID string) error {
	return s.transition(ctx, eventID, storage.StatusWaitingForPlayers, storage.StatusAcceptingBets)
}

// Finish encerra a fase ao vivo; a partir daqui os streamers votam.
func (s *Service) Finish(ctx context.Context, eventID string) error {
	return s.transition(ctx, eventID, storage.StatusLive, storage.StatusEventEnd)
}

func (s *Service) transition(ctx context.Context, eventID string, from, to storage.EventStatus) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Status != from {
			return fmt.Errorf("%w: event is %s, expected %s", errs.ErrStateConflict, ev.Status, from)
		}
		ev.Status = to
		return tx.UpdateEvent(ctx, ev)
	})
}

// AssignStreamer registra um streamer como votante do evento. Só até o início
// da votação; depois disso o conjunto de votantes está congelado.
func (s *Service) AssignStreamer(ctx context.Context, eventID, streamerID string) error {
	if streamerID == "" {
		return fmt.Errorf("%w: streamerId required", errs.ErrValidation)
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		switch ev.Status {
		case storage.StatusStreamerVoting, storage.StatusAdminReview, storage.StatusFinalResult,
			storage.StatusSettlement, storage.StatusClosed, storage.StatusCancelled:
			return fmt.Errorf("%w: voting set is frozen for event %s", errs.ErrStateConflict, ev.Status)
		}
		return tx.AssignStreamer(ctx, eventID, streamerID)
	})
}

// Join entra no evento retendo o stake em escrow. Atômico: validação,
// débito, participante e pool na mesma transação; completar o roster leva o
// evento a ready.
func (s *Service) Join(ctx context.Context, eventID, userID, externalRef string) (newBalance int64, err error) {
	if eventID == "" || userID == "" {
		return 0, fmt.Errorf("%w: eventId and userId required", errs.ErrValidation)
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		// Retry do mesmo join devolve o saldo atual sem duplicar o escrow.
		if externalRef != "" {
			prior, perr := tx.TransactionByRef(ctx, externalRef)
			if perr != nil {
				return perr
			}
			if prior != nil {
				newBalance, perr = tx.Balance(ctx, userID)
				return perr
			}
		}

		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Status != storage.StatusWaitingForPlayers {
			return fmt.Errorf("%w: event is %s, not open for joining", errs.ErrStateConflict, ev.Status)
		}

		parts, err := tx.Participants(ctx, eventID)
		if err != nil {
			return err
		}
		if len(parts) >= ev.MaxParticipants {
			return fmt.Errorf("%w: event is full", errs.ErrStateConflict)
		}
		for _, p := range parts {
			if p.UserID == userID {
				return fmt.Errorf("%w: already joined", errs.ErrStateConflict)
			}
		}

		if ev.StakeCents > 0 {
			escrow := storage.AccountEscrow
			if _, err := s.ledger.AppendIn(ctx, tx, ledger.Entry{
				From:        &userID,
				To:          &escrow,
				AmountCents: ev.StakeCents,
				Type:        storage.TxHold,
				Data:        map[string]string{"event_id": eventID},
				ExternalRef: externalRef,
			}); err != nil {
				return err
			}
		}

		if err := tx.InsertParticipant(ctx, &storage.EventParticipant{
			EventID:    eventID,
			UserID:     userID,
			Position:   len(parts) + 1,
			StakeCents: ev.StakeCents,
			Status:     storage.ParticipantActive,
			JoinedAt:   s.now().UTC(),
		}); err != nil {
			return err
		}

		ev.TotalPoolCents += ev.StakeCents
		if len(parts)+1 == ev.MaxParticipants {
			ev.Status = storage.StatusReady
		}
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return err
		}

		newBalance, err = tx.Balance(ctx, userID)
		return err
	})
	return newBalance, err
}

// SweepResult conta as transições aplicadas por um sweep.
type SweepResult struct {
	ToBettingClosed int
	ToLive          int
}

// Sweep aplica as transições dirigidas por tempo. Idempotente: sem tempo
// decorrido, é um no-op. A escrita é condicional no status lido — o sweep
// nunca regrava pool nem vencedor, e um evento mudado por outra transação
// entre a leitura e a escrita fica para o próximo ciclo.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		evs, err := tx.EventsByStatus(ctx,
			storage.StatusAcceptingBets, storage.StatusBettingClosed, storage.StatusReady)
		if err != nil {
			return err
		}
		now := s.now()
		for i := range evs {
			ev := evs[i]
			if ev.MatchStart == nil {
				continue
			}
			st := ev.Status
			if st == storage.StatusAcceptingBets && !now.Before(ev.MatchStart.Add(-s.cutoff)) {
				ok, err := tx.TransitionEventStatus(ctx, ev.ID, st, storage.StatusBettingClosed)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				res.ToBettingClosed++
				st = storage.StatusBettingClosed
			}
			if (st == storage.StatusBettingClosed || st == storage.StatusReady) &&
				!now.Before(*ev.MatchStart) {
				ok, err := tx.TransitionEventStatus(ctx, ev.ID, st, storage.StatusLive)
				if err != nil {
					return err
				}
				if ok {
					res.ToLive++
				}
			}
		}
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	metrics.SweepTransitions.WithLabelValues(string(storage.StatusBettingClosed)).Add(float64(res.ToBettingClosed))
	metrics.SweepTransitions.WithLabelValues(string(storage.StatusLive)).Add(float64(res.ToLive))
	return res, nil
}

// StatusView é a visão de status recomputada a cada leitura — as transições
// por tempo nunca são assumidas a partir do status gravado.
type StatusView struct {
	Event           storage.Event
	EffectiveStatus storage.EventStatus
	BettingOpen     bool
	TimeToClose     *time.Duration
	TimeToStart     *time.Duration
	Participants    []storage.EventParticipant
}

func (s *Service) Status(ctx context.Context, eventID string) (StatusView, error) {
	var view StatusView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		parts, err := tx.Participants(ctx, eventID)
		if err != nil {
			return err
		}
		now := s.now()

		eff := ev.Status
		if ev.MatchStart != nil {
			if eff == storage.StatusAcceptingBets && !now.Before(ev.MatchStart.Add(-s.cutoff)) {
				eff = storage.StatusBettingClosed
			}
			if (eff == storage.StatusBettingClosed || eff == storage.StatusReady) && !now.Before(*ev.MatchStart) {
				eff = storage.StatusLive
			}
		}

		effEv := *ev
		effEv.Status = eff
		view = StatusView{
			Event:           *ev,
			EffectiveStatus: eff,
			BettingOpen:     betting.WindowOpen(&effEv, s.cutoff, now),
			Participants:    parts,
		}
		if ev.MatchStart != nil {
			toStart := ev.MatchStart.Sub(now)
			toClose := ev.MatchStart.Add(-s.cutoff).Sub(now)
			view.TimeToStart = &toStart
			view.TimeToClose = &toClose
		}
		return nil
	})
	return view, err
}

// Cancel aborta um evento antes da liquidação, devolvendo stakes de apostas
// (pendentes e casadas) e de participação. Terminal.
func (s *Service) Cancel(ctx context.Context, eventID string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		switch ev.Status {
		case storage.StatusFinalResult, storage.StatusSettlement, storage.StatusClosed, storage.StatusCancelled:
			return fmt.Errorf("%w: event %s cannot be cancelled", errs.ErrStateConflict, ev.Status)
		}

		escrow := storage.AccountEscrow
		bets, err := tx.BetsByEvent(ctx, eventID)
		if err != nil {
			return err
		}
		for _, b := range bets {
			if b.Status == storage.BetCancelled {
				continue
			}
			user := b.UserID
			refund, err := s.ledger.AppendIn(ctx, tx, ledger.Entry{
				From:        &escrow,
				To:          &user,
				AmountCents: b.AmountCents,
				Type:        storage.TxBetRefund,
				Data:        map[string]string{"bet_id": b.ID, "event_id": eventID, "reason": "event_cancelled"},
			})
			if err != nil {
				return err
			}
			if err := tx.MarkBetCancelled(ctx, b.ID, refund.Hash); err != nil {
				return err
			}
		}

		parts, err := tx.Participants(ctx, eventID)
		if err != nil {
			return err
		}
		for _, p := range parts {
			if p.StakeCents == 0 {
				continue
			}
			user := p.UserID
			if _, err := s.ledger.AppendIn(ctx, tx, ledger.Entry{
				From:        &escrow,
				To:          &user,
				AmountCents: p.StakeCents,
				Type:        storage.TxHoldRefund,
				Data:        map[string]string{"event_id": eventID, "reason": "event_cancelled"},
			}); err != nil {
				return err
			}
		}

		ev.Status = storage.StatusCancelled
		ev.TotalPoolCents = 0
		return tx.UpdateEvent(ctx, ev)
	})
}
