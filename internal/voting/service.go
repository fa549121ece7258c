// Package voting implementa o consenso dos streamers e a liquidação: o
// último voto dispara a apuração; vencedor único paga o pool na mesma
// transação, empate vai para revisão administrativa sem mover dinheiro.
package voting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/ledger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/shared/metrics"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
)

type Service struct {
	store          storage.Store
	ledger         *ledger.Service
	incentiveCents int64
	now            func() time.Time
}

func NewService(store storage.Store, lg *ledger.Service, incentiveCents int64, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, ledger: lg, incentiveCents: incentiveCents, now: now}
}

// VoteHash é a referência anônima de auditoria do voto.
func VoteHash(streamerID, eventID, winnerUserID string, ts time.Time) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		streamerID, eventID, winnerUserID, ts.UTC().Format(time.RFC3339Nano),
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// SubmitResult informa o progresso da apuração após o voto.
type SubmitResult struct {
	VoteHash          string
	VotesSubmitted    int
	StreamersAssigned int
	EventStatus       storage.EventStatus
	WinnerUserID      *string
	PoolCents         int64
	FeeCents          int64
	WinningsCents     int64
}

// Submit registra o voto e roda a checagem de consenso. O primeiro voto move
// o evento de event_end para streamer_voting; o último decide: vencedor
// único liquida na mesma transação, empate congela em admin_review.
func (s *Service) Submit(ctx context.Context, eventID, streamerID, winnerUserID, notes string) (SubmitResult, error) {
	if eventID == "" || streamerID == "" || winnerUserID == "" {
		return SubmitResult{}, fmt.Errorf("%w: eventId, streamerId and winnerId required", errs.ErrValidation)
	}

	var res SubmitResult
	var settled bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}

		streamers, err := tx.Streamers(ctx, eventID)
		if err != nil {
			return err
		}
		if !contains(streamers, streamerID) {
			return fmt.Errorf("%w: streamer not assigned to event", errs.ErrAuthorization)
		}

		switch ev.Status {
		case storage.StatusEventEnd:
			ev.Status = storage.StatusStreamerVoting
			if err := tx.UpdateEvent(ctx, ev); err != nil {
				return err
			}
		case storage.StatusStreamerVoting:
			// votação já aberta
		default:
			return fmt.Errorf("%w: event is %s, not accepting votes", errs.ErrStateConflict, ev.Status)
		}

		votes, err := tx.Votes(ctx, eventID)
		if err != nil {
			return err
		}
		for _, v := range votes {
			if v.StreamerID == streamerID {
				return fmt.Errorf("%w: streamer already voted", errs.ErrStateConflict)
			}
		}

		parts, err := tx.Participants(ctx, eventID)
		if err != nil {
			return err
		}
		if !isActiveParticipant(parts, winnerUserID) {
			return fmt.Errorf("%w: winner is not an active participant", errs.ErrValidation)
		}

		ts := s.now().UTC()
		vote := &storage.Vote{
			EventID:      eventID,
			StreamerID:   streamerID,
			WinnerUserID: winnerUserID,
			VoteHash:     VoteHash(streamerID, eventID, winnerUserID, ts),
			Notes:        notes,
			CreatedAt:    ts,
		}
		if err := tx.InsertVote(ctx, vote); err != nil {
			return err
		}
		votes = append(votes, *vote)

		res = SubmitResult{
			VoteHash:          vote.VoteHash,
			VotesSubmitted:    len(votes),
			StreamersAssigned: len(streamers),
			EventStatus:       ev.Status,
		}
		if len(votes) < len(streamers) {
			return nil
		}

		// Todos votaram: apura.
		winner, tie := tally(votes)
		if tie {
			ev.Status = storage.StatusAdminReview
			res.EventStatus = ev.Status
			return tx.UpdateEvent(ctx, ev)
		}

		ev.WinnerUserID = &winner
		ev.Status = storage.StatusFinalResult
		for _, p := range parts {
			st := storage.ParticipantLost
			if p.UserID == winner {
				st = storage.ParticipantWon
			}
			if err := tx.UpdateParticipantStatus(ctx, eventID, p.UserID, st); err != nil {
				return err
			}
		}

		res.PoolCents = ev.TotalPoolCents
		res.FeeCents = ev.TotalPoolCents * ev.FeePercent / 100
		res.WinningsCents = ev.TotalPoolCents - res.FeeCents
		if err := s.settle(ctx, tx, ev, votes); err != nil {
			return err
		}
		settled = true
		res.EventStatus = ev.Status
		res.WinnerUserID = &winner
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if settled {
		metrics.EventsSettled.Inc()
	}
	return res, nil
}

// tally agrupa votos por candidato; tie = mais de um candidato no topo.
func tally(votes []storage.Vote) (winner string, tie bool) {
	counts := map[string]int{}
	for _, v := range votes {
		counts[v.WinnerUserID]++
	}
	max := 0
	for cand, n := range counts {
		switch {
		case n > max:
			max, winner, tie = n, cand, false
		case n == max:
			tie = true
		}
	}
	return winner, tie
}

// settle paga o vencedor e os streamers votantes. Apostas ainda pendentes
// são reembolsadas antes do cálculo; a taxa sai do pool para platform:fees e
// o restante do escrow vai ao vencedor. Tudo na mesma transação do voto
// decisivo: o status avança final_result → settlement → closed.
func (s *Service) settle(ctx context.Context, tx storage.Tx, ev *storage.Event, votes []storage.Vote) error {
	escrow := storage.AccountEscrow
	fees := storage.AccountFees

	bets, err := tx.BetsByEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	for _, b := range bets {
		if b.Status != storage.BetPending {
			continue
		}
		user := b.UserID
		refund, err := s.ledger.AppendIn(ctx, tx, ledger.Entry{
			From:        &escrow,
			To:          &user,
			AmountCents: b.AmountCents,
			Type:        storage.TxBetRefund,
			Data:        map[string]string{"bet_id": b.ID, "event_id": ev.ID, "reason": "unmatched_at_settlement"},
		})
		if err != nil {
			return err
		}
		if err := tx.MarkBetCancelled(ctx, b.ID, refund.Hash); err != nil {
			return err
		}
	}

	ev.Status = storage.StatusSettlement
	if err := tx.UpdateEvent(ctx, ev); err != nil {
		return err
	}

	fee := ev.TotalPoolCents * ev.FeePercent / 100
	winnings := ev.TotalPoolCents - fee

	if fee > 0 {
		if _, err := s.ledger.AppendIn(ctx, tx, ledger.Entry{
			From:        &escrow,
			To:          &fees,
			AmountCents: fee,
			Type:        storage.TxPlatformFee,
			Data:        map[string]string{"event_id": ev.ID},
		}); err != nil {
			return err
		}
	}
	if winnings > 0 {
		if _, err := s.ledger.AppendIn(ctx, tx, ledger.Entry{
			From:        &escrow,
			To:          ev.WinnerUserID,
			AmountCents: winnings,
			Type:        storage.TxBetWin,
			Data:        map[string]string{"event_id": ev.ID},
		}); err != nil {
			return err
		}
	}

	for _, v := range votes {
		if s.incentiveCents > 0 {
			streamer := v.StreamerID
			if _, err := s.ledger.AppendIn(ctx, tx, ledger.Entry{
				To:          &streamer,
				AmountCents: s.incentiveCents,
				Type:        storage.TxStreamerPayment,
				Data:        map[string]string{"event_id": ev.ID},
			}); err != nil {
				return err
			}
		}
		if err := tx.MarkVotePaid(ctx, ev.ID, v.StreamerID); err != nil {
			return err
		}
	}

	ev.Status = storage.StatusClosed
	return tx.UpdateEvent(ctx, ev)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isActiveParticipant(parts []storage.EventParticipant, userID string) bool {
	for _, p := range parts {
		if p.UserID == userID && p.Status == storage.ParticipantActive {
			return true
		}
	}
	return false
}
