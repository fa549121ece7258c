// Package http expõe a API JSON da plataforma: carteira, apostas, eventos,
// votos e as operações de auditoria.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	scache "github.com/W3nkt/Nyuj-PVP-sub001/internal/arena-service/cache"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/arena-service/dto"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/betting"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/event"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/ledger"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/storage"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/voting"
	"github.com/W3nkt/Nyuj-PVP-sub001/internal/wallet"
	contracts "github.com/W3nkt/Nyuj-PVP-sub001/pkg/contracts/events"
)

// Publisher emite eventos de domínio depois do commit; best-effort.
type Publisher interface {
	PublishBetPlaced(context.Context, contracts.BetPlaced) error
	PublishBetMatched(context.Context, contracts.BetMatched) error
	PublishVoteSubmitted(context.Context, contracts.VoteSubmitted) error
	PublishEventSettled(context.Context, contracts.EventSettled) error
}

type Server struct {
	log     *zap.Logger
	wallet  *wallet.Service
	betting *betting.Service
	events  *event.Service
	voting  *voting.Service
	ledger  *ledger.Service
	publ    Publisher           // nil desliga a publicação
	cache   *scache.StatusCache // nil desliga o cache de status
}

func NewServer(log *zap.Logger, w *wallet.Service, b *betting.Service, e *event.Service,
	v *voting.Service, lg *ledger.Service, p Publisher, c *scache.StatusCache) *Server {
	return &Server{log: log, wallet: w, betting: b, events: e, voting: v, ledger: lg, publ: p, cache: c}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/wallet", s.getWallet)
	r.Get("/wallet/history", s.getHistory)
	r.Post("/wallet/deposit", s.deposit)
	r.Post("/wallet/withdraw", s.withdraw)
	r.Post("/wallet/transfer", s.transfer)

	r.Post("/bets", s.placeBet)
	r.Get("/bets/{id}", s.getBet)

	r.Get("/events/{id}", s.eventStatus)
	r.Post("/events/{id}/join", s.joinEvent)
	r.Post("/events/{id}/votes", s.submitVote)

	r.Post("/admin/events", s.createEvent)
	r.Post("/admin/events/{id}/open", s.adminTransition(s.events.Open))
	r.Post("/admin/events/{id}/open-bets", s.adminTransition(s.events.OpenBets))
	r.Post("/admin/events/{id}/finish", s.adminTransition(s.events.Finish))
	r.Post("/admin/events/{id}/cancel", s.adminTransition(s.events.Cancel))
	r.Post("/admin/events/{id}/streamers", s.assignStreamer)

	r.Post("/sweep", s.sweep)
	r.Get("/ledger/verify", s.verify)

	return r
}

// writeErr mapeia os erros sentinela em status HTTP com mensagem legível.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrStateConflict), errors.Is(err, errs.ErrInsufficientFunds):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrChainIntegrity):
		status = http.StatusServiceUnavailable
	default:
		s.log.Error("internal error", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.ErrValidation
	}
	return nil
}

// --- wallet ---

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeErr(w, errs.ErrValidation)
		return
	}
	bal, err := s.wallet.Balance(r.Context(), userID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: userID, BalanceCents: bal})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeErr(w, errs.ErrValidation)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := s.wallet.History(r.Context(), userID, limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out := dto.HistoryResponse{UserID: userID, Transactions: make([]dto.TransactionView, 0, len(txs))}
	for _, t := range txs {
		out.Transactions = append(out.Transactions, txView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func txView(t storage.LedgerTransaction) dto.TransactionView {
	return dto.TransactionView{
		ID:          t.ID,
		FromUser:    t.FromUser,
		ToUser:      t.ToUser,
		AmountCents: t.AmountCents,
		Type:        string(t.Type),
		Data:        t.Data,
		PrevHash:    t.PrevHash,
		Hash:        t.Hash,
		CreatedAt:   t.CreatedAt,
	}
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := decode(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	res, err := s.wallet.Deposit(r.Context(), req.UserID, req.AmountCents, req.ExternalRef)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: req.UserID, BalanceCents: res.NewBalance, TxHash: res.Tx.Hash})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawRequest
	if err := decode(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	res, err := s.wallet.Withdraw(r.Context(), req.UserID, req.AmountCents, req.ExternalRef)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: req.UserID, BalanceCents: res.NewBalance, TxHash: res.Tx.Hash})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferRequest
	if err := decode(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	res, err := s.wallet.Transfer(r.Context(), req.FromUserID, req.ToUserID, req.AmountCents, req.Note, req.ExternalRef)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: req.FromUserID, BalanceCents: res.NewBalance, TxHash: res.Tx.Hash})
}

// --- apostas ---

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := decode(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	res, err := s.betting.Place(r.Context(), req.EventID, req.UserID, storage.Side(req.Side), req.AmountCents, req.ExternalRef)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	if s.publ != nil {
		_ = s.publ.PublishBetPlaced(r.Context(), contracts.BetPlaced{
			BetID:       res.Bet.ID,
			EventID:     res.Bet.EventID,
			UserID:      res.Bet.UserID,
			Side:        string(res.Bet.Side),
			AmountCents: res.Bet.AmountCents,
			TxHash:      res.TxHash,
			Matched:     res.Matched,
		})
		if res.Matched && res.Bet.MatchTxHash != nil {
			m := contracts.BetMatched{
				EventID:     res.Bet.EventID,
				BetID:       res.Bet.ID,
				AmountCents: res.Bet.AmountCents,
				MatchTxHash: *res.Bet.MatchTxHash,
			}
			if res.Bet.MatchedBetID != nil {
				m.MatchedBetID = *res.Bet.MatchedBetID
			}
			_ = s.publ.PublishBetMatched(r.Context(), m)
		}
	}

	writeJSON(w, http.StatusOK, dto.PlaceBetResponse{
		BetID:           res.Bet.ID,
		Status:          string(res.Bet.Status),
		TxHash:          res.TxHash,
		Matched:         res.Matched,
		MatchTxHash:     res.Bet.MatchTxHash,
		NewBalanceCents: res.NewBalance,
	})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := s.betting.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BetStatusResponse{
		BetID:       b.ID,
		EventID:     b.EventID,
		Side:        string(b.Side),
		AmountCents: b.AmountCents,
		Status:      string(b.Status),
		MatchTxHash: b.MatchTxHash,
	})
}

// --- eventos ---

func (s *Server) eventStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.cache != nil {
		var cached dto.EventStatusResponse
		if ok, _ := s.cache.Get(r.Context(), id, &cached); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	view, err := s.events.Status(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	out := dto.EventStatusResponse{
		EventID:      view.Event.ID,
		Title:        view.Event.Title,
		Status:       string(view.EffectiveStatus),
		BettingOpen:  view.BettingOpen,
		PoolCents:    view.Event.TotalPoolCents,
		MatchStart:   view.Event.MatchStart,
		WinnerUserID: view.Event.WinnerUserID,
		Participants: make([]dto.ParticipantView, 0, len(view.Participants)),
	}
	if view.TimeToClose != nil {
		secs := int64(view.TimeToClose.Seconds())
		out.SecondsToClose = &secs
	}
	if view.TimeToStart != nil {
		secs := int64(view.TimeToStart.Seconds())
		out.SecondsToStart = &secs
	}
	for _, p := range view.Participants {
		out.Participants = append(out.Participants, dto.ParticipantView{
			UserID:     p.UserID,
			Position:   p.Position,
			StakeCents: p.StakeCents,
			Status:     string(p.Status),
		})
	}

	if s.cache != nil {
		_ = s.cache.Set(r.Context(), id, out)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) joinEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.JoinEventRequest
	if err := decode(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	bal, err := s.events.Join(r.Context(), id, req.UserID, req.ExternalRef)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.invalidateStatus(r.Context(), id)
	writeJSON(w, http.StatusOK, dto.JoinEventResponse{EventID: id, NewBalanceCents: bal})
}

func (s *Server) submitVote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.SubmitVoteRequest
	if err := decode(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	res, err := s.voting.Submit(r.Context(), id, req.StreamerID, req.WinnerUserID, req.Notes)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.invalidateStatus(r.Context(), id)

	if s.publ != nil {
		_ = s.publ.PublishVoteSubmitted(r.Context(), contracts.VoteSubmitted{
			EventID:           id,
			VoteHash:          res.VoteHash,
			VotesSubmitted:    res.VotesSubmitted,
			StreamersAssigned: res.StreamersAssigned,
			EventStatus:       string(res.EventStatus),
		})
		if res.WinnerUserID != nil {
			_ = s.publ.PublishEventSettled(r.Context(), contracts.EventSettled{
				EventID:       id,
				WinnerUserID:  *res.WinnerUserID,
				PoolCents:     res.PoolCents,
				FeeCents:      res.FeeCents,
				WinningsCents: res.WinningsCents,
			})
		}
	}

	writeJSON(w, http.StatusOK, dto.VoteResponse{
		VoteHash:          res.VoteHash,
		VotesSubmitted:    res.VotesSubmitted,
		StreamersAssigned: res.StreamersAssigned,
		EventStatus:       string(res.EventStatus),
		WinnerUserID:      res.WinnerUserID,
	})
}

// --- admin ---

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateEventRequest
	if err := decode(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	ev, err := s.events.Create(r.Context(), event.CreateParams{
		Title:           req.Title,
		StakeCents:      req.StakeCents,
		FeePercent:      req.FeePercent,
		MaxParticipants: req.MaxParticipants,
		MatchStart:      req.MatchStart,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.EventCreatedResponse{EventID: ev.ID, Status: string(ev.Status)})
}

func (s *Server) adminTransition(fn func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(r.Context(), id); err != nil {
			s.writeErr(w, err)
			return
		}
		s.invalidateStatus(r.Context(), id)
		writeJSON(w, http.StatusOK, map[string]string{"event_id": id, "status": "ok"})
	}
}

func (s *Server) assignStreamer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.AssignStreamerRequest
	if err := decode(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	if err := s.events.AssignStreamer(r.Context(), id, req.StreamerID); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"event_id": id, "streamerId": req.StreamerID})
}

// --- operação ---

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.events.Sweep(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SweepResponse{ToBettingClosed: res.ToBettingClosed, ToLive: res.ToLive})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	rep, err := s.ledger.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.VerifyResponse{Valid: rep.Valid, Length: rep.Length, FirstBadIndex: rep.FirstBadIndex})
}

func (s *Server) invalidateStatus(ctx context.Context, eventID string) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, eventID)
	}
}
