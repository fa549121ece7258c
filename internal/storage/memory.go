package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
)

// Memory implementa Store em memória com a mesma semântica do Postgres:
// transações serializadas (um mutex faz o papel dos locks de linha) e
// rollback total quando fn devolve erro. É o dublê de testes de todos os
// serviços.
type Memory struct {
	mu sync.Mutex
	st memState
}

type memState struct {
	ledger       []LedgerTransaction
	tailHash     *string
	tailSeq      int64
	balances     map[string]int64
	events       map[string]Event
	participants map[string][]EventParticipant
	bets         map[string]Bet
	streamers    map[string][]string
	votes        map[string][]Vote
}

func NewMemory() *Memory {
	return &Memory{st: memState{
		balances:     map[string]int64{},
		events:       map[string]Event{},
		participants: map[string][]EventParticipant{},
		bets:         map[string]Bet{},
		streamers:    map[string][]string{},
		votes:        map[string][]Vote{},
	}}
}

// WithinTx roda fn sobre um clone do estado; só o commit troca o estado real.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.st.clone()
	if err := fn(ctx, &memTx{st: &work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (s memState) clone() memState {
	out := memState{
		ledger:       append([]LedgerTransaction(nil), s.ledger...),
		tailHash:     s.tailHash,
		tailSeq:      s.tailSeq,
		balances:     map[string]int64{},
		events:       map[string]Event{},
		participants: map[string][]EventParticipant{},
		bets:         map[string]Bet{},
		streamers:    map[string][]string{},
		votes:        map[string][]Vote{},
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	for k, v := range s.events {
		out.events[k] = v
	}
	for k, v := range s.participants {
		out.participants[k] = append([]EventParticipant(nil), v...)
	}
	for k, v := range s.bets {
		out.bets[k] = v
	}
	for k, v := range s.streamers {
		out.streamers[k] = append([]string(nil), v...)
	}
	for k, v := range s.votes {
		out.votes[k] = append([]Vote(nil), v...)
	}
	return out
}

type memTx struct{ st *memState }

// --- corrente / saldos ---

func (t *memTx) LockTail(ctx context.Context) (*string, int64, error) {
	return t.st.tailHash, t.st.tailSeq, nil
}

func (t *memTx) InsertTransaction(ctx context.Context, lt *LedgerTransaction) error {
	// Mesmo contrato do índice único de external_ref no Postgres.
	if lt.ExternalRef != nil {
		for i := range t.st.ledger {
			if r := t.st.ledger[i].ExternalRef; r != nil && *r == *lt.ExternalRef {
				return fmt.Errorf("%w: external_ref already used", errs.ErrStateConflict)
			}
		}
	}
	cp := *lt
	cp.Data = copyMap(lt.Data)
	t.st.ledger = append(t.st.ledger, cp)
	h := lt.Hash
	t.st.tailHash = &h
	t.st.tailSeq = lt.Seq
	return nil
}

func (t *memTx) TransactionByRef(ctx context.Context, ref string) (*LedgerTransaction, error) {
	for i := range t.st.ledger {
		if r := t.st.ledger[i].ExternalRef; r != nil && *r == ref {
			cp := t.st.ledger[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	next := t.st.balances[userID] + delta
	if next < 0 {
		return 0, errs.ErrInsufficientFunds
	}
	t.st.balances[userID] = next
	return next, nil
}

func (t *memTx) Balance(ctx context.Context, userID string) (int64, error) {
	return t.st.balances[userID], nil
}

func (t *memTx) Balances(ctx context.Context) (map[string]int64, error) {
	return copyBalances(t.st.balances), nil
}

func (t *memTx) Transactions(ctx context.Context) ([]LedgerTransaction, error) {
	return append([]LedgerTransaction(nil), t.st.ledger...), nil
}

func (t *memTx) UserTransactions(ctx context.Context, userID string, limit int) ([]LedgerTransaction, error) {
	var out []LedgerTransaction
	for i := len(t.st.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		lt := t.st.ledger[i]
		if (lt.FromUser != nil && *lt.FromUser == userID) || (lt.ToUser != nil && *lt.ToUser == userID) {
			out = append(out, lt)
		}
	}
	return out, nil
}

// --- eventos / participantes ---

func (t *memTx) InsertEvent(ctx context.Context, e *Event) error {
	t.st.events[e.ID] = *e
	return nil
}

func (t *memTx) GetEvent(ctx context.Context, id string) (*Event, error) {
	e, ok := t.st.events[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &e, nil
}

// EventForUpdate: o mutex do store já serializa, então é só leitura.
func (t *memTx) EventForUpdate(ctx context.Context, id string) (*Event, error) {
	return t.GetEvent(ctx, id)
}

func (t *memTx) UpdateEvent(ctx context.Context, e *Event) error {
	if _, ok := t.st.events[e.ID]; !ok {
		return errs.ErrNotFound
	}
	t.st.events[e.ID] = *e
	return nil
}

func (t *memTx) TransitionEventStatus(ctx context.Context, id string, from, to EventStatus) (bool, error) {
	ev, ok := t.st.events[id]
	if !ok || ev.Status != from {
		return false, nil
	}
	ev.Status = to
	t.st.events[id] = ev
	return true, nil
}

func (t *memTx) EventsByStatus(ctx context.Context, statuses ...EventStatus) ([]Event, error) {
	want := map[EventStatus]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	var out []Event
	for _, e := range t.st.events {
		if want[e.Status] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) InsertParticipant(ctx context.Context, p *EventParticipant) error {
	t.st.participants[p.EventID] = append(t.st.participants[p.EventID], *p)
	return nil
}

func (t *memTx) Participants(ctx context.Context, eventID string) ([]EventParticipant, error) {
	out := append([]EventParticipant(nil), t.st.participants[eventID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *memTx) UpdateParticipantStatus(ctx context.Context, eventID, userID string, st ParticipantStatus) error {
	ps := t.st.participants[eventID]
	for i := range ps {
		if ps[i].UserID == userID {
			ps[i].Status = st
			return nil
		}
	}
	return errs.ErrNotFound
}

// --- apostas ---

func (t *memTx) InsertBet(ctx context.Context, b *Bet) error {
	t.st.bets[b.ID] = *b
	return nil
}

func (t *memTx) GetBet(ctx context.Context, id string) (*Bet, error) {
	b, ok := t.st.bets[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &b, nil
}

func (t *memTx) LockMatchCandidate(ctx context.Context, eventID string, side Side, amountCents int64, excludeUser string) (*Bet, error) {
	var best *Bet
	for id := range t.st.bets {
		b := t.st.bets[id]
		if b.EventID != eventID || b.Side != side || b.AmountCents != amountCents ||
			b.Status != BetPending || b.UserID == excludeUser {
			continue
		}
		// FIFO por placed_at; id desempata, como no ORDER BY do Postgres
		if best == nil || b.PlacedAt.Before(best.PlacedAt) ||
			(b.PlacedAt.Equal(best.PlacedAt) && b.ID < best.ID) {
			cp := b
			best = &cp
		}
	}
	return best, nil
}

func (t *memTx) MarkMatched(ctx context.Context, betID, otherBetID, matchTxHash string, at time.Time) error {
	pair := map[string]string{betID: otherBetID, otherBetID: betID}
	for id, other := range pair {
		b, ok := t.st.bets[id]
		if !ok {
			return errs.ErrNotFound
		}
		b.Status = BetMatched
		matched := at
		b.MatchedAt = &matched
		counterpart := other
		b.MatchedBetID = &counterpart
		h := matchTxHash
		b.MatchTxHash = &h
		t.st.bets[id] = b
	}
	return nil
}

func (t *memTx) BetsByEvent(ctx context.Context, eventID string) ([]Bet, error) {
	var out []Bet
	for _, b := range t.st.bets {
		if b.EventID == eventID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].PlacedAt.Before(out[j].PlacedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) MarkBetCancelled(ctx context.Context, betID, refundTxHash string) error {
	b, ok := t.st.bets[betID]
	if !ok {
		return errs.ErrNotFound
	}
	b.Status = BetCancelled
	h := refundTxHash
	b.RefundTxHash = &h
	t.st.bets[betID] = b
	return nil
}

// --- votos / streamers ---

func (t *memTx) AssignStreamer(ctx context.Context, eventID, streamerID string) error {
	for _, s := range t.st.streamers[eventID] {
		if s == streamerID {
			return nil
		}
	}
	t.st.streamers[eventID] = append(t.st.streamers[eventID], streamerID)
	return nil
}

func (t *memTx) Streamers(ctx context.Context, eventID string) ([]string, error) {
	out := append([]string(nil), t.st.streamers[eventID]...)
	sort.Strings(out)
	return out, nil
}

func (t *memTx) InsertVote(ctx context.Context, v *Vote) error {
	t.st.votes[v.EventID] = append(t.st.votes[v.EventID], *v)
	return nil
}

func (t *memTx) Votes(ctx context.Context, eventID string) ([]Vote, error) {
	return append([]Vote(nil), t.st.votes[eventID]...), nil
}

func (t *memTx) MarkVotePaid(ctx context.Context, eventID, streamerID string) error {
	vs := t.st.votes[eventID]
	for i := range vs {
		if vs[i].StreamerID == streamerID {
			vs[i].IsPaid = true
			return nil
		}
	}
	return errs.ErrNotFound
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBalances(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
