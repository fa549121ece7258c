package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/W3nkt/Nyuj-PVP-sub001/internal/errs"
)

// Postgres implementa Store sobre lib/pq. Serialização: a sentinela
// ledger_tail é travada com FOR UPDATE por todo append, e a candidata de
// casamento com FOR UPDATE na linha da aposta.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgTx struct{ tx *sql.Tx }

// --- corrente / saldos ---

func (t *pgTx) LockTail(ctx context.Context) (*string, int64, error) {
	var last sql.NullString
	var seq int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT last_hash, last_seq FROM ledger_tail WHERE id=1 FOR UPDATE`).Scan(&last, &seq)
	if err != nil {
		return nil, 0, err
	}
	return nullableString(last), seq, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, lt *LedgerTransaction) error {
	data, err := json.Marshal(lt.Data)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO ledger (id, seq, from_user, to_user, amount_cents, tx_type, data, external_ref, prev_hash, hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		lt.ID, lt.Seq, lt.FromUser, lt.ToUser, lt.AmountCents, string(lt.Type),
		data, lt.ExternalRef, lt.PrevHash, lt.Hash, lt.CreatedAt)
	if err != nil {
		// 23505 no external_ref: duas submissões concorrentes com o mesmo
		// token passaram pela checagem de replay antes de qualquer commit. O
		// índice segura o invariante; a perdedora devolve conflito e o retry
		// do cliente encontra o lançamento já gravado.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "external_ref") {
			return fmt.Errorf("%w: external_ref already used", errs.ErrStateConflict)
		}
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE ledger_tail SET last_hash=$1, last_seq=$2 WHERE id=1`, lt.Hash, lt.Seq)
	return err
}

func (t *pgTx) TransactionByRef(ctx context.Context, ref string) (*LedgerTransaction, error) {
	row := t.tx.QueryRowContext(ctx, selectLedger+` WHERE external_ref=$1`, ref)
	lt, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return lt, err
}

func (t *pgTx) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	var bal int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO balances (user_id, balance_cents) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET balance_cents = balances.balance_cents + EXCLUDED.balance_cents
		RETURNING balance_cents`, userID, delta).Scan(&bal)
	if err != nil {
		// 23514 = violação de check (balance_cents >= 0)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return 0, errs.ErrInsufficientFunds
		}
		return 0, err
	}
	if bal < 0 {
		return 0, errs.ErrInsufficientFunds
	}
	return bal, nil
}

func (t *pgTx) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT balance_cents FROM balances WHERE user_id=$1`, userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return bal, err
}

func (t *pgTx) Balances(ctx context.Context) (map[string]int64, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT user_id, balance_cents FROM balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var user string
		var bal int64
		if err := rows.Scan(&user, &bal); err != nil {
			return nil, err
		}
		out[user] = bal
	}
	return out, rows.Err()
}

const selectLedger = `
	SELECT id, seq, from_user, to_user, amount_cents, tx_type, data, external_ref, prev_hash, hash, created_at
	FROM ledger`

func (t *pgTx) Transactions(ctx context.Context) ([]LedgerTransaction, error) {
	rows, err := t.tx.QueryContext(ctx, selectLedger+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLedger(rows)
}

func (t *pgTx) UserTransactions(ctx context.Context, userID string, limit int) ([]LedgerTransaction, error) {
	rows, err := t.tx.QueryContext(ctx,
		selectLedger+` WHERE from_user=$1 OR to_user=$1 ORDER BY seq DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLedger(rows)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanLedger(row rowScanner) (*LedgerTransaction, error) {
	var lt LedgerTransaction
	var from, to, ref, prev sql.NullString
	var data []byte
	var typ string
	if err := row.Scan(&lt.ID, &lt.Seq, &from, &to, &lt.AmountCents, &typ, &data, &ref, &prev, &lt.Hash, &lt.CreatedAt); err != nil {
		return nil, err
	}
	lt.Type = TxType(typ)
	lt.FromUser = nullableString(from)
	lt.ToUser = nullableString(to)
	lt.ExternalRef = nullableString(ref)
	lt.PrevHash = nullableString(prev)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &lt.Data); err != nil {
			return nil, err
		}
	}
	lt.CreatedAt = lt.CreatedAt.UTC()
	return &lt, nil
}

func collectLedger(rows *sql.Rows) ([]LedgerTransaction, error) {
	var out []LedgerTransaction
	for rows.Next() {
		lt, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lt)
	}
	return out, rows.Err()
}

// --- eventos / participantes ---

const selectEvent = `
	SELECT id, title, status, stake_cents, total_pool_cents, fee_percent, max_participants, match_start, winner_user_id, created_at
	FROM events`

func (t *pgTx) InsertEvent(ctx context.Context, e *Event) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO events (id, title, status, stake_cents, total_pool_cents, fee_percent, max_participants, match_start, winner_user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.Title, string(e.Status), e.StakeCents, e.TotalPoolCents, e.FeePercent,
		e.MaxParticipants, e.MatchStart, e.WinnerUserID, e.CreatedAt)
	return err
}

func (t *pgTx) GetEvent(ctx context.Context, id string) (*Event, error) {
	return scanEvent(t.tx.QueryRowContext(ctx, selectEvent+` WHERE id=$1`, id))
}

func (t *pgTx) EventForUpdate(ctx context.Context, id string) (*Event, error) {
	return scanEvent(t.tx.QueryRowContext(ctx, selectEvent+` WHERE id=$1 FOR UPDATE`, id))
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var status string
	var start sql.NullTime
	var winner sql.NullString
	err := row.Scan(&e.ID, &e.Title, &status, &e.StakeCents, &e.TotalPoolCents,
		&e.FeePercent, &e.MaxParticipants, &start, &winner, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Status = EventStatus(status)
	if start.Valid {
		utc := start.Time.UTC()
		e.MatchStart = &utc
	}
	e.WinnerUserID = nullableString(winner)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (t *pgTx) UpdateEvent(ctx context.Context, e *Event) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE events SET status=$1, total_pool_cents=$2, winner_user_id=$3, match_start=$4 WHERE id=$5`,
		string(e.Status), e.TotalPoolCents, e.WinnerUserID, e.MatchStart, e.ID)
	return err
}

func (t *pgTx) TransitionEventStatus(ctx context.Context, id string, from, to EventStatus) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE events SET status=$1 WHERE id=$2 AND status=$3`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t *pgTx) EventsByStatus(ctx context.Context, statuses ...EventStatus) ([]Event, error) {
	in := make([]string, len(statuses))
	for i, s := range statuses {
		in[i] = string(s)
	}
	rows, err := t.tx.QueryContext(ctx, selectEvent+` WHERE status = ANY($1) ORDER BY created_at`, pq.Array(in))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertParticipant(ctx context.Context, p *EventParticipant) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO event_participants (event_id, user_id, position, stake_cents, status, joined_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.EventID, p.UserID, p.Position, p.StakeCents, string(p.Status), p.JoinedAt)
	return err
}

func (t *pgTx) Participants(ctx context.Context, eventID string) ([]EventParticipant, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT event_id, user_id, position, stake_cents, status, joined_at
		FROM event_participants WHERE event_id=$1 ORDER BY position`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventParticipant
	for rows.Next() {
		var p EventParticipant
		var status string
		if err := rows.Scan(&p.EventID, &p.UserID, &p.Position, &p.StakeCents, &status, &p.JoinedAt); err != nil {
			return nil, err
		}
		p.Status = ParticipantStatus(status)
		p.JoinedAt = p.JoinedAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdateParticipantStatus(ctx context.Context, eventID, userID string, st ParticipantStatus) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE event_participants SET status=$1 WHERE event_id=$2 AND user_id=$3`,
		string(st), eventID, userID)
	return err
}

// --- apostas ---

const selectBet = `
	SELECT id, event_id, user_id, side, amount_cents, status, placed_at, matched_at, matched_bet_id, place_tx_hash, match_tx_hash, refund_tx_hash
	FROM bets`

func (t *pgTx) InsertBet(ctx context.Context, b *Bet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bets (id, event_id, user_id, side, amount_cents, status, placed_at, place_tx_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.ID, b.EventID, b.UserID, string(b.Side), b.AmountCents, string(b.Status), b.PlacedAt, b.PlaceTxHash)
	return err
}

func (t *pgTx) GetBet(ctx context.Context, id string) (*Bet, error) {
	b, err := scanBet(t.tx.QueryRowContext(ctx, selectBet+` WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return b, err
}

func (t *pgTx) LockMatchCandidate(ctx context.Context, eventID string, side Side, amountCents int64, excludeUser string) (*Bet, error) {
	b, err := scanBet(t.tx.QueryRowContext(ctx, selectBet+`
		WHERE event_id=$1 AND side=$2 AND amount_cents=$3 AND status='pending' AND user_id <> $4
		ORDER BY placed_at, id LIMIT 1 FOR UPDATE`,
		eventID, string(side), amountCents, excludeUser))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func scanBet(row rowScanner) (*Bet, error) {
	var b Bet
	var side, status string
	var matchedAt sql.NullTime
	var matchedBet, matchHash, refundHash sql.NullString
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &side, &b.AmountCents, &status,
		&b.PlacedAt, &matchedAt, &matchedBet, &b.PlaceTxHash, &matchHash, &refundHash)
	if err != nil {
		return nil, err
	}
	b.Side = Side(side)
	b.Status = BetStatus(status)
	b.PlacedAt = b.PlacedAt.UTC()
	if matchedAt.Valid {
		utc := matchedAt.Time.UTC()
		b.MatchedAt = &utc
	}
	b.MatchedBetID = nullableString(matchedBet)
	b.MatchTxHash = nullableString(matchHash)
	b.RefundTxHash = nullableString(refundHash)
	return &b, nil
}

func (t *pgTx) MarkMatched(ctx context.Context, betID, otherBetID, matchTxHash string, at time.Time) error {
	pair := [][2]string{{betID, otherBetID}, {otherBetID, betID}}
	for _, p := range pair {
		if _, err := t.tx.ExecContext(ctx, `
			UPDATE bets SET status='matched', matched_at=$1, matched_bet_id=$2, match_tx_hash=$3 WHERE id=$4`,
			at, p[1], matchTxHash, p[0]); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) BetsByEvent(ctx context.Context, eventID string) ([]Bet, error) {
	rows, err := t.tx.QueryContext(ctx, selectBet+` WHERE event_id=$1 ORDER BY placed_at, id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (t *pgTx) MarkBetCancelled(ctx context.Context, betID, refundTxHash string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE bets SET status='cancelled', refund_tx_hash=$1 WHERE id=$2`, refundTxHash, betID)
	return err
}

// --- votos / streamers ---

func (t *pgTx) AssignStreamer(ctx context.Context, eventID, streamerID string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO event_streamers (event_id, streamer_id) VALUES ($1,$2)
		ON CONFLICT DO NOTHING`, eventID, streamerID)
	return err
}

func (t *pgTx) Streamers(ctx context.Context, eventID string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT streamer_id FROM event_streamers WHERE event_id=$1 ORDER BY streamer_id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertVote(ctx context.Context, v *Vote) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO votes (event_id, streamer_id, winner_user_id, vote_hash, notes, is_paid, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		v.EventID, v.StreamerID, v.WinnerUserID, v.VoteHash, v.Notes, v.IsPaid, v.CreatedAt)
	return err
}

func (t *pgTx) Votes(ctx context.Context, eventID string) ([]Vote, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT event_id, streamer_id, winner_user_id, vote_hash, notes, is_paid, created_at
		FROM votes WHERE event_id=$1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Vote
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.EventID, &v.StreamerID, &v.WinnerUserID, &v.VoteHash, &v.Notes, &v.IsPaid, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *pgTx) MarkVotePaid(ctx context.Context, eventID, streamerID string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE votes SET is_paid=TRUE WHERE event_id=$1 AND streamer_id=$2`, eventID, streamerID)
	return err
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
