package dto

import "time"

type WalletResponse struct {
	UserID       string `json:"userId"`
	BalanceCents int64  `json:"balance_cents"`
	TxHash       string `json:"transaction_hash,omitempty"`
}

type TransactionView struct {
	ID          string            `json:"id"`
	FromUser    *string           `json:"from_user"`
	ToUser      *string           `json:"to_user"`
	AmountCents int64             `json:"amount_cents"`
	Type        string            `json:"type"`
	Data        map[string]string `json:"data,omitempty"`
	PrevHash    *string           `json:"previous_hash"`
	Hash        string            `json:"hash"`
	CreatedAt   time.Time         `json:"created_at"`
}

type HistoryResponse struct {
	UserID       string            `json:"userId"`
	Transactions []TransactionView `json:"transactions"`
}

type PlaceBetResponse struct {
	BetID           string  `json:"bet_id"`
	Status          string  `json:"status"`
	TxHash          string  `json:"transaction_hash"`
	Matched         bool    `json:"matched"`
	MatchTxHash     *string `json:"match_transaction_hash,omitempty"`
	NewBalanceCents int64   `json:"new_balance_cents"`
}

type BetStatusResponse struct {
	BetID       string  `json:"bet_id"`
	EventID     string  `json:"event_id"`
	Side        string  `json:"side"`
	AmountCents int64   `json:"amount_cents"`
	Status      string  `json:"status"`
	MatchTxHash *string `json:"match_transaction_hash,omitempty"`
}

type JoinEventResponse struct {
	EventID         string `json:"event_id"`
	EventStatus     string `json:"event_status"`
	NewBalanceCents int64  `json:"new_balance_cents"`
}

type VoteResponse struct {
	VoteHash          string  `json:"vote_hash"`
	VotesSubmitted    int     `json:"votes_submitted"`
	StreamersAssigned int     `json:"streamers_assigned"`
	EventStatus       string  `json:"event_status"`
	WinnerUserID      *string `json:"winner_id,omitempty"`
}

type ParticipantView struct {
	UserID     string `json:"userId"`
	Position   int    `json:"position"`
	StakeCents int64  `json:"stake_cents"`
	Status     string `json:"status"`
}

type EventStatusResponse struct {
	EventID        string            `json:"event_id"`
	Title          string            `json:"title"`
	Status         string            `json:"status"`
	BettingOpen    bool              `json:"betting_open"`
	PoolCents      int64             `json:"pool_cents"`
	MatchStart     *time.Time        `json:"match_start,omitempty"`
	SecondsToClose *int64            `json:"seconds_to_close,omitempty"`
	SecondsToStart *int64            `json:"seconds_to_start,omitempty"`
	WinnerUserID   *string           `json:"winner_id,omitempty"`
	Participants   []ParticipantView `json:"participants"`
}

type EventCreatedResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

type SweepResponse struct {
	ToBettingClosed int `json:"to_betting_closed"`
	ToLive          int `json:"to_live"`
}

type VerifyResponse struct {
	Valid         bool `json:"valid"`
	Length        int  `json:"length"`
	FirstBadIndex int  `json:"first_bad_index"` // -1 quando válida
}
