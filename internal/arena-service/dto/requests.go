package dto

import "time"

type DepositRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"` // token de idempotência
}

type WithdrawRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"`
}

type TransferRequest struct {
	FromUserID  string `json:"fromUserId"`
	ToUserID    string `json:"toUserId"`
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note,omitempty"`
	ExternalRef string `json:"external_ref,omitempty"`
}

type PlaceBetRequest struct {
	UserID      string `json:"userId"`
	EventID     string `json:"event_id"`
	Side        string `json:"side"` // "A" | "B"
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"`
}

type JoinEventRequest struct {
	UserID      string `json:"userId"`
	ExternalRef string `json:"external_ref,omitempty"`
}

type SubmitVoteRequest struct {
	StreamerID   string `json:"streamerId"`
	WinnerUserID string `json:"winner_id"`
	Notes        string `json:"notes,omitempty"`
}

type CreateEventRequest struct {
	Title           string     `json:"title"`
	StakeCents      int64      `json:"stake_cents"`
	FeePercent      int64      `json:"fee_percent"`
	MaxParticipants int        `json:"max_participants"`
	MatchStart      *time.Time `json:"match_start,omitempty"`
}

type AssignStreamerRequest struct {
	StreamerID string `json:"streamerId"`
}
