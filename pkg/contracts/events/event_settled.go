package events

import "time"

type EventSettled struct {
	EventID       string    `json:"event_id"`
	WinnerUserID  string    `json:"winner_user_id"`
	PoolCents     int64     `json:"pool_cents"`
	FeeCents      int64     `json:"fee_cents"`
	WinningsCents int64     `json:"winnings_cents"`
	Ts            time.Time `json:"ts"`
}
