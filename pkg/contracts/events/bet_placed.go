package events

type BetPlaced struct {
	BetID       string `json:"bet_id"`
	EventID     string `json:"event_id"`
	UserID      string `json:"user_id"`
	Side        string `json:"side"`
	AmountCents int64  `json:"amount_cents"`
	TxHash      string `json:"tx_hash"` // hash do lançamento de escrow
	Matched     bool   `json:"matched"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
