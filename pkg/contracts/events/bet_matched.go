package events

type BetMatched struct {
	EventID      string `json:"event_id"`
	BetID        string `json:"bet_id"`
	MatchedBetID string `json:"matched_bet_id"`
	AmountCents  int64  `json:"amount_cents"`
	MatchTxHash  string `json:"match_tx_hash"`
	TsUnixMs     int64  `json:"ts_unix_ms"`
}
