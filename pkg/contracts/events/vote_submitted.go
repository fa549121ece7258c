package events

import "time"

// Emitido após cada voto aceito; carrega só a referência anônima.
type VoteSubmitted struct {
	EventID           string    `json:"event_id"`
	VoteHash          string    `json:"vote_hash"`
	VotesSubmitted    int       `json:"votes_submitted"`
	StreamersAssigned int       `json:"streamers_assigned"`
	EventStatus       string    `json:"event_status"`
	Ts                time.Time `json:"ts"`
}
