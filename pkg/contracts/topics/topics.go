package topics

const (
	// Apostas
	BetPlaced  = "bet_placed"
	BetMatched = "bet_matched"

	// Eventos / liquidação
	VoteSubmitted = "vote_submitted"
	EventSettled  = "event_settled"
)
