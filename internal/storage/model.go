package storage

import "time"

// Contas de sistema da plataforma. O escrow segura stakes de apostas e de
// participação até a liquidação; fees acumula a taxa retida da plataforma.
const (
	AccountEscrow = "platform:escrow"
	AccountFees   = "platform:fees"
)

// TxType classifica cada lançamento da corrente.
type TxType string

const (
	TxDeposit         TxType = "deposit"
	TxWithdrawal      TxType = "withdrawal"
	TxTransfer        TxType = "transfer"
	TxBetPlace        TxType = "bet_place"
	TxBetMatch        TxType = "bet_match"
	TxBetWin          TxType = "bet_win"
	TxBetRefund       TxType = "bet_refund"
	TxHold            TxType = "hold"
	TxHoldRefund      TxType = "hold_refund"
	TxStreamerPayment TxType = "streamer_payment"
	TxPlatformFee     TxType = "platform_fee"
)

// LedgerTransaction é um lançamento imutável da corrente encadeada por hash.
// PrevHash de cada lançamento é o Hash do anterior; o gênese tem PrevHash nil.
type LedgerTransaction struct {
	ID          string
	Seq         int64
	FromUser    *string // nil = emissão pelo sistema
	ToUser      *string // nil = queima pelo sistema
	AmountCents int64
	Type        TxType
	Data        map[string]string
	ExternalRef *string
	PrevHash    *string
	Hash        string
	CreatedAt   time.Time
}

// EventStatus segue a ordem do ciclo de vida; cancelled é terminal à parte.
type EventStatus string

const (
	StatusCreated           EventStatus = "created"
	StatusWaitingForPlayers EventStatus = "waiting_for_players"
	StatusAcceptingBets     EventStatus = "accepting_bets"
	StatusReady             EventStatus = "ready"
	StatusLive              EventStatus = "live"
	StatusBettingClosed     EventStatus = "betting_closed"
	StatusEventEnd          EventStatus = "event_end"
	StatusStreamerVoting    EventStatus = "streamer_voting"
	StatusAdminReview       EventStatus = "admin_review"
	StatusFinalResult       EventStatus = "final_result"
	StatusSettlement        EventStatus = "settlement"
	StatusClosed            EventStatus = "closed"
	StatusCancelled         EventStatus = "cancelled"
)

// Event é um confronto; os competidores são os participantes na ordem de
// entrada (lado A = posição 1, lado B = posição 2).
type Event struct {
	ID              string
	Title           string
	Status          EventStatus
	StakeCents      int64
	TotalPoolCents  int64
	FeePercent      int64
	MaxParticipants int
	MatchStart      *time.Time
	WinnerUserID    *string
	CreatedAt       time.Time
}

type ParticipantStatus string

const (
	ParticipantActive ParticipantStatus = "active"
	ParticipantWon    ParticipantStatus = "won"
	ParticipantLost   ParticipantStatus = "lost"
)

type EventParticipant struct {
	EventID    string
	UserID     string
	Position   int
	StakeCents int64
	Status     ParticipantStatus
	JoinedAt   time.Time
}

// Side identifica o lado apostado de um confronto de dois competidores.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Opposite devolve o lado contrário; vazio para valores desconhecidos.
func (s Side) Opposite() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	}
	return ""
}

type BetStatus string

const (
	BetPending   BetStatus = "pending"
	BetMatched   BetStatus = "matched"
	BetCancelled BetStatus = "cancelled"
)

// Bet nunca é apagada; o status só muda pelo casamento, pelo cancelamento do
// evento ou pelo reembolso na liquidação.
type Bet struct {
	ID           string
	EventID      string
	UserID       string
	Side         Side
	AmountCents  int64
	Status       BetStatus
	PlacedAt     time.Time
	MatchedAt    *time.Time
	MatchedBetID *string
	PlaceTxHash  string
	MatchTxHash  *string
	RefundTxHash *string
}

// Vote é imutável depois de criado, exceto IsPaid.
type Vote struct {
	EventID      string
	StreamerID   string
	WinnerUserID string
	VoteHash     string
	Notes        string
	IsPaid       bool
	CreatedAt    time.Time
}
