// Package storage define o contrato de persistência da plataforma e suas duas
// implementações: Postgres (produção) e memória (testes). Toda operação
// financeira roda dentro de WithinTx — ou ela confirma inteira, ou nada fica
// visível.
package storage

import (
	"context"
	"time"
)

// Store abre transações serializáveis sobre o estado da plataforma.
type Store interface {
	// WithinTx executa fn numa transação; erro de fn desfaz tudo.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx expõe as operações de leitura e escrita disponíveis dentro de uma
// transação. A cauda da corrente e a candidatura de casamento de apostas são
// recursos únicos: LockTail e LockMatchCandidate bloqueiam a linha até o
// commit, impedindo que duas operações concorrentes leiam-e-escrevam juntas.
type Tx interface {
	// --- corrente / saldos ---

	// LockTail trava a sentinela da cauda e devolve hash e seq do último
	// lançamento (nil/0 em corrente vazia).
	LockTail(ctx context.Context) (prevHash *string, seq int64, err error)
	// InsertTransaction grava o lançamento e avança a sentinela da cauda.
	InsertTransaction(ctx context.Context, t *LedgerTransaction) error
	// TransactionByRef devolve o lançamento com o external_ref, ou nil.
	TransactionByRef(ctx context.Context, ref string) (*LedgerTransaction, error)
	// AdjustBalance aplica delta ao saldo materializado do usuário, criando a
	// linha no primeiro uso. Saldo negativo resulta em errs.ErrInsufficientFunds.
	AdjustBalance(ctx context.Context, userID string, delta int64) (newBalance int64, err error)
	Balance(ctx context.Context, userID string) (int64, error)
	Balances(ctx context.Context) (map[string]int64, error)
	// Transactions devolve a corrente completa em ordem de inserção.
	Transactions(ctx context.Context) ([]LedgerTransaction, error)
	UserTransactions(ctx context.Context, userID string, limit int) ([]LedgerTransaction, error)

	// --- eventos / participantes ---

	InsertEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	// EventForUpdate trava a linha do evento até o commit.
	EventForUpdate(ctx context.Context, id string) (*Event, error)
	UpdateEvent(ctx context.Context, e *Event) error
	// TransitionEventStatus troca o status só se o atual ainda for from.
	// Condicional na própria escrita: uma leitura envelhecida vira no-op em
	// vez de sobrescrever pool e vencedor gravados por outra transação.
	TransitionEventStatus(ctx context.Context, id string, from, to EventStatus) (bool, error)
	EventsByStatus(ctx context.Context, statuses ...EventStatus) ([]Event, error)
	InsertParticipant(ctx context.Context, p *EventParticipant) error
	Participants(ctx context.Context, eventID string) ([]EventParticipant, error)
	UpdateParticipantStatus(ctx context.Context, eventID, userID string, st ParticipantStatus) error

	// --- apostas ---

	InsertBet(ctx context.Context, b *Bet) error
	GetBet(ctx context.Context, id string) (*Bet, error)
	// LockMatchCandidate trava e devolve a aposta pendente mais antiga do lado
	// informado, com o valor exato e de usuário diferente; nil se não houver.
	LockMatchCandidate(ctx context.Context, eventID string, side Side, amountCents int64, excludeUser string) (*Bet, error)
	MarkMatched(ctx context.Context, betID, otherBetID, matchTxHash string, at time.Time) error
	BetsByEvent(ctx context.Context, eventID string) ([]Bet, error)
	MarkBetCancelled(ctx context.Context, betID, refundTxHash string) error

	// --- votos / streamers ---

	AssignStreamer(ctx context.Context, eventID, streamerID string) error
	Streamers(ctx context.Context, eventID string) ([]string, error)
	InsertVote(ctx context.Context, v *Vote) error
	Votes(ctx context.Context, eventID string) ([]Vote, error)
	MarkVotePaid(ctx context.Context, eventID, streamerID string) error
}
