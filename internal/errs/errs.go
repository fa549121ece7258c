// Package errs define os erros sentinela compartilhados pelos módulos
// financeiros. Os handlers usam errors.Is para mapear cada tipo em um
// status HTTP e uma mensagem legível.
package errs

import "errors"

var (
	// ErrValidation — entrada malformada ou fora dos limites configurados
	ErrValidation = errors.New("invalid input")
	// ErrAuthorization — papel errado ou streamer não atribuído ao evento
	ErrAuthorization = errors.New("not authorized")
	// ErrStateConflict — operação incompatível com o status atual da entidade
	ErrStateConflict = errors.New("operation not valid for current state")
	// ErrInsufficientFunds — saldo insuficiente para o débito pedido
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotFound — entidade inexistente
	ErrNotFound = errors.New("not found")
	// ErrChainIntegrity — hash recomputado divergiu do armazenado; a corrente
	// recusa novos lançamentos até remediação manual
	ErrChainIntegrity = errors.New("ledger chain integrity violation")
)
