package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contadores de domínio expostos em /metrics.
var (
	LedgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_ledger_appends_total",
		Help: "Lançamentos gravados na corrente, por tipo.",
	}, []string{"type"})

	BetsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_bets_placed_total",
		Help: "Apostas aceitas.",
	})

	BetsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_bets_matched_total",
		Help: "Pares de apostas casados.",
	})

	EventsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_events_settled_total",
		Help: "Eventos liquidados com vencedor único.",
	})

	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_sweep_transitions_total",
		Help: "Transições de status aplicadas pelo sweep periódico.",
	}, []string{"to"})

	IntegrityFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_chain_integrity_failures_total",
		Help: "Verificações de integridade que encontraram hash divergente.",
	})
)
