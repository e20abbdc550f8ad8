package metrics

import "github.com/prometheus/client_golang/prometheus"

// Completion outcomes tracked per attempt.
const (
	CompletionOutcomePaid     = "paid"
	CompletionOutcomeReplayed = "replayed"
	CompletionOutcomeConflict = "conflict"
	CompletionOutcomeFailed   = "failed"
)

// PurchaseMetrics counts purchase lifecycle events.
type PurchaseMetrics struct {
	initiations *prometheus.CounterVec
	completions *prometheus.CounterVec
}

// NewPurchaseMetrics registers the purchase counters on the provided registerer.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	if reg == nil {
		return &PurchaseMetrics{}
	}
	initiations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_initiations_total",
		Help: "Purchase initiation attempts by result.",
	}, []string{"result"})
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_completions_total",
		Help: "Purchase completion attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(initiations, completions)
	return &PurchaseMetrics{
		initiations: initiations,
		completions: completions,
	}
}

// IncInitiation records an initiation attempt result (ok/error).
func (p *PurchaseMetrics) IncInitiation(result string) {
	if p == nil || p.initiations == nil {
		return
	}
	p.initiations.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncCompletion records a completion attempt outcome.
func (p *PurchaseMetrics) IncCompletion(outcome string) {
	if p == nil || p.completions == nil {
		return
	}
	p.completions.WithLabelValues(normalizeLabel(outcome)).Inc()
}
