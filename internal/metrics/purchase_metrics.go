package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PurchaseMetrics содержит метрики обработки покупок.
type PurchaseMetrics struct {
	attempts  prometheus.Counter
	conflicts prometheus.Counter
	outcomes  *prometheus.CounterVec
	units     prometheus.Counter
	duration  prometheus.Histogram
}

// NewPurchaseMetrics регистрирует метрики покупок в default registry.
func NewPurchaseMetrics() *PurchaseMetrics {
	return NewPurchaseMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPurchaseMetricsWithRegisterer регистрирует метрики покупок в указанном registry.
func NewPurchaseMetricsWithRegisterer(registerer prometheus.Registerer) *PurchaseMetrics {
	return &PurchaseMetrics{
		attempts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_purchase_commit_attempts_total",
			Help: "Total number of conditional purchase writes attempted against the store",
		}),
		conflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_purchase_version_conflicts_total",
			Help: "Total number of purchase writes rejected by a product version conflict",
		}),
		outcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_purchase_outcomes_total",
			Help: "Purchase results by outcome",
		}, []string{"outcome"}),
		units: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_purchase_units_total",
			Help: "Total number of product units sold",
		}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_purchase_duration_seconds",
			Help:    "End-to-end duration of purchase processing in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// RecordAttempt увеличивает счётчик попыток условной записи.
func (m *PurchaseMetrics) RecordAttempt() {
	m.attempts.Inc()
}

// RecordConflict увеличивает счётчик конфликтов версий.
func (m *PurchaseMetrics) RecordConflict() {
	m.conflicts.Inc()
}

// RecordOutcome фиксирует итог покупки, её длительность и проданные единицы.
func (m *PurchaseMetrics) RecordOutcome(outcome string, quantity int, duration time.Duration) {
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.Observe(duration.Seconds())
	if outcome == OutcomeSuccess && quantity > 0 {
		m.units.Add(float64(quantity))
	}
}
