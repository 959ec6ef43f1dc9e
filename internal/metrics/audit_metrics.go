package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuditMetrics содержит метрики потребителя событий покупок.
type AuditMetrics struct {
	events *prometheus.CounterVec
	units  prometheus.Counter
}

// NewAuditMetricsWithRegisterer регистрирует метрики аудита в указанном registry.
func NewAuditMetricsWithRegisterer(registerer prometheus.Registerer) *AuditMetrics {
	return &AuditMetrics{
		events: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_audit_events_total",
			Help: "Purchase events consumed by the audit consumer grouped by result.",
		}, []string{"result"}),
		units: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_audit_units_total",
			Help: "Total number of units observed in consumed purchase events.",
		}),
	}
}

// RecordEvent фиксирует обработанное событие.
func (m *AuditMetrics) RecordEvent(result string, units int) {
	m.events.WithLabelValues(result).Inc()
	if units > 0 {
		m.units.Add(float64(units))
	}
}
