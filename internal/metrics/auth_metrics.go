package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Общие значения label outcome.
const (
	OutcomeSuccess  = "success"
	OutcomeInternal = "internal"
)

// AuthMetrics содержит метрики регистрации и входа.
type AuthMetrics struct {
	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	kdfDuration   *prometheus.HistogramVec
}

// NewAuthMetrics регистрирует метрики аутентификации в default registry.
func NewAuthMetrics() *AuthMetrics {
	return NewAuthMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewAuthMetricsWithRegisterer регистрирует метрики аутентификации в указанном registry.
func NewAuthMetricsWithRegisterer(registerer prometheus.Registerer) *AuthMetrics {
	return &AuthMetrics{
		registrations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_registrations_total",
			Help: "User registrations by outcome",
		}, []string{"outcome"}),
		logins: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		kdfDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_credential_kdf_duration_seconds",
			Help:    "Duration of password key derivation in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

// RecordRegistration фиксирует исход регистрации.
func (m *AuthMetrics) RecordRegistration(outcome string) {
	m.registrations.WithLabelValues(outcome).Inc()
}

// RecordLogin фиксирует исход входа.
func (m *AuthMetrics) RecordLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

// RecordKDF фиксирует длительность derive/verify.
func (m *AuthMetrics) RecordKDF(operation string, duration time.Duration) {
	m.kdfDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
