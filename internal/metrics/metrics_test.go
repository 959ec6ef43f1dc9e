package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func labeledCounter(t *testing.T, mf *dto.MetricFamily, label, value string) float64 {
	t.Helper()
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("no sample with %s=%q in %s", label, value, mf.GetName())
	return 0
}

func TestPurchaseMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPurchaseMetricsWithRegisterer(reg)

	m.RecordAttempt()
	m.RecordAttempt()
	m.RecordConflict()
	m.RecordOutcome(OutcomeSuccess, 3, 12*time.Millisecond)
	m.RecordOutcome("insufficient_stock", 5, time.Millisecond)

	if got := gatherFamily(t, reg, "marketplace_purchase_commit_attempts_total").GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 attempts, got %v", got)
	}
	if got := gatherFamily(t, reg, "marketplace_purchase_version_conflicts_total").GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}

	outcomes := gatherFamily(t, reg, "marketplace_purchase_outcomes_total")
	if got := labeledCounter(t, outcomes, "outcome", OutcomeSuccess); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := labeledCounter(t, outcomes, "outcome", "insufficient_stock"); got != 1 {
		t.Fatalf("expected 1 insufficient_stock, got %v", got)
	}

	if got := gatherFamily(t, reg, "marketplace_purchase_units_total").GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("only successful units must be counted, got %v", got)
	}
	hist := gatherFamily(t, reg, "marketplace_purchase_duration_seconds").GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 2 {
		t.Fatalf("expected 2 duration samples, got %d", hist.GetSampleCount())
	}
}

func TestAuthMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuthMetricsWithRegisterer(reg)

	m.RecordRegistration(OutcomeSuccess)
	m.RecordRegistration("unique_violation")
	m.RecordLogin("invalid_credentials")
	m.RecordKDF("derive", 40*time.Millisecond)

	regs := gatherFamily(t, reg, "marketplace_registrations_total")
	if got := labeledCounter(t, regs, "outcome", "unique_violation"); got != 1 {
		t.Fatalf("expected 1 unique_violation, got %v", got)
	}
	logins := gatherFamily(t, reg, "marketplace_logins_total")
	if got := labeledCounter(t, logins, "outcome", "invalid_credentials"); got != 1 {
		t.Fatalf("expected 1 invalid_credentials, got %v", got)
	}
	kdf := gatherFamily(t, reg, "marketplace_credential_kdf_duration_seconds").GetMetric()[0]
	if kdf.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected 1 kdf sample, got %d", kdf.GetHistogram().GetSampleCount())
	}
}

func TestRegister_ReusesExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPurchaseMetricsWithRegisterer(reg)
	second := NewPurchaseMetricsWithRegisterer(reg)

	first.RecordAttempt()
	second.RecordAttempt()

	if got := gatherFamily(t, reg, "marketplace_purchase_commit_attempts_total").GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected shared counter with value 2, got %v", got)
	}
}

func TestRegister_PanicsOnTypeMismatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_purchase_duration_seconds",
		Help: "End-to-end duration of purchase processing in seconds",
	}))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on collector type mismatch")
		}
	}()
	NewPurchaseMetricsWithRegisterer(reg)
}

func TestOutboxMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetricsWithRegisterer(reg)

	m.RecordPublish("sent")
	m.RecordPublish("sent")
	m.RecordPublish("retry_error")
	m.SetBacklog(4, 3*time.Second)

	attempts := gatherFamily(t, reg, "marketplace_outbox_publish_attempts_total")
	if got := labeledCounter(t, attempts, "result", "sent"); got != 2 {
		t.Fatalf("expected 2 sent, got %v", got)
	}
	if got := gatherFamily(t, reg, "marketplace_outbox_pending_records").GetMetric()[0].GetGauge().GetValue(); got != 4 {
		t.Fatalf("expected pending 4, got %v", got)
	}
	if got := gatherFamily(t, reg, "marketplace_outbox_oldest_pending_age_seconds").GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Fatalf("expected oldest age 3s, got %v", got)
	}

	m.SetBacklog(0, -time.Second)
	if got := gatherFamily(t, reg, "marketplace_outbox_oldest_pending_age_seconds").GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Fatalf("expected negative age clamped to 0, got %v", got)
	}

	m.RecordCleanup("ok", 5)
	m.RecordCleanup("ok", 0)
	m.RecordCleanup("error", 0)
	runs := gatherFamily(t, reg, "marketplace_outbox_cleanup_runs_total")
	if got := labeledCounter(t, runs, "result", "ok"); got != 2 {
		t.Fatalf("expected 2 ok cleanup runs, got %v", got)
	}
	if got := gatherFamily(t, reg, "marketplace_outbox_cleanup_deleted_total").GetMetric()[0].GetCounter().GetValue(); got != 5 {
		t.Fatalf("expected 5 deleted, got %v", got)
	}
}

func TestAuditMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuditMetricsWithRegisterer(reg)

	m.RecordEvent("processed", 3)
	m.RecordEvent("invalid", 0)

	events := gatherFamily(t, reg, "marketplace_audit_events_total")
	if got := labeledCounter(t, events, "result", "processed"); got != 1 {
		t.Fatalf("expected 1 processed, got %v", got)
	}
	if got := gatherFamily(t, reg, "marketplace_audit_units_total").GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected 3 units, got %v", got)
	}
}
