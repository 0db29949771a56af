package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.RegistryOutcome("property", "success")
	m.RegistryOutcome("property", "success")
	m.RegistryOutcome("property", "skipped")
	if got := testutil.ToFloat64(m.registryOutcomes.WithLabelValues("property", "success")); got != 2 {
		t.Errorf("success outcomes = %v, want 2", got)
	}

	m.Validation("COMPOUND", 2, 1)
	m.Validation("COMPOUND", 0, 0)
	if got := testutil.ToFloat64(m.validationRecords.WithLabelValues("COMPOUND", "invalid")); got != 1 {
		t.Errorf("invalid records = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.validationFailures.WithLabelValues("COMPOUND", "field")); got != 2 {
		t.Errorf("field failures = %v, want 2", got)
	}

	m.Compile("filter", time.Now(), "UNKNOWN_FIELD")
	m.Compile("filter", time.Now(), "")
	if got := testutil.ToFloat64(m.compileErrors.WithLabelValues("filter", "UNKNOWN_FIELD")); got != 1 {
		t.Errorf("compile errors = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.compileDuration); n != 1 {
		t.Errorf("compile duration series = %d, want 1", n)
	}

	m.RuleCache(true)
	m.RuleCache(false)
	m.RuleCache(false)
	if got := testutil.ToFloat64(m.ruleCacheMisses); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RegistryOutcome("property", "success")
	m.Validation("COMPOUND", 1, 1)
	m.Compile("plan", time.Now(), "")
	m.SearchRows(3)
	m.RuleCache(true)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, ""); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(reg, ""); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
