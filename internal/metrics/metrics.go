// Package metrics instruments registration, validation and query
// compilation with Prometheus collectors. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "moltrack"

// Metrics holds the collectors.
type Metrics struct {
	registryOutcomes   *prometheus.CounterVec
	validationRecords  *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	compileDuration    *prometheus.HistogramVec
	compileErrors      *prometheus.CounterVec
	searchRows         prometheus.Histogram
	ruleCacheHits      prometheus.Counter
	ruleCacheMisses    prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "outcomes_total",
			Help:      "Schema registration outcomes by kind and status",
		}, []string{"kind", "status"}),
		validationRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "records_total",
			Help:      "Records validated by entity type and result",
		}, []string{"entity_type", "result"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "failures_total",
			Help:      "Validation failures by entity type and scope (field or record)",
		}, []string{"entity_type", "scope"}),
		compileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "compile_duration_seconds",
			Help:      "Duration of filter compilation and search planning",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"operation"}),
		compileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "compile_errors_total",
			Help:      "Compilation failures by error code",
		}, []string{"operation", "code"}),
		searchRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "search_rows",
			Help:      "Rows returned by executed searches",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		ruleCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "rule_cache_hits_total",
			Help:      "Compiled rule cache hits",
		}),
		ruleCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "rule_cache_misses_total",
			Help:      "Compiled rule cache misses",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.registryOutcomes, m.validationRecords, m.validationFailures,
		m.compileDuration, m.compileErrors, m.searchRows,
		m.ruleCacheHits, m.ruleCacheMisses,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegistryOutcome counts one registration outcome.
func (m *Metrics) RegistryOutcome(kind, status string) {
	if m == nil {
		return
	}
	m.registryOutcomes.WithLabelValues(kind, status).Inc()
}

// Validation records the result of validating one record.
func (m *Metrics) Validation(entityType string, fieldFailures, recordFailures int) {
	if m == nil {
		return
	}
	result := "valid"
	if fieldFailures+recordFailures > 0 {
		result = "invalid"
	}
	m.validationRecords.WithLabelValues(entityType, result).Inc()
	if fieldFailures > 0 {
		m.validationFailures.WithLabelValues(entityType, "field").Add(float64(fieldFailures))
	}
	if recordFailures > 0 {
		m.validationFailures.WithLabelValues(entityType, "record").Add(float64(recordFailures))
	}
}

// Compile observes one compilation. code is empty on success.
func (m *Metrics) Compile(operation string, start time.Time, code string) {
	if m == nil {
		return
	}
	m.compileDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if code != "" {
		m.compileErrors.WithLabelValues(operation, code).Inc()
	}
}

// SearchRows observes the size of a search result.
func (m *Metrics) SearchRows(n int) {
	if m == nil {
		return
	}
	m.searchRows.Observe(float64(n))
}

// RuleCache counts a compiled-rule cache lookup.
func (m *Metrics) RuleCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ruleCacheHits.Inc()
		return
	}
	m.ruleCacheMisses.Inc()
}
