package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLookup records cache reads.
	CacheOperationLookup CacheOperation = "lookup"
	// CacheOperationStore records cache writes.
	CacheOperationStore CacheOperation = "store"
	// CacheOperationRemove records explicit invalidations.
	CacheOperationRemove CacheOperation = "remove"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached entry.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached entry was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the backend failed; the caller treats it as a miss.
	CacheLookupError CacheLookupOutcome = "error"
	// CacheLookupBypassed indicates caching is disabled for the domain.
	CacheLookupBypassed CacheLookupOutcome = "bypassed"
)

// CacheWriteOutcome captures the result of a store or remove.
type CacheWriteOutcome string

const (
	// CacheWriteOK indicates the backend accepted the write.
	CacheWriteOK CacheWriteOutcome = "ok"
	// CacheWriteError indicates the write failed and was dropped.
	CacheWriteError CacheWriteOutcome = "error"
)

// Recorder publishes Prometheus metrics for cache and upstream activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	changeEvents *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatewaycache",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache provider operations executed by the lookup services.",
	}, []string{"domain", "operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatewaycache",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for cache provider operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"domain", "operation", "result"})

	upstreamRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatewaycache",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Upstream delegate calls made on cache misses.",
	}, []string{"domain", "status"})

	upstreamLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatewaycache",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for upstream delegate calls.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"domain", "status"})

	changeEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatewaycache",
		Subsystem: "communication",
		Name:      "change_events_total",
		Help:      "Communication change events reconciled against the cache.",
	}, []string{"type", "action", "decision"})

	reg.MustRegister(cacheOperations, cacheLatency, upstreamRequests, upstreamLatency, changeEvents)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:         reg,
		handler:          handler,
		cacheOperations:  cacheOperations,
		cacheLatency:     cacheLatency,
		upstreamRequests: upstreamRequests,
		upstreamLatency:  upstreamLatency,
		changeEvents:     changeEvents,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveCacheLookup records the result of a cache lookup.
func (r *Recorder) ObserveCacheLookup(domain string, result CacheLookupOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.observeCache(normalizeLabel(domain), CacheOperationLookup, resultLabel, duration)
}

// ObserveCacheStore records the result of a cache write.
func (r *Recorder) ObserveCacheStore(domain string, result CacheWriteOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	r.observeCache(normalizeLabel(domain), CacheOperationStore, writeLabel(result), duration)
}

// ObserveCacheRemove records the result of an explicit invalidation.
func (r *Recorder) ObserveCacheRemove(domain string, result CacheWriteOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	r.observeCache(normalizeLabel(domain), CacheOperationRemove, writeLabel(result), duration)
}

// ObserveUpstream records a delegate call and the result status it produced.
func (r *Recorder) ObserveUpstream(domain, status string, duration time.Duration) {
	if r == nil {
		return
	}
	domainLabel := normalizeLabel(domain)
	statusLabel := normalizeLabel(status)
	r.upstreamRequests.WithLabelValues(domainLabel, statusLabel).Inc()
	r.upstreamLatency.WithLabelValues(domainLabel, statusLabel).Observe(duration.Seconds())
}

// ObserveChangeEvent records the reconciliation decision taken for a change event.
func (r *Recorder) ObserveChangeEvent(communicationType, action, decision string) {
	if r == nil {
		return
	}
	r.changeEvents.WithLabelValues(normalizeLabel(communicationType), normalizeLabel(action), normalizeLabel(decision)).Inc()
}

func (r *Recorder) observeCache(domain string, operation CacheOperation, result string, duration time.Duration) {
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationLookup)
	}
	resLabel := normalizeLabel(result)
	r.cacheOperations.WithLabelValues(domain, opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(domain, opLabel, resLabel).Observe(duration.Seconds())
}

func writeLabel(result CacheWriteOutcome) string {
	if result == "" {
		return string(CacheWriteError)
	}
	return string(result)
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
