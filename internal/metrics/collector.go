package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all metrics for the token gallery service
type Collector struct {
	// Request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Cache metrics
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations prometheus.Counter
	coalescedRequests  prometheus.Counter

	// Provider metrics
	providerRequests  *prometheus.CounterVec
	providerDuration  *prometheus.HistogramVec
	providerFallbacks prometheus.Counter

	// Filter metrics
	tokensFiltered *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokengallery",
			Subsystem: "orchestrator",
			Name:      "requests_total",
			Help:      "Total collection requests by subject kind and cache source",
		}, []string{"subject_kind", "source"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tokengallery",
			Subsystem: "orchestrator",
			Name:      "request_duration_seconds",
			Help:      "Collection request duration by subject kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"subject_kind"}),
		cacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokengallery",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by subject kind",
		}, []string{"subject_kind"}),
		cacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokengallery",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by subject kind",
		}, []string{"subject_kind"}),
		cacheInvalidations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tokengallery",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Explicit cache invalidation calls",
		}),
		coalescedRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tokengallery",
			Subsystem: "orchestrator",
			Name:      "coalesced_requests_total",
			Help:      "Requests that joined an in-flight identical fetch",
		}),
		providerRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokengallery",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Provider calls by provider, operation and status",
		}, []string{"provider", "operation", "status"}),
		providerDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tokengallery",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Provider call duration by provider",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		providerFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tokengallery",
			Subsystem: "provider",
			Name:      "fallbacks_total",
			Help:      "Fetches served by a fallback provider after primary failure",
		}),
		tokensFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokengallery",
			Subsystem: "filter",
			Name:      "tokens_excluded_total",
			Help:      "Tokens excluded by the filter engine, by reason",
		}, []string{"reason"}),
	}
}

// ObserveRequest records one orchestrator request.
func (c *Collector) ObserveRequest(subjectKind, source string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(subjectKind, source).Inc()
	c.requestDuration.WithLabelValues(subjectKind).Observe(duration.Seconds())
}

// CacheHit records a cache hit for the subject kind.
func (c *Collector) CacheHit(subjectKind string) {
	c.cacheHits.WithLabelValues(subjectKind).Inc()
}

// CacheMiss records a cache miss for the subject kind.
func (c *Collector) CacheMiss(subjectKind string) {
	c.cacheMisses.WithLabelValues(subjectKind).Inc()
}

// CacheInvalidation records an explicit invalidation call.
func (c *Collector) CacheInvalidation() {
	c.cacheInvalidations.Inc()
}

// Coalesced records a request that shared an in-flight fetch.
func (c *Collector) Coalesced() {
	c.coalescedRequests.Inc()
}

// ObserveProviderCall records one provider call outcome.
func (c *Collector) ObserveProviderCall(providerName, operation, status string, duration time.Duration) {
	c.providerRequests.WithLabelValues(providerName, operation, status).Inc()
	c.providerDuration.WithLabelValues(providerName).Observe(duration.Seconds())
}

// Fallback records a fetch that succeeded only through a secondary provider.
func (c *Collector) Fallback() {
	c.providerFallbacks.Inc()
}

// TokensExcluded records filter exclusions by reason.
func (c *Collector) TokensExcluded(reason string, count int) {
	if count > 0 {
		c.tokensFiltered.WithLabelValues(reason).Add(float64(count))
	}
}
