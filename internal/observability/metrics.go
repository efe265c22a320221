package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics for the server. Each collector owns
// its registry, so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Control loop metrics
	Queries          *prometheus.CounterVec
	QueryDuration    prometheus.Histogram
	QueryConfidence  prometheus.Histogram
	MemoryHits       prometheus.Histogram
	ExplorationPaths prometheus.Counter
	FusionOperations prometheus.Counter

	// Consolidation metrics
	EdgesLinked prometheus.Counter
	EdgesPruned prometheus.Counter
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Control loop queries by outcome",
			},
			[]string{"outcome"},
		),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end control loop latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		QueryConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_confidence",
			Help:      "Confidence of successful answers",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		MemoryHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_memory_hits",
			Help:      "Memory nodes probed per successful query",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ExplorationPaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exploration_paths_total",
			Help:      "Alternative trajectories evaluated",
		}),
		FusionOperations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fusion_operations_total",
			Help:      "Fusion connections produced by queries",
		}),
		EdgesLinked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_connections_linked_total",
			Help:      "Fusion connections persisted by the scheduler",
		}),
		EdgesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_edges_pruned_total",
			Help:      "Edges removed by decay and pruning",
		}),
	}

	registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.Queries, c.QueryDuration, c.QueryConfidence, c.MemoryHits,
		c.ExplorationPaths, c.FusionOperations,
		c.EdgesLinked, c.EdgesPruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveQuery records one control loop run. metrics is nil unless the query
// succeeded.
func (c *Collector) ObserveQuery(outcome string, elapsed time.Duration, metrics *domain.CognitiveMetrics) {
	c.Queries.WithLabelValues(outcome).Inc()
	if metrics == nil {
		return
	}
	c.QueryDuration.Observe(elapsed.Seconds())
	c.QueryConfidence.Observe(metrics.Confidence)
	c.MemoryHits.Observe(float64(metrics.MemoryHits))
	c.ExplorationPaths.Add(float64(metrics.ExplorationPaths))
	c.FusionOperations.Add(float64(metrics.FusionOperations))
}

// ObserveConsolidation records one scheduler pass.
func (c *Collector) ObserveConsolidation(linked int, decay domain.EdgeDecayResult) {
	c.EdgesLinked.Add(float64(linked))
	c.EdgesPruned.Add(float64(decay.Pruned))
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
