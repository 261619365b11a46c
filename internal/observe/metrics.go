// Package observe provides application-wide observability primitives for
// kgmemory: OpenTelemetry metrics, distributed tracing, and structured
// logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kgmemory metrics.
const meterName = "github.com/anthropic-labs/kgmemory"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per component ---

	// GraphOpDuration tracks backend graph operation latency (create, read,
	// update, delete, traversal). Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	GraphOpDuration metric.Float64Histogram

	// EmbeddingJobDuration tracks embedding job execution latency, from
	// dequeue to result write-back.
	EmbeddingJobDuration metric.Float64Histogram

	// SearchStrategyDuration tracks hybrid search planner latency. Use with
	// attribute.String("strategy", "graph"|"vector"|"hybrid").
	SearchStrategyDuration metric.Float64Histogram

	// AnalyticsDuration tracks analytics kernel computation latency. Use
	// with attribute.String("kernel", "stats"|"node"|"path").
	AnalyticsDuration metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts backend adapter calls. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("op", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// EmbeddingJobsEnqueued counts embedding jobs submitted to the queue,
	// including coalesced priority upgrades.
	EmbeddingJobsEnqueued metric.Int64Counter

	// EmbeddingJobsCompleted counts embedding jobs that finished, by
	// attribute.String("status", "ok"|"failed"|"cancelled").
	EmbeddingJobsCompleted metric.Int64Counter

	// CacheHits and CacheMisses count result-cache lookups.
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// --- Error counters ---

	// BackendErrors counts backend adapter errors. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("op", ...)
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// EmbeddingQueueDepth tracks the number of jobs currently queued or
	// in flight in the embedding job manager.
	EmbeddingQueueDepth metric.Int64UpDownCounter

	// ActiveSearches tracks the number of in-flight hybrid search requests.
	ActiveSearches metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) suited to
// storage-engine operation latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.GraphOpDuration, err = m.Float64Histogram("kgmemory.graph.op.duration",
		metric.WithDescription("Latency of backend graph operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingJobDuration, err = m.Float64Histogram("kgmemory.embedding.job.duration",
		metric.WithDescription("Latency of embedding job execution, dequeue to write-back."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchStrategyDuration, err = m.Float64Histogram("kgmemory.search.strategy.duration",
		metric.WithDescription("Latency of hybrid search planner strategies."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalyticsDuration, err = m.Float64Histogram("kgmemory.analytics.duration",
		metric.WithDescription("Latency of analytics kernel computations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("kgmemory.backend.requests",
		metric.WithDescription("Total backend adapter calls by backend, op, and status."),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingJobsEnqueued, err = m.Int64Counter("kgmemory.embedding.jobs.enqueued",
		metric.WithDescription("Total embedding jobs enqueued, including priority-coalesced upgrades."),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingJobsCompleted, err = m.Int64Counter("kgmemory.embedding.jobs.completed",
		metric.WithDescription("Total embedding jobs completed by status."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("kgmemory.cache.hits",
		metric.WithDescription("Total result-cache hits."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("kgmemory.cache.misses",
		metric.WithDescription("Total result-cache misses."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BackendErrors, err = m.Int64Counter("kgmemory.backend.errors",
		metric.WithDescription("Total backend adapter errors by backend and op."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.EmbeddingQueueDepth, err = m.Int64UpDownCounter("kgmemory.embedding.queue_depth",
		metric.WithDescription("Number of embedding jobs queued or in flight."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSearches, err = m.Int64UpDownCounter("kgmemory.active_searches",
		metric.WithDescription("Number of in-flight hybrid search requests."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBackendRequest is a convenience method that records a backend
// request counter increment with the standard attribute set.
func (m *Metrics) RecordBackendRequest(ctx context.Context, backend, op, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordEmbeddingJobCompleted is a convenience method that records an
// embedding job completion counter increment.
func (m *Metrics) RecordEmbeddingJobCompleted(ctx context.Context, status string) {
	m.EmbeddingJobsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, backend, op string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("op", op),
		),
	)
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if hit {
		m.CacheHits.Add(ctx, 1)
		return
	}
	m.CacheMisses.Add(ctx, 1)
}
