// Package metrics exposes Prometheus collectors for search, embedding cache
// and index activity. Collectors are registered on an explicit registry so
// that several instances can coexist in one process.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/kraken/pkg/types"
)

const namespace = "kraken"

// Metrics holds all Prometheus collectors for kraken
type Metrics struct {
	registry *prometheus.Registry

	// Search metrics
	SearchTotal    *prometheus.CounterVec
	SearchErrors   *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec
	SearchResults  *prometheus.HistogramVec

	// Embedding cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Index metrics
	IndexWrites  *prometheus.CounterVec
	IndexVectors *prometheus.CounterVec

	// Tool metrics
	ToolExecutionTotal    *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec
}

// New creates the collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SearchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_requests_total",
				Help:      "Total number of façade searches",
			},
			[]string{"entity", "mode"},
		),
		SearchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_errors_total",
				Help:      "Total number of failed façade searches",
			},
			[]string{"entity", "mode"},
		),
		// Buckets: 1ms to 5s
		SearchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Duration of façade searches in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"entity", "mode"},
		),
		SearchResults: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results",
				Help:      "Number of results returned per search",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"entity", "mode"},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cache_hits_total",
				Help:      "Texts served from the embedding cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cache_misses_total",
				Help:      "Texts sent to the embedding provider",
			},
		),

		IndexWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_writes_total",
				Help:      "Vector index builds and appends",
			},
			[]string{"index", "op"},
		),
		IndexVectors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_vectors_written_total",
				Help:      "Vectors written to vector indexes",
			},
			[]string{"index", "op"},
		),

		ToolExecutionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_execution_total",
				Help:      "Total number of MCP tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_execution_duration_seconds",
				Help:      "Duration of MCP tool execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSearch records one façade search
func (m *Metrics) ObserveSearch(entity types.EntityType, mode types.Mode, elapsed time.Duration, results int, err error) {
	labels := prometheus.Labels{"entity": string(entity), "mode": mode.String()}
	m.SearchTotal.With(labels).Inc()
	if err != nil {
		m.SearchErrors.With(labels).Inc()
		return
	}
	m.SearchDuration.With(labels).Observe(elapsed.Seconds())
	m.SearchResults.With(labels).Observe(float64(results))
}

// ObserveCache records embedding cache lookups
func (m *Metrics) ObserveCache(hits, misses int) {
	m.CacheHits.Add(float64(hits))
	m.CacheMisses.Add(float64(misses))
}

// ObserveIndexWrite records a build or append on a vector index
func (m *Metrics) ObserveIndexWrite(name, op string, vectors int) {
	m.IndexWrites.WithLabelValues(name, op).Inc()
	m.IndexVectors.WithLabelValues(name, op).Add(float64(vectors))
}

// RecordToolExecution records one MCP tool call
func (m *Metrics) RecordToolExecution(tool string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ToolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "component", "metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
