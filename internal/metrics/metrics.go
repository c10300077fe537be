// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/sentio/internal/vectorindex"
)

const namespace = "sentio"

var (
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "messages_processed_total",
			Help:      "Messages run through the enrichment pipeline, by outcome",
		},
		[]string{"status"},
	)

	// EnrichmentDegraded counts enrichment steps that fell back to an empty value.
	EnrichmentDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "enrichment_degraded_total",
			Help:      "Enrichment steps that failed soft",
		},
		[]string{"step"},
	)

	ProductsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "products_created_total",
			Help:      "Product creation attempts, by outcome",
		},
		[]string{"status"},
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "failures_total",
			Help:      "Failed text provider calls, by operation",
		},
		[]string{"op"},
	)

	IndexWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "writes_total",
			Help:      "Vector index writes, by result",
		},
		[]string{"result"},
	)

	IndexAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "available",
			Help:      "1 while the vector index is available, 0 once degraded",
		},
	)

	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Semantic search requests, by result",
		},
		[]string{"result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveIndexState is a vectorindex.StateObserver that drives IndexAvailable.
func ObserveIndexState(s vectorindex.State) {
	if s == vectorindex.Available {
		IndexAvailable.Set(1)
		return
	}
	IndexAvailable.Set(0)
}

// ProviderFailed is a provider failure hook.
func ProviderFailed(op string) {
	ProviderFailures.WithLabelValues(op).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
