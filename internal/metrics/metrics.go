package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Item outcome labels.
const (
	ItemFetched     = "fetched"
	ItemUnavailable = "unavailable"
	ItemSoldOut     = "sold_out"
	ItemFailed      = "failed"
)

// Metrics bundles Prometheus collectors for the catalog scraper.
type Metrics struct {
	Registry              *prometheus.Registry
	RunsTotal             *prometheus.CounterVec
	RunDuration           prometheus.Histogram
	RetriesTotal          *prometheus.CounterVec
	ItemsTotal            *prometheus.CounterVec
	CacheHitsTotal        prometheus.Counter
	PaginationClicksTotal prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_runs_total",
			Help: "Category scrape runs by outcome.",
		},
		[]string{"outcome"},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_run_duration_seconds",
			Help:    "Wall time of a category scrape including retries.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_retries_total",
			Help: "Retry attempts scheduled, by operation.",
		},
		[]string{"operation"},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_items_total",
			Help: "Listing entries processed, by result.",
		},
		[]string{"result"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_fetch_cache_hits_total",
			Help: "Product links answered from the per-run cache.",
		},
	)
	clicks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_pagination_clicks_total",
			Help: "Load more triggers issued while expanding the grid.",
		},
	)

	registry.MustRegister(runs, runDuration, retries, items, cacheHits, clicks)

	return &Metrics{
		Registry:              registry,
		RunsTotal:             runs,
		RunDuration:           runDuration,
		RetriesTotal:          retries,
		ItemsTotal:            items,
		CacheHitsTotal:        cacheHits,
		PaginationClicksTotal: clicks,
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// IncRetry increments the retries counter for operation.
func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// IncItem increments the items counter for result.
func (m *Metrics) IncItem(result string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) IncPaginationClick() {
	if m == nil {
		return
	}
	m.PaginationClicksTotal.Inc()
}
