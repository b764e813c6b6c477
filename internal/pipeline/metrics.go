package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scrape pipeline. All
// methods tolerate a nil receiver so tests can run without a registry.
type Metrics struct {
	Registry         *prometheus.Registry
	PagesFetched     *prometheus.CounterVec
	SessionRefreshes *prometheus.CounterVec
	DecodeDegraded   *prometheus.CounterVec
	RecordsSkipped   *prometheus.CounterVec
	ProductsTotal    *prometheus.CounterVec
	RunsFinished     *prometheus.CounterVec
}

// NewMetrics constructs and registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_fetched_total",
			Help: "Pages fetched per platform.",
		},
		[]string{"platform"},
	)
	refreshes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_session_refreshes_total",
			Help: "Session refreshes triggered by stale-session responses.",
		},
		[]string{"platform"},
	)
	degraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_decode_degraded_total",
			Help: "Pages that decoded to zero raw records.",
		},
		[]string{"platform"},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_skipped_total",
			Help: "Raw records dropped for missing identity fields.",
		},
		[]string{"platform"},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_products_total",
			Help: "Products accumulated after dedup.",
		},
		[]string{"platform"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_finished_total",
			Help: "Scrape runs finished, by termination reason.",
		},
		[]string{"platform", "reason"},
	)

	registry.MustRegister(pages, refreshes, degraded, skipped, products, runs)

	return &Metrics{
		Registry:         registry,
		PagesFetched:     pages,
		SessionRefreshes: refreshes,
		DecodeDegraded:   degraded,
		RecordsSkipped:   skipped,
		ProductsTotal:    products,
		RunsFinished:     runs,
	}
}

func (m *Metrics) IncPages(platform string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(platform).Inc()
}

func (m *Metrics) IncRefreshes(platform string) {
	if m == nil {
		return
	}
	m.SessionRefreshes.WithLabelValues(platform).Inc()
}

func (m *Metrics) IncDegraded(platform string) {
	if m == nil {
		return
	}
	m.DecodeDegraded.WithLabelValues(platform).Inc()
}

func (m *Metrics) AddSkipped(platform string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RecordsSkipped.WithLabelValues(platform).Add(float64(n))
}

func (m *Metrics) AddProducts(platform string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ProductsTotal.WithLabelValues(platform).Add(float64(n))
}

func (m *Metrics) IncRuns(platform string, reason TerminationReason) {
	if m == nil {
		return
	}
	m.RunsFinished.WithLabelValues(platform, string(reason)).Inc()
}
