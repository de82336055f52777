package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments of the sync service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SyncRunsTotal       *prometheus.CounterVec
	SyncDuration        prometheus.Histogram
	StageItems          *prometheus.GaugeVec
	ScrapesTotal        *prometheus.CounterVec
	ScrapeDuration      *prometheus.HistogramVec
	LLMCallsTotal       *prometheus.CounterVec
	RetryAttemptsTotal  *prometheus.CounterVec
	GigsTotal           *prometheus.CounterVec
}

// New registers all instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		SyncRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_runs_total",
				Help: "Total number of sync runs by outcome.",
			},
			[]string{"outcome"}, // completed, failed, rejected
		),
		SyncDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gigsync_run_duration_seconds",
				Help:    "Duration of sync runs.",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
		),
		StageItems: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gigsync_stage_items",
				Help: "Items produced by each pipeline stage in the latest run.",
			},
			[]string{"stage"},
		),
		ScrapesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_scrapes_total",
				Help: "Total number of page scrapes.",
			},
			[]string{"status"}, // success, failure
		),
		ScrapeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gigsync_scrape_duration_seconds",
				Help:    "Duration of page scrapes.",
				Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
			},
			[]string{"domain"},
		),
		LLMCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_llm_calls_total",
				Help: "Total number of language model calls.",
			},
			[]string{"operation", "outcome"},
		),
		RetryAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_retry_failed_attempts_total",
				Help: "Failed attempts seen by the backoff executor.",
			},
			[]string{"operation"},
		),
		GigsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_gigs_total",
				Help: "Extracted gigs by storage outcome.",
			},
			[]string{"outcome"}, // created, skipped, failed
		),
	}
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.SyncDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetStageItems(stage string, n int) {
	if m == nil {
		return
	}
	m.StageItems.WithLabelValues(stage).Set(float64(n))
}

func (m *Metrics) ObserveScrape(domain string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.ScrapesTotal.WithLabelValues(status).Inc()
	m.ScrapeDuration.WithLabelValues(domain).Observe(d.Seconds())
}

func (m *Metrics) IncLLMCall(operation string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.LLMCallsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) IncRetryAttempt(operation string) {
	if m == nil {
		return
	}
	m.RetryAttemptsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncGig(outcome string) {
	if m == nil {
		return
	}
	m.GigsTotal.WithLabelValues(outcome).Inc()
}
