// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal              *prometheus.CounterVec
	jobsTotal               *prometheus.CounterVec
	fetchesInFlight         prometheus.Gauge
	admissionWaitSeconds    prometheus.Histogram
	politenessDelaySeconds  prometheus.Histogram
	cacheWritesTotal        *prometheus.CounterVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once and every
// Observe function calls it.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawl_pages_total",
				Help: "Pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawl_jobs_total",
				Help: "Crawl jobs that reached a terminal state, labeled by state.",
			},
			[]string{"state"},
		)

		fetchesInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitecrawl_fetches_in_flight",
				Help: "Page fetches currently holding an admission slot.",
			},
		)

		admissionWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitecrawl_admission_wait_seconds",
				Help:    "Time spent waiting for an admission slot.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 15, 60},
			},
		)

		politenessDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitecrawl_politeness_delay_seconds",
				Help:    "Per-domain delay scheduled after each fetch.",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30, 60},
			},
		)

		cacheWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawl_cache_writes_total",
				Help: "Result cache writes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one fetched page.
func ObservePage(pageURL, status string) {
	Init()
	pagesTotal.WithLabelValues(SanitizeSite(pageURL), status).Inc()
}

// ObserveJob counts a job reaching a terminal state.
func ObserveJob(state string) {
	Init()
	jobsTotal.WithLabelValues(state).Inc()
}

func IncInFlight() {
	Init()
	fetchesInFlight.Inc()
}

func DecInFlight() {
	Init()
	fetchesInFlight.Dec()
}

// ObserveAdmissionWait records how long a fetch waited for its slot.
func ObserveAdmissionWait(d time.Duration) {
	Init()
	admissionWaitSeconds.Observe(d.Seconds())
}

// ObservePolitenessDelay records a delay scheduled for a domain.
func ObservePolitenessDelay(d time.Duration) {
	Init()
	politenessDelaySeconds.Observe(d.Seconds())
}

// ObserveCacheWrite counts a cache write; ok=false counts a failure.
func ObserveCacheWrite(ok bool) {
	Init()
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	cacheWritesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
