// Package metrics exposes Prometheus collectors for the crawler service.
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
	pagesTotal                 *prometheus.CounterVec
	archiveOutcomesTotal       *prometheus.CounterVec
	archivePenaltiesTotal      prometheus.Counter
	skippedDomainsTotal        prometheus.Counter
	activeWorkers              *prometheus.GaugeVec
	queueDepth                 *prometheus.GaugeVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_pages_total",
				Help: "Pages fetched for link discovery, labeled by site, fetch path and status.",
			},
			[]string{"site", "path", "status"},
		)

		archiveOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_archive_outcomes_total",
				Help: "Archive submissions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		archivePenaltiesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wayback_archive_rate_limit_penalties_total",
				Help: "Times the archive service refused a save for rate limiting.",
			},
		)

		skippedDomainsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wayback_skipped_domains_total",
				Help: "Root domains abandoned after a refused connection.",
			},
		)

		activeWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wayback_active_workers",
				Help: "Number of workers currently running, labeled by phase.",
			},
			[]string{"phase"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wayback_queue_depth",
				Help: "Pending tasks, labeled by queue.",
			},
			[]string{"queue"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wayback_rate_limit_delays_seconds",
				Help:    "Histogram of pacing waits, labeled by limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"limiter"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts a discovery fetch.
func ObservePage(site string, headless bool, status string) {
	Init()
	path := "light"
	if headless {
		path = "headless"
	}
	pagesTotal.WithLabelValues(SanitizeSite(site), path, status).Inc()
}

// ObserveArchiveOutcome counts an archive result.
func ObserveArchiveOutcome(outcome string) {
	Init()
	archiveOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveArchivePenalty counts a rate-limit rejection from the archive service.
func ObserveArchivePenalty() {
	Init()
	archivePenaltiesTotal.Inc()
}

// ObserveSkippedDomain counts an abandoned root domain.
func ObserveSkippedDomain() {
	Init()
	skippedDomainsTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge for phase.
func IncActiveWorkers(phase string) {
	Init()
	activeWorkers.WithLabelValues(phase).Inc()
}

// DecActiveWorkers decrements the active workers gauge for phase.
func DecActiveWorkers(phase string) {
	Init()
	activeWorkers.WithLabelValues(phase).Dec()
}

// SetQueueDepth records the pending size of a queue.
func SetQueueDepth(queue string, depth int) {
	Init()
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(limiter string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(limiter).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
