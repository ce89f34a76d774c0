// Package metrics exposes Prometheus collectors for the review-trends service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	extractStepFailuresTotal   *prometheus.CounterVec
	crawlRequestsTotal         *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	analyticsDurationSeconds   prometheus.Histogram
	progressSubscribers        prometheus.Gauge
	robotsFallbacksTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors on the default registry.
// It is safe to call this function multiple times. Observe helpers are no-ops
// until Init has run.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewtrends_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reviewtrends_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		extractStepFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewtrends_extract_step_failures_total",
				Help: "Extraction steps that fell back to their default, labeled by platform and step.",
			},
			[]string{"platform", "step"},
		)

		crawlRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewtrends_crawl_requests_total",
				Help: "Crawl requests handled by workers, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reviewtrends_active_workers",
				Help: "Number of workers currently running a crawl.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reviewtrends_rate_limit_delays_seconds",
				Help:    "Histogram of inter-target rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		analyticsDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reviewtrends_analytics_compute_duration_seconds",
				Help:    "Time spent loading history and computing the analytics report.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		progressSubscribers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reviewtrends_progress_subscribers",
				Help: "Open progress websocket subscriptions.",
			},
		)

		robotsFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewtrends_robots_fallbacks_total",
				Help: "robots.txt fetches that exhausted retries and fell back to allow-all.",
			},
			[]string{"domain"},
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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStepFailure counts an extraction step that kept its default value.
func ObserveStepFailure(platform, step string) {
	if extractStepFailuresTotal == nil {
		return
	}
	extractStepFailuresTotal.WithLabelValues(platform, step).Inc()
}

// ObserveCrawl increments the crawl request counter for the given status.
func ObserveCrawl(status string) {
	if crawlRequestsTotal == nil {
		return
	}
	crawlRequestsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(link string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(SanitizeSite(link)).Observe(duration.Seconds())
}

// ObserveAnalytics records how long one analytics report took.
func ObserveAnalytics(duration time.Duration) {
	if analyticsDurationSeconds == nil {
		return
	}
	analyticsDurationSeconds.Observe(duration.Seconds())
}

// IncSubscribers tracks an opened progress subscription.
func IncSubscribers() {
	if progressSubscribers == nil {
		return
	}
	progressSubscribers.Inc()
}

// DecSubscribers tracks a closed progress subscription.
func DecSubscribers() {
	if progressSubscribers == nil {
		return
	}
	progressSubscribers.Dec()
}

// ObserveRobotsFallback counts a robots.txt fetch served by the allow-all fallback.
func ObserveRobotsFallback(host string) {
	if robotsFallbacksTotal == nil {
		return
	}
	robotsFallbacksTotal.WithLabelValues(SanitizeSite(host)).Inc()
}
