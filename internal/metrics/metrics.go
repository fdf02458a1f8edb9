// Package metrics exposes Prometheus collectors for the harvester.
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
	sourceRequestsTotal          *prometheus.CounterVec
	sourceBytesTotal             *prometheus.CounterVec
	sourceRequestDurationSeconds *prometheus.HistogramVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec
	erasTotal                    *prometheus.CounterVec
	rateLimitDelaysSeconds       *prometheus.HistogramVec
	robotsFallbacksTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourceRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proyectos_source_requests_total",
				Help: "Requests sent to the congress sources, labeled by site, adapter and status code.",
			},
			[]string{"site", "adapter", "code"},
		)

		sourceBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proyectos_source_bytes_total",
				Help: "Bytes received from the congress sources, labeled by site.",
			},
			[]string{"site"},
		)

		sourceRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proyectos_source_request_duration_seconds",
				Help:    "Latency of source requests, labeled by adapter.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"adapter"},
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

		erasTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proyectos_eras_total",
				Help: "Era jobs finished, labeled by mode and result.",
			},
			[]string{"mode", "result"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proyectos_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		robotsFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proyectos_robots_fallbacks_total",
				Help: "robots.txt requests that timed out and were treated as allow-all, labeled by site.",
			},
			[]string{"site"},
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

// ObserveRequest records one request to a congress source. A zero code means
// the request never got a response.
func ObserveRequest(rawURL, adapter string, code int, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	sourceRequestsTotal.WithLabelValues(site, adapter, strconv.Itoa(code)).Inc()
	if bytesFetched > 0 {
		sourceBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	sourceRequestDurationSeconds.WithLabelValues(adapter).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveEra counts a finished era job.
func ObserveEra(mode string, ok bool) {
	Init()
	result := "success"
	if !ok {
		result = "failure"
	}
	erasTotal.WithLabelValues(mode, result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt request answered with the allow-all
// fallback.
func ObserveRobotsFallback(rawURL string) {
	Init()
	robotsFallbacksTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}
