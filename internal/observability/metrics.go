package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the delivery worker and
// its operational HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	jobsProcessedTotal    *prometheus.CounterVec
	deliveryAttemptsTotal *prometheus.CounterVec
	attemptDuration       *prometheus.HistogramVec
	retryWaitsTotal       *prometheus.CounterVec
	deadLetteredTotal     prometheus.Counter
	jobsInflight          prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_worker",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_worker",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		jobsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_worker",
				Name:      "jobs_processed_total",
				Help:      "Total number of delivery jobs that reached a terminal result.",
			},
			[]string{"result"},
		),
		deliveryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_worker",
				Name:      "delivery_attempts_total",
				Help:      "Total number of channel delivery attempts by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_worker",
				Name:      "attempt_duration_seconds",
				Help:      "Channel adapter attempt duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		retryWaitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_worker",
				Name:      "retry_waits_total",
				Help:      "Total number of backoff waits taken before channel retries.",
			},
			[]string{"channel"},
		),
		deadLetteredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_worker",
				Name:      "dead_lettered_total",
				Help:      "Total number of payloads diverted to the dead-letter queue.",
			},
		),
		jobsInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "notify_worker",
				Name:      "jobs_inflight",
				Help:      "Current number of jobs being dispatched.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.jobsProcessedTotal,
		m.deliveryAttemptsTotal,
		m.attemptDuration,
		m.retryWaitsTotal,
		m.deadLetteredTotal,
		m.jobsInflight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncJobProcessed(result string) {
	if m == nil {
		return
	}
	resultLabel := strings.TrimSpace(strings.ToLower(result))
	if resultLabel == "" {
		resultLabel = "unknown"
	}
	m.jobsProcessedTotal.WithLabelValues(resultLabel).Inc()
}

func (m *Metrics) IncDeliveryAttempt(channel string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if delivered {
		outcome = "success"
	}
	m.deliveryAttemptsTotal.WithLabelValues(normalizeChannel(channel), outcome).Inc()
}

func (m *Metrics) ObserveAttemptDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.attemptDuration.WithLabelValues(normalizeChannel(channel)).Observe(seconds)
}

func (m *Metrics) IncRetryWait(channel string) {
	if m == nil {
		return
	}
	m.retryWaitsTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) IncDeadLettered() {
	if m == nil {
		return
	}
	m.deadLetteredTotal.Inc()
}

func (m *Metrics) IncJobsInFlight() {
	if m == nil {
		return
	}
	m.jobsInflight.Inc()
}

func (m *Metrics) DecJobsInFlight() {
	if m == nil {
		return
	}
	m.jobsInflight.Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeChannel(channel string) string {
	normalized := strings.ToLower(strings.TrimSpace(channel))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
