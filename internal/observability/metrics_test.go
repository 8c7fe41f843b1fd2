package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsWorkerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncJobProcessed("SENT")
	metrics.IncDeliveryAttempt("EMAIL", true)
	metrics.IncDeliveryAttempt("email", false)
	metrics.ObserveAttemptDuration("email", 120*time.Millisecond)
	metrics.IncRetryWait("email")
	metrics.IncDeadLettered()
	metrics.IncJobsInFlight()
	metrics.DecJobsInFlight()

	if got := testutil.ToFloat64(metrics.jobsProcessedTotal.WithLabelValues("sent")); got != 1 {
		t.Fatalf("jobs_processed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveryAttemptsTotal.WithLabelValues("email", "success")); got != 1 {
		t.Fatalf("delivery_attempts_total{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveryAttemptsTotal.WithLabelValues("email", "failure")); got != 1 {
		t.Fatalf("delivery_attempts_total{failure} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryWaitsTotal.WithLabelValues("email")); got != 1 {
		t.Fatalf("retry_waits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deadLetteredTotal); got != 1 {
		t.Fatalf("dead_lettered_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.jobsInflight); got != 0 {
		t.Fatalf("jobs_inflight = %v, want 0", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
