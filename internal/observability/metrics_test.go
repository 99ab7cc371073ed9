package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDeliveryCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.RunStarted()
	metrics.ObserveAttempt("recipient_refused", 120*time.Millisecond)
	metrics.IncRetryScheduled()
	metrics.ObserveAttempt("OK", 80*time.Millisecond)
	metrics.IncDelivery("Success")
	metrics.IncDelivery("")
	metrics.RunFinished("COMPLETED")

	if got := testutil.ToFloat64(metrics.deliveryAttemptsTotal.WithLabelValues("recipient_refused")); got != 1 {
		t.Fatalf("delivery_attempts_total{recipient_refused} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveryAttemptsTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("delivery_attempts_total{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveriesTotal.WithLabelValues("success")); got != 1 {
		t.Fatalf("deliveries_total{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveriesTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("deliveries_total{unknown} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal); got != 1 {
		t.Fatalf("retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.runsTotal.WithLabelValues("completed")); got != 1 {
		t.Fatalf("runs_total{completed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.runsInProgress); got != 0 {
		t.Fatalf("runs_in_progress = %v, want 0", got)
	}
}

func TestMetricsNilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.RunStarted()
	metrics.ObserveAttempt("ok", time.Millisecond)
	metrics.IncRetryScheduled()
	metrics.IncDelivery("success")
	metrics.RunFinished("completed")
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
