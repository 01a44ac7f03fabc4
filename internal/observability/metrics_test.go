package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsPaymentCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncPaymentSent("LND")
	metrics.IncPaymentFailed("lnd", "incorrect_payment_details")
	metrics.ObservePaymentSendDuration("lnd", 120*time.Millisecond)
	metrics.IncPendingPayments("cln")
	metrics.DecPendingPayments("cln")
	metrics.IncHookDecision("no_opinion")

	if got := testutil.ToFloat64(metrics.paymentsSentTotal.WithLabelValues("lnd")); got != 1 {
		t.Fatalf("payments_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.paymentsFailedTotal.WithLabelValues("lnd", "incorrect_payment_details")); got != 1 {
		t.Fatalf("payments_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.pendingPayments.WithLabelValues("cln")); got != 0 {
		t.Fatalf("pending_payments = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.hookDecisionsTotal.WithLabelValues("no_opinion")); got != 1 {
		t.Fatalf("hook_decisions_total = %v, want 1", got)
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
