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

// Metrics stores Prometheus collectors used by the API and the payment flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	paymentsSentTotal   *prometheus.CounterVec
	paymentsFailedTotal *prometheus.CounterVec
	paymentSendDuration *prometheus.HistogramVec
	pendingPayments     *prometheus.GaugeVec
	hookDecisionsTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swapayd",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "swapayd",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		paymentsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swapayd",
				Name:      "payments_sent_total",
				Help:      "Total number of Lightning payments that settled successfully.",
			},
			[]string{"node"},
		),
		paymentsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swapayd",
				Name:      "payments_failed_total",
				Help:      "Total number of Lightning payments that ended in permanent failure.",
			},
			[]string{"node", "reason"},
		),
		paymentSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "swapayd",
				Name:      "payment_send_duration_seconds",
				Help:      "Send call duration in seconds grouped by node backend.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"node"},
		),
		pendingPayments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "swapayd",
				Name:      "pending_payments",
				Help:      "Current number of payments being watched for resolution by node backend.",
			},
			[]string{"node"},
		),
		hookDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swapayd",
				Name:      "hook_decisions_total",
				Help:      "Total number of node selection hook calls grouped by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.paymentsSentTotal,
		m.paymentsFailedTotal,
		m.paymentSendDuration,
		m.pendingPayments,
		m.hookDecisionsTotal,
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

func (m *Metrics) IncPaymentSent(node string) {
	if m == nil {
		return
	}
	m.paymentsSentTotal.WithLabelValues(normalizeNode(node)).Inc()
}

func (m *Metrics) IncPaymentFailed(node string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.paymentsFailedTotal.WithLabelValues(normalizeNode(node), reasonLabel).Inc()
}

func (m *Metrics) ObservePaymentSendDuration(node string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.paymentSendDuration.WithLabelValues(normalizeNode(node)).Observe(seconds)
}

func (m *Metrics) IncPendingPayments(node string) {
	if m == nil {
		return
	}
	m.pendingPayments.WithLabelValues(normalizeNode(node)).Inc()
}

func (m *Metrics) DecPendingPayments(node string) {
	if m == nil {
		return
	}
	m.pendingPayments.WithLabelValues(normalizeNode(node)).Dec()
}

func (m *Metrics) IncHookDecision(outcome string) {
	if m == nil {
		return
	}
	outcomeLabel := strings.TrimSpace(strings.ToLower(outcome))
	if outcomeLabel == "" {
		outcomeLabel = "unknown"
	}
	m.hookDecisionsTotal.WithLabelValues(outcomeLabel).Inc()
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

func normalizeNode(node string) string {
	normalized := strings.ToLower(strings.TrimSpace(node))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
