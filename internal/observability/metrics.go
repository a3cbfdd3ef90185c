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

// Metrics stores Prometheus collectors used by the API and the push dispatcher.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	dispatchCyclesTotal  *prometheus.CounterVec
	deliveriesTotal      *prometheus.CounterVec
	subscriptionsPruned  prometheus.Counter
	dispatchDuration     prometheus.Histogram
	deliveryDuration     *prometheus.HistogramVec
	webhookEventsTotal   *prometheus.CounterVec
	subscriptionOpsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storybird",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "storybird",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		dispatchCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storybird",
				Name:      "push_dispatch_cycles_total",
				Help:      "Total number of push dispatch cycles grouped by trigger.",
			},
			[]string{"trigger"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storybird",
				Name:      "push_deliveries_total",
				Help:      "Total number of push delivery attempts grouped by outcome.",
			},
			[]string{"outcome"},
		),
		subscriptionsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "storybird",
				Name:      "push_subscriptions_pruned_total",
				Help:      "Total number of subscriptions removed after a permanent delivery failure.",
			},
		),
		dispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "storybird",
				Name:      "push_dispatch_duration_seconds",
				Help:      "Duration of a complete dispatch cycle in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "storybird",
				Name:      "push_delivery_duration_seconds",
				Help:      "Duration of a single delivery attempt grouped by outcome.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"outcome"},
		),
		webhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storybird",
				Name:      "webhook_events_total",
				Help:      "Total number of inbound media webhook events grouped by result.",
			},
			[]string{"result"},
		),
		subscriptionOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storybird",
				Name:      "push_subscription_operations_total",
				Help:      "Total number of subscribe and unsubscribe requests grouped by operation and result.",
			},
			[]string{"operation", "result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dispatchCyclesTotal,
		m.deliveriesTotal,
		m.subscriptionsPruned,
		m.dispatchDuration,
		m.deliveryDuration,
		m.webhookEventsTotal,
		m.subscriptionOpsTotal,
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

func (m *Metrics) IncDispatchCycle(trigger string) {
	if m == nil {
		return
	}
	m.dispatchCyclesTotal.WithLabelValues(normalizeLabel(trigger)).Inc()
}

func (m *Metrics) ObserveDelivery(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.deliveriesTotal.WithLabelValues(label).Inc()
	m.deliveryDuration.WithLabelValues(label).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) AddPruned(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.subscriptionsPruned.Add(float64(count))
}

func (m *Metrics) ObserveDispatchDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncWebhookEvent(result string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) IncSubscriptionOp(operation string, result string) {
	if m == nil {
		return
	}
	m.subscriptionOpsTotal.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
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

func nonNegativeSeconds(duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
