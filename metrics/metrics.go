package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the MLM engine's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mlm",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlm",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mlm",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	placements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlm",
			Name:      "placements_total",
			Help:      "Placement attempts by result kind.",
		},
		[]string{"result"},
	)

	placementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mlm",
			Name:      "placement_duration_seconds",
			Help:      "Duration of placement transactions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	commissionPostings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlm",
			Name:      "commission_postings_total",
			Help:      "Commission postings by result kind.",
		},
		[]string{"result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlm",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Report cache lookups by view and outcome.",
		},
		[]string{"view", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		placements,
		placementDuration,
		commissionPostings,
		cacheLookups,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request count, latency and in-flight requests, labelled
// by the matched route template rather than the raw path.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}
			start := time.Now()
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := strings.ToUpper(c.Request().Method)
			httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Response().Status)).Inc()
			httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// RecordPlacement counts a placement attempt. result is "ok" or an error kind.
func RecordPlacement(result string, duration time.Duration) {
	placements.WithLabelValues(result).Inc()
	if duration > 0 {
		placementDuration.Observe(duration.Seconds())
	}
}

// RecordCommissionPosting counts one ancestor posting. result is "posted" or an error kind.
func RecordCommissionPosting(result string) {
	commissionPostings.WithLabelValues(result).Inc()
}

// RecordCacheLookup counts a report cache hit, miss or error.
func RecordCacheLookup(view, outcome string) {
	cacheLookups.WithLabelValues(view, outcome).Inc()
}
