package metrics

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build metrics
var (
	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootcforge_builds_total",
			Help: "Total disk image builds by outcome",
		},
		[]string{"type", "status"},
	)

	BuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bootcforge_build_duration_seconds",
			Help:    "Wall time of a disk image build",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
		[]string{"type"},
	)

	BuildsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bootcforge_builds_active",
			Help: "Number of builds currently running",
		},
		[]string{"engine"},
	)

	BuildProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bootcforge_build_progress",
			Help: "Estimated progress of a running build (0-100)",
		},
		[]string{"build"},
	)

	PodmanOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bootcforge_podman_op_duration_seconds",
			Help:    "Time for podman operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
		},
		[]string{"operation"},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootcforge_events_published_total",
			Help: "Build events synced to NATS",
		},
		[]string{"result"},
	)
)

// API metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootcforge_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bootcforge_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		BuildsTotal,
		BuildDuration,
		BuildsActive,
		BuildProgress,
		PodmanOpDuration,
		EventsPublished,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			HTTPRequestDuration.WithLabelValues(c.Request().Method, c.Path()).
				Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// StartMetricsServer starts a standalone HTTP server serving /metrics on the given address.
func StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("metrics: server stopped: %v", err)
		}
	}()
	return srv
}
