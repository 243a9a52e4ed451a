// Package metrics provides Prometheus metrics for the sync relay.
package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	activeConnections  prometheus.Gauge
	connectedTenants   prometheus.Gauge
	broadcastsTotal    prometheus.Counter
	broadcastFailures  prometheus.Counter
	framesDropped      *prometheus.CounterVec
	syncChangesApplied prometheus.Counter
	syncChangesSkipped prometheus.Counter
	healthStatus       prometheus.Gauge
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// NewMetrics creates and registers the relay metrics. Registration with the
// default registry happens once per process; later calls return the same
// instance.
func NewMetrics() *Metrics {
	globalMetricsOnce.Do(registerGlobalMetrics)
	return globalMetrics
}

func registerGlobalMetrics() {
	globalMetrics = &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_relay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_relay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path", "status"},
		),
		activeConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sync_relay_active_connections",
				Help: "Number of live device connections",
			},
		),
		connectedTenants: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sync_relay_connected_restaurants",
				Help: "Number of restaurants with at least one live connection",
			},
		),
		broadcastsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_relay_broadcasts_total",
				Help: "Total number of fan-out broadcasts issued",
			},
		),
		broadcastFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_relay_broadcast_send_failures_total",
				Help: "Total number of per-connection send failures during broadcast",
			},
		),
		framesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_relay_frames_dropped_total",
				Help: "Total number of inbound socket frames dropped",
			},
			[]string{"reason"},
		),
		syncChangesApplied: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_relay_sync_changes_applied_total",
				Help: "Total number of changes applied via the sync endpoint",
			},
		),
		syncChangesSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_relay_sync_changes_skipped_total",
				Help: "Total number of sync changes skipped for unknown data types or missing ids",
			},
		),
		healthStatus: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sync_relay_health_status",
				Help: "Health status of the relay (1 = healthy, 0 = unhealthy)",
			},
		),
	}
}

// RecordHTTPRequest records metrics for one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// SetConnectionCounts updates the live connection gauges.
func (m *Metrics) SetConnectionCounts(restaurants, connections int) {
	m.connectedTenants.Set(float64(restaurants))
	m.activeConnections.Set(float64(connections))
}

// RecordBroadcast records one fan-out with the number of failed sends.
func (m *Metrics) RecordBroadcast(failures int) {
	m.broadcastsTotal.Inc()
	m.broadcastFailures.Add(float64(failures))
}

// RecordFrameDropped records a dropped inbound frame.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

// RecordSyncChange records the outcome of one change in a sync batch.
func (m *Metrics) RecordSyncChange(applied bool) {
	if applied {
		m.syncChangesApplied.Inc()
	} else {
		m.syncChangesSkipped.Inc()
	}
}

// SetHealthStatus sets the health gauge.
func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

// Server exposes the Prometheus metrics endpoint on its own listener.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates the metrics server.
func NewServer(port int, path string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (s *Server) Start() error {
	s.logger.Info("starting metrics server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Middleware records request metrics around an HTTP handler.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes the underlying connection through so WebSocket upgrades work
// behind the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
