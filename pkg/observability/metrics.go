package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Plugin metrics
	PluginLoadsTotal   *prometheus.CounterVec
	PluginLoadDuration *prometheus.HistogramVec

	// Render metrics
	RendersTotal        prometheus.Counter
	PagesRenderedTotal  prometheus.Counter
	RenderDuration      prometheus.Histogram
	LastRenderTimestamp prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics. A nil registry
// gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		PluginLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quire_plugin_loads_total",
				Help: "Total number of plugin load attempts by outcome",
			},
			[]string{"status"},
		),
		PluginLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quire_plugin_load_duration_seconds",
				Help:    "Plugin load duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"status"},
		),

		RendersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quire_renders_total",
				Help: "Total number of completed renders",
			},
		),
		PagesRenderedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quire_pages_rendered_total",
				Help: "Total number of pages written",
			},
		),
		RenderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quire_render_duration_seconds",
				Help:    "Render duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		LastRenderTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quire_last_render_timestamp_seconds",
				Help: "Unix time of the last completed render",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quire_http_requests_total",
				Help: "Total number of preview HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quire_http_request_duration_seconds",
				Help:    "Preview HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(
		m.PluginLoadsTotal,
		m.PluginLoadDuration,
		m.RendersTotal,
		m.PagesRenderedTotal,
		m.RenderDuration,
		m.LastRenderTimestamp,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPluginLoad records the outcome of one plugin load attempt
func (m *Metrics) RecordPluginLoad(status string, duration time.Duration) {
	m.PluginLoadsTotal.WithLabelValues(status).Inc()
	m.PluginLoadDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRender records a completed render
func (m *Metrics) RecordRender(pages int, duration time.Duration) {
	m.RendersTotal.Inc()
	m.PagesRenderedTotal.Add(float64(pages))
	m.RenderDuration.Observe(duration.Seconds())
	m.LastRenderTimestamp.SetToCurrentTime()
}

// WriteTextfile writes the current metrics in the text exposition format,
// for collection by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}
