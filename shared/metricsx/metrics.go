package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by service, method, path and status code.",
		},
		[]string{"service", "method", "path", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by service, method and path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	incidentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_created_total",
			Help: "Incidents accepted by the ingestion pipeline, by type.",
		},
		[]string{"incident_type"},
	)

	cameraMatchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "camera_match_failures_total",
			Help: "Incident creations that completed without camera coverage data.",
		},
	)

	broadcastDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_dropped_total",
			Help: "Messages dropped because a subscriber buffer was full.",
		},
		[]string{"channel"},
	)

	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_active_subscriptions",
			Help: "Open stream subscriptions on the in-process hub.",
		},
	)

	spatialQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spatial_query_duration_seconds",
			Help:    "Spatial query latency by operation.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
		[]string{"operation"},
	)

	influxWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Failed telemetry point writes.",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		incidentsCreatedTotal,
		cameraMatchFailuresTotal,
		broadcastDroppedTotal,
		activeSubscriptions,
		spatialQueryDuration,
		influxWriteFailuresTotal,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveHTTPRequest(service, method, path string, statusCode int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(service, method, path, strconv.Itoa(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

func IncIncidentsCreated(incidentType string) {
	incidentsCreatedTotal.WithLabelValues(incidentType).Inc()
}

func IncCameraMatchFailures() {
	cameraMatchFailuresTotal.Inc()
}

func IncBroadcastDropped(channel string) {
	broadcastDroppedTotal.WithLabelValues(channel).Inc()
}

func SetActiveSubscriptions(n int) {
	activeSubscriptions.Set(float64(n))
}

func ObserveSpatialQuery(operation string, duration time.Duration) {
	spatialQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func IncInfluxWriteFailures() {
	influxWriteFailuresTotal.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Instrument records request count and latency for every request passing
// through. Path label uses the raw URL path; route cardinality is bounded by
// the mux patterns in front of it.
func Instrument(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		ObserveHTTPRequest(service, r.Method, r.URL.Path, rec.statusCode, time.Since(start))
	})
}
