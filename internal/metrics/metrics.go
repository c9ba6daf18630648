package metrics

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
			Name: "startrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "startrack_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	calculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "startrack_calculations_total",
			Help: "Trajectory calculations by outcome (visible, not_visible, error).",
		},
		[]string{"outcome"},
	)

	calculationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "startrack_calculation_duration_seconds",
			Help:    "Trajectory calculation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	deviceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "startrack_device_requests_total",
			Help: "Device calls by operation and outcome (ok, rejected, unreachable, offline).",
		},
		[]string{"op", "outcome"},
	)

	deviceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "startrack_device_request_duration_seconds",
			Help:    "Device call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	tleDatasetAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "startrack_tle_dataset_age_seconds",
			Help: "Age of the loaded TLE dataset in seconds.",
		},
	)

	tleDatasetSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "startrack_tle_dataset_satellites",
			Help: "Number of satellites in the loaded TLE dataset.",
		},
	)

	scheduleBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "startrack_schedule_builds_total",
			Help: "Pass schedule builds by outcome (ok, error).",
		},
		[]string{"outcome"},
	)

	scheduleBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "startrack_schedule_build_duration_seconds",
			Help:    "Pass schedule build duration in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	schedulePasses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "startrack_schedule_passes",
			Help: "Total passes in the current schedule snapshot.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "startrack_stream_connections_total",
			Help: "Total status stream connections accepted.",
		},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "startrack_streams_active",
			Help: "Currently open status stream connections.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "startrack_stream_errors_total",
			Help: "Status stream errors by kind (limit, write, poll).",
		},
		[]string{"kind"},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "startrack_stream_messages_total",
			Help: "Status stream messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "startrack_stream_bytes_total",
			Help: "Status stream payload bytes sent.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(calculationsTotal)
	prometheus.MustRegister(calculationDuration)
	prometheus.MustRegister(deviceRequestsTotal)
	prometheus.MustRegister(deviceRequestDuration)
	prometheus.MustRegister(tleDatasetAge)
	prometheus.MustRegister(tleDatasetSatellites)
	prometheus.MustRegister(scheduleBuildsTotal)
	prometheus.MustRegister(scheduleBuildDuration)
	prometheus.MustRegister(schedulePasses)
	prometheus.MustRegister(streamConnectionsTotal)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamErrorsTotal)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamBytesTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCalculation records one planner run.
func ObserveCalculation(outcome string, seconds float64) {
	calculationsTotal.WithLabelValues(outcome).Inc()
	calculationDuration.Observe(seconds)
}

// ObserveDeviceRequest records one device call.
func ObserveDeviceRequest(op, outcome string, seconds float64) {
	deviceRequestsTotal.WithLabelValues(op, outcome).Inc()
	deviceRequestDuration.WithLabelValues(op).Observe(seconds)
}

// SetTLEDatasetAge updates the dataset age gauge.
func SetTLEDatasetAge(seconds float64) {
	tleDatasetAge.Set(seconds)
}

// SetTLEDatasetCount updates the dataset size gauge.
func SetTLEDatasetCount(count int) {
	tleDatasetSatellites.Set(float64(count))
}

// ObserveScheduleBuild records one pass schedule build.
func ObserveScheduleBuild(outcome string, seconds float64) {
	scheduleBuildsTotal.WithLabelValues(outcome).Inc()
	scheduleBuildDuration.Observe(seconds)
}

// SetSchedulePasses updates the schedule snapshot size gauge.
func SetSchedulePasses(count int) {
	schedulePasses.Set(float64(count))
}

// IncStreamConnections counts an accepted status stream connection.
func IncStreamConnections() {
	streamConnectionsTotal.Inc()
}

// IncStreamsActive tracks a stream opening.
func IncStreamsActive() {
	streamsActive.Inc()
}

// DecStreamsActive tracks a stream closing.
func DecStreamsActive() {
	streamsActive.Dec()
}

// IncStreamErrors counts a stream error by kind.
func IncStreamErrors(kind string) {
	streamErrorsTotal.WithLabelValues(kind).Inc()
}

// IncStreamMessages counts one sent stream message.
func IncStreamMessages() {
	streamMessagesTotal.Inc()
}

// AddStreamBytes adds sent payload bytes to the stream byte counter.
func AddStreamBytes(n int) {
	streamBytesTotal.Add(float64(n))
}

// knownRoutes are the paths served by this process. Anything else gets one
// shared label so scanners and bots cannot blow up label cardinality.
var knownRoutes = map[string]bool{
	"/":                     true,
	"/app.js":               true,
	"/styles.css":           true,
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/calculate":     true,
	"/api/v1/upload":        true,
	"/api/v1/command":       true,
	"/api/v1/status":        true,
	"/api/v1/passes":        true,
	"/api/v1/stream/status": true,
	"/api/v1/tle/metadata":  true,
	"/api/v1/tle/fetch":     true,
}

func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer through
// this wrapper.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
