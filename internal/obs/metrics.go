package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	routeDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdesk_route_decisions_total",
			Help: "Route authorization decisions by action and reason.",
		},
		[]string{"action", "reason"},
	)

	sessionResolve = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentdesk_session_resolve_seconds",
			Help:    "Time spent resolving identity and profile per request.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 3},
		},
		[]string{"outcome"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentdesk_provider_breaker_state",
			Help: "Identity provider circuit breaker state (0 closed, 1 half-open, 2 open).",
		},
		[]string{"name"},
	)

	activityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdesk_activity_events_total",
			Help: "Activity events handed to a sink, by sink and result.",
		},
		[]string{"sink", "result"},
	)

	activityDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentdesk_activity_dropped_total",
		Help: "Activity events dropped because the queue was full or closed.",
	})

	metricsOnce sync.Once
)

// Init registers all collectors in the default registry. Subsequent calls are no-ops.
func Init() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			routeDecisions, sessionResolve, breakerState, activityEvents, activityDropped,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests. canonical maps raw paths to
// low-cardinality labels; nil keeps the raw path.
func Instrument(next http.Handler, canonical func(string) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if canonical != nil {
			path = canonical(path)
		}
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// RecordDecision counts one route authorization outcome.
func RecordDecision(action, reason string) {
	if reason == "" {
		reason = "none"
	}
	routeDecisions.WithLabelValues(action, reason).Inc()
}

// ObserveSessionResolve records how long a session resolution took and how it ended.
func ObserveSessionResolve(outcome string, d time.Duration) {
	sessionResolve.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetBreakerState publishes the numeric state of a named circuit breaker.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// ActivityDropped counts one event that never reached a sink.
func ActivityDropped() {
	activityDropped.Inc()
}

// ActivityResult counts an activity event outcome for sink.
func ActivityResult(sink, result string) {
	activityEvents.WithLabelValues(sink, result).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
