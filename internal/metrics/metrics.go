package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dsd_neo"

// Trunking counters (incremented by the ingest pipeline as it observes
// state-machine events).
var (
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trunk_events_total",
		Help:      "Inbound signaling events processed, by type.",
	}, []string{"type"})

	DroppedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trunk_events_dropped_total",
		Help:      "Inbound events dropped before processing, by reason.",
	}, []string{"reason"})

	TunesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trunk_tunes_total",
		Help:      "Voice-channel tunes performed.",
	})

	ReleasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trunk_releases_total",
		Help:      "Voice-channel releases, by reason.",
	}, []string{"reason"})

	EncLockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trunk_enc_lockouts_total",
		Help:      "Encryption lockout notifications emitted.",
	})

	HuntAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trunk_hunt_attempts_total",
		Help:      "Control-channel candidate tune attempts while hunting.",
	})

	StateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trunk_state",
		Help:      "Current follower state (1 for the active state, 0 otherwise).",
	}, []string{"state"})
)

// HTTP metrics (incremented by middleware on the status server).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

func init() {
	prometheus.MustRegister(
		EventsTotal,
		DroppedEventsTotal,
		TunesTotal,
		ReleasesTotal,
		EncLockoutsTotal,
		HuntAttemptsTotal,
		StateGauge,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// SetState flips the state gauge so exactly one state label reads 1.
func SetState(current string) {
	for _, s := range []string{"idle", "on_cc", "tuned", "hunting"} {
		v := 0.0
		if s == current {
			v = 1.0
		}
		StateGauge.WithLabelValues(s).Set(v)
	}
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality
// explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
