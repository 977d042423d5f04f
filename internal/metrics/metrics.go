package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.DefaultRegisterer

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by path/method/code.",
		},
		[]string{"path", "method", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by path/method/code.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "code"},
	)

	pickResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draft_pick_results_total",
			Help: "Pick submissions by result and rejection reason.",
		},
		[]string{"result", "reason"},
	)

	saveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draft_save_duration_seconds",
			Help:    "Duration of draft persistence calls by result.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "draft_subscribers",
			Help: "Connected draft channel subscribers.",
		},
	)

	droppedSubscribers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "draft_subscribers_dropped_total",
			Help: "Subscribers dropped because their outbox was full.",
		},
	)

	activeRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "draft_rooms_active",
			Help: "Drafts currently held in memory by a room actor.",
		},
	)
)

// Middleware records request count and latency by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		if path == "/metrics" || strings.HasPrefix(path, "/debug/") {
			return
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		httpRequests.WithLabelValues(path, r.Method, code).Inc()
		httpDuration.WithLabelValues(path, r.Method, code).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePick counts one submission. reason is empty for accepted picks.
func ObservePick(result, reason string) {
	pickResults.WithLabelValues(result, reason).Inc()
}

func ObserveSave(start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	saveDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func AddSubscribers(delta float64) {
	subscribers.Add(delta)
}

func SubscriberDropped() {
	droppedSubscribers.Inc()
}

func AddActiveRooms(delta float64) {
	activeRooms.Add(delta)
}

func init() {
	collectors := []prometheus.Collector{
		httpRequests,
		httpDuration,
		pickResults,
		saveDuration,
		subscribers,
		droppedSubscribers,
		activeRooms,
	}

	for _, c := range collectors {
		_ = registry.Register(c)
	}
}
