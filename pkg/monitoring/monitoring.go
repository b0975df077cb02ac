package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_submissions_total",
			Help: "Quiz submissions by outcome",
		},
		[]string{"outcome"},
	)

	ScorePercentage = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiz_score_percentage",
			Help:    "Distribution of graded submission percentages",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	Violations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_focus_violations_total",
			Help: "Focus-loss violations reported with submissions",
		},
	)
)

var (
	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// Init registers all collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		registry.MustRegister(RequestCounter, RequestDuration, Submissions, ScorePercentage, Violations)
	})
}

// ObserveSubmission records a graded submission.
func ObserveSubmission(percentage, violations int) {
	Submissions.WithLabelValues("graded").Inc()
	ScorePercentage.Observe(float64(percentage))
	if violations > 0 {
		Violations.Add(float64(violations))
	}
}

// ObserveRejected records a submission refused before grading.
func ObserveRejected(reason string) {
	Submissions.WithLabelValues(reason).Inc()
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
