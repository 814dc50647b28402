// Package metrics exposes Prometheus collectors for the genre analysis service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Callback results recorded by ObserveCallback.
const (
	CallbackDelivered = "delivered"
	CallbackFailed    = "failed"
)

var (
	analysisRunsTotal          *prometheus.CounterVec
	analysisRunDurationSeconds *prometheus.HistogramVec
	callbacksTotal             *prometheus.CounterVec
	genresScoredTotal          prometheus.Counter
	queueRejectionsTotal       prometheus.Counter
	queueDepth                 prometheus.Gauge
	activeWorkers              prometheus.Gauge
	pacingDelaySeconds         prometheus.Histogram
	callbackThrottleSeconds    *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		analysisRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genre_analysis_runs_total",
				Help: "Total number of analysis runs, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		)

		analysisRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "genre_analysis_run_duration_seconds",
				Help:    "Histogram of analysis run durations including the pacing delay.",
				Buckets: []float64{0.1, 1, 5, 7.5, 10, 15, 30, 60},
			},
			[]string{"outcome"},
		)

		callbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genre_analysis_callbacks_total",
				Help: "Total number of callback attempts, labeled by result.",
			},
			[]string{"result"},
		)

		genresScoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "genre_analysis_genres_scored_total",
				Help: "Total number of genre scores computed.",
			},
		)

		queueRejectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "genre_analysis_queue_rejections_total",
				Help: "Total number of triggers rejected because the work queue was full.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "genre_analysis_queue_depth",
				Help: "Number of accepted triggers waiting for a worker.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "genre_analysis_active_workers",
				Help: "Number of workers currently processing a run.",
			},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "genre_analysis_pacing_delay_seconds",
				Help:    "Histogram of the artificial pacing delay applied before scoring.",
				Buckets: []float64{0, 1, 2, 5, 6, 7, 8, 9, 10, 15},
			},
		)

		callbackThrottleSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "genre_analysis_callback_throttle_seconds",
				Help:    "Time callbacks spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records one finished analysis run.
func ObserveRun(outcome string, duration time.Duration) {
	Init()
	analysisRunsTotal.WithLabelValues(outcome).Inc()
	analysisRunDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveCallback records one callback attempt.
func ObserveCallback(delivered bool) {
	Init()
	result := CallbackFailed
	if delivered {
		result = CallbackDelivered
	}
	callbacksTotal.WithLabelValues(result).Inc()
}

// AddGenresScored adds n computed genre scores.
func AddGenresScored(n int) {
	Init()
	if n > 0 {
		genresScoredTotal.Add(float64(n))
	}
}

// ObserveQueueRejection increments the backpressure counter.
func ObserveQueueRejection() {
	Init()
	queueRejectionsTotal.Inc()
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	Init()
	queueDepth.Set(float64(n))
}

// ObservePacingDelay records the pacing delay chosen for a run.
func ObservePacingDelay(d time.Duration) {
	Init()
	pacingDelaySeconds.Observe(d.Seconds())
}

// ObserveCallbackThrottle records how long a callback waited for a rate-limit token.
func ObserveCallbackThrottle(host string, d time.Duration) {
	Init()
	callbackThrottleSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
