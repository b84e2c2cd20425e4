package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var countJobsInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "count_jobs_in_queue",
	Help: "Number of jobs in queue",
})

var dispatcherSignalCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "dispatcher_signal_count",
	Help: "How often the dispatcher has signaled to start worker",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "active_worker_count",
	Help: "Number of active workers",
})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func IncrementJobsInQueue() {
	countJobsInQueue.Inc()
}

func DecrementJobsInQueue() {
	countJobsInQueue.Dec()
}

func StartDispatcherSignalCount() {
	dispatcherSignalCount.Inc()
}

func IncrementActiveWorkerCount() {
	activeWorkerCount.Inc()
}
func DecrementActiveWorkerCount() {
	activeWorkerCount.Dec()
}

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "process_request_duration_seconds",
	Help:    "Total time spent in ProcessRequest.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30},
}, []string{"status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

func CaptureExecutionMetrics(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureJobMetrics(label string, timeElapsed time.Duration) {
	requestDuration.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

var chunkOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chunk_outcomes_total",
	Help: "Chunk state transitions labelled by provider and resulting status",
}, []string{"provider", "status"})

var RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "provider_rate_limited_total",
	Help: "Throttling signals received per provider",
}, []string{"provider"})

var currentDelay = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "provider_pacing_delay_seconds",
	Help: "Current adaptive delay per rate profile",
}, []string{"profile"})

var geocodingCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "geocoding_calls_total",
	Help: "Geocoding calls labelled by provider and result",
}, []string{"provider", "result"})

var runOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "analysis_runs_total",
	Help: "Finished runs labelled by kind and outcome",
}, []string{"kind", "outcome"})

func CaptureChunkOutcome(provider string, status string) {
	chunkOutcomes.WithLabelValues(provider, status).Inc()
}

func IncrementRateLimited(provider string) {
	RateLimitedTotal.WithLabelValues(provider).Inc()
}

func SetPacingDelay(profile string, d time.Duration) {
	currentDelay.WithLabelValues(profile).Set(d.Seconds())
}

func CaptureGeocodingCall(provider string, result string) {
	geocodingCalls.WithLabelValues(provider, result).Inc()
}

func CaptureRunOutcome(kind string, outcome string) {
	runOutcomes.WithLabelValues(kind, outcome).Inc()
}
