package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	contributionsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contributions_submitted_total",
		Help: "Total image contributions accepted for processing",
	})
	contributionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contributions_finished_total",
		Help: "Contributions that reached a terminal status, by status",
	}, []string{"status"})
	contributionRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contribution_retries_total",
		Help: "Retry requests by outcome",
	}, []string{"outcome"})
	extractionAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "extraction_attempts_total",
		Help: "Extraction backend calls by backend and outcome",
	}, []string{"backend", "outcome"})
	extractionFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "extraction_fallbacks_total",
		Help: "Fallbacks to the secondary backend by reason",
	}, []string{"reason"})
	candidatesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "route_candidates_created_total",
		Help: "Route candidates persisted by the pipeline",
	})
	bundlesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "route_bundles_skipped_total",
		Help: "Route bundles dropped during expansion, by reason",
	}, []string{"reason"})
	processingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "contribution_processing_duration_seconds",
		Help:    "Wall time of one processing attempt",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
	poolInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_pool_in_flight",
		Help: "Tasks currently executing in the processing pool",
	})
	poolRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_pool_rejected_total",
		Help: "Tasks rejected by the processing pool, by reason",
	}, []string{"reason"})
	jobsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contribution_jobs_received_total",
		Help: "Queue jobs received by the worker",
	})
	jobsDeletedUnrecoverable = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contribution_jobs_deleted_unrecoverable_total",
		Help: "Queue jobs deleted because they could never be processed",
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		contributionsSubmitted,
		contributionsFinished,
		contributionRetries,
		extractionAttempts,
		extractionFallbacks,
		candidatesCreated,
		bundlesSkipped,
		processingDuration,
		poolInFlight,
		poolRejected,
		jobsReceived,
		jobsDeletedUnrecoverable,
	)
}

// Registry exposes the process registry, mainly for tests.
func Registry() *prometheus.Registry { return registry }

// IncSubmitted increments the accepted-contribution counter.
func IncSubmitted() { contributionsSubmitted.Inc() }

// IncFinished records a contribution reaching a terminal status.
func IncFinished(status string) { contributionsFinished.WithLabelValues(status).Inc() }

// IncRetry records a retry request outcome ("accepted" or "rejected").
func IncRetry(outcome string) { contributionRetries.WithLabelValues(outcome).Inc() }

// IncExtraction records one backend call.
func IncExtraction(backend, outcome string) {
	extractionAttempts.WithLabelValues(backend, outcome).Inc()
}

// IncFallback records a fallback to the secondary backend.
func IncFallback(reason string) { extractionFallbacks.WithLabelValues(reason).Inc() }

// AddCandidates adds n persisted route candidates.
func AddCandidates(n int) {
	if n > 0 {
		candidatesCreated.Add(float64(n))
	}
}

// IncSkippedBundle records a bundle dropped during expansion.
func IncSkippedBundle(reason string) { bundlesSkipped.WithLabelValues(reason).Inc() }

// ObserveProcessing records a processing attempt duration.
func ObserveProcessing(d time.Duration) {
	if d < 0 {
		d = 0
	}
	processingDuration.Observe(d.Seconds())
}

// PoolTaskStarted and PoolTaskDone track in-flight pool tasks.
func PoolTaskStarted() { poolInFlight.Inc() }

// PoolTaskDone decrements the in-flight gauge.
func PoolTaskDone() { poolInFlight.Dec() }

// IncPoolRejected records a rejected submission.
func IncPoolRejected(reason string) { poolRejected.WithLabelValues(reason).Inc() }

// IncJobsReceived counts queue jobs received by the worker.
func IncJobsReceived() { jobsReceived.Inc() }

// IncJobsDeletedUnrecoverable counts poison queue jobs deleted by the worker.
func IncJobsDeletedUnrecoverable() { jobsDeletedUnrecoverable.Inc() }

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
