package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_jobs_enqueued_total",
		Help: "Total number of jobs enqueued, by quality class.",
	}, []string{"quality"})
	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_jobs_completed_total",
		Help: "Total number of successfully completed jobs, by quality class.",
	}, []string{"quality"})
	JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_jobs_failed_total",
		Help: "Total number of worker-reported synthesis failures, by quality class.",
	}, []string{"quality"})
	JobsTimedOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tts_jobs_timed_out_total",
		Help: "Total number of synchronous requests that exceeded their job timeout.",
	})
	JobProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tts_job_processing_duration_seconds",
		Help:    "Histogram of end-to-end synthesis durations, by quality class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"quality"})
	QueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tts_queue_length",
		Help: "Current length of a quality class's job queue.",
	}, []string{"quality"})
	CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tts_engine_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open.",
	})
	CircuitBreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tts_engine_circuit_breaker_trips_total",
		Help: "Count of times the synthesis-engine circuit breaker opened.",
	})
	WorkersActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tts_workers_active",
		Help: "Number of active (heartbeating) workers, by quality class.",
	}, []string{"quality"})
	CredentialRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_credential_gate_rejections_total",
		Help: "Requests rejected by the credential gate, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		JobsEnqueued, JobsCompleted, JobsFailed, JobsTimedOut,
		JobProcessingDuration, QueueLength, CircuitBreakerState,
		CircuitBreakerTrips, WorkersActive, CredentialRejections,
	)
}
