package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "elqbulk"

var (
	RowSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_submissions_total",
			Help:      "Total number of form submissions attempted, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	RowSubmissionLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "row_submission_latency_seconds",
			Help:      "Wall-clock time of a single form submission (seconds).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of jobs finished, labeled by operation and final status.",
		},
		[]string{"operation", "status"},
	)

	JobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from job start to completion (seconds).",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"operation", "status"},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total number of job completion webhook deliveries, labeled by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests delayed or rejected by a rate limiter.",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(
		RowSubmissionsTotal,
		RowSubmissionLatencySeconds,
		JobsTotal,
		JobDurationSeconds,
		WebhookDeliveriesTotal,
		RateLimitHitsTotal,
	)
}
