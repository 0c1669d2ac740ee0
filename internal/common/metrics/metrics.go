package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_transitions_total",
			Help: "Interview transition attempts by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	TransitionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "interview_transitions_in_flight",
			Help: "Transitions currently waiting on the record store",
		},
	)

	ListingLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_listing_loads_total",
			Help: "Employer interview listing loads by outcome",
		},
		[]string{"outcome"},
	)

	ListingJobFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_listing_job_fetch_failures_total",
			Help: "Per-job application fetches that failed and were degraded to empty",
		},
	)

	ListingEntries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "interview_listing_entries",
			Help:    "Number of interview entries returned per listing load",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

// Outcome labels.
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeRejected   = "rejected"
	OutcomeStoreError = "store_error"
)
