package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Report outcomes.
const (
	// OutcomeCreated labels reports that opened a new ticket.
	OutcomeCreated = "created"
	// OutcomeRecurrence labels reports that commented on an existing ticket.
	OutcomeRecurrence = "recurrence"
	// OutcomeError labels reports rejected by the schema gate or the ticketing backend.
	OutcomeError = "error"
)

// Archive upload outcomes.
const (
	UploadSuccess = "success"
	UploadFailure = "failure"
	UploadSkipped = "skipped"
)

var (
	reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "reports_total",
			Help:      "Failure events handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	pipelineDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "pipeline_seconds",
			Help:      "End-to-end pipeline latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
	)

	archiveUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "archive_uploads_total",
			Help:      "Incident record archive attempts, partitioned by final outcome.",
		},
		[]string{"outcome"},
	)

	dedupLookupErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "dedup_lookup_errors_total",
			Help:      "Dedup lookups that failed open, partitioned by backend.",
		},
		[]string{"backend"},
	)
)

// Register attaches relay collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		reportsTotal,
		pipelineDurationSeconds,
		archiveUploadsTotal,
		dedupLookupErrorsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveReport records a pipeline duration and outcome label.
func ObserveReport(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeCreated, OutcomeRecurrence:
	default:
		outcome = OutcomeError
	}
	reportsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	pipelineDurationSeconds.Observe(duration.Seconds())
}

// ObserveArchiveUpload counts one upload by its final outcome.
func ObserveArchiveUpload(outcome string) {
	archiveUploadsTotal.WithLabelValues(outcome).Inc()
}

// IncDedupLookupError counts a lookup that failed open.
func IncDedupLookupError(backend string) {
	dedupLookupErrorsTotal.WithLabelValues(backend).Inc()
}
