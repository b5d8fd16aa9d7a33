package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks pipeline behavior for the /metrics endpoint.
type Metrics struct {
	classifications    *prometheus.CounterVec
	reviewEnqueued     *prometheus.CounterVec
	similarityDegraded prometheus.Counter
	feedbackRecorded   prometheus.Counter
	classifyDuration   prometheus.Histogram
}

// NewMetrics registers pipeline metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docrouter_classifications_total",
			Help: "Routing decisions by confidence band.",
		}, []string{"band"}),
		reviewEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docrouter_review_enqueued_total",
			Help: "Attachments queued for human review by reason.",
		}, []string{"reason"}),
		similarityDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "docrouter_similarity_degraded_total",
			Help: "Classifications that proceeded without the similarity signal.",
		}),
		feedbackRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "docrouter_feedback_recorded_total",
			Help: "Human feedback records ingested.",
		}),
		classifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docrouter_classification_duration_seconds",
			Help:    "End-to-end classification latency per attachment.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
