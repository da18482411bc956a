// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journey_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "journey_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	// Journeys
	JourneyResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journey_resolutions_total",
			Help: "Journey resolutions by mode and result",
		},
		[]string{"mode", "result"}, // mode: default, personalized
	)

	OverlayInjectedSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journey_overlay_injected_steps_total",
			Help: "Default steps injected by the overlay completeness closure",
		},
	)

	GraphCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journey_graph_cache_lookups_total",
			Help: "Graph cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	// Scoring
	ScoringDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journey_scoring_drops_total",
			Help: "Items dropped from a ranking because scoring failed",
		},
		[]string{"stage"}, // leaf, session
	)

	// Sessions
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journey_sessions_started_total",
			Help: "Recommendation sessions started by intention type",
		},
		[]string{"intention_type"},
	)

	SessionRecommendations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "journey_session_recommendations",
			Help:    "Number of recommendations returned per session",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 20},
		},
	)

	FeedbackRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journey_feedback_recorded_total",
			Help: "Feedback updates by accepted flag",
		},
		[]string{"accepted"},
	)

	SessionsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journey_sessions_completed_total",
			Help: "Sessions moved from active to completed",
		},
	)

	// Recalculation
	RecalcOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journey_recalc_items_total",
			Help: "Relevance recalculation items by outcome",
		},
		[]string{"outcome"}, // updated, unchanged, skipped, failed
	)

	RecalcDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "journey_recalc_duration_seconds",
			Help:    "Duration of relevance recalculation batches",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordJourney records one journey resolution.
func RecordJourney(mode, result string, injected int) {
	JourneyResolutions.WithLabelValues(mode, result).Inc()
	if injected > 0 {
		OverlayInjectedSteps.Add(float64(injected))
	}
}

func RecordGraphCache(hit bool) {
	if hit {
		GraphCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	GraphCacheLookups.WithLabelValues("miss").Inc()
}

func RecordScoringDrop(stage string) {
	ScoringDrops.WithLabelValues(stage).Inc()
}

// RecordSessionStarted records a new session and the size of its result set.
func RecordSessionStarted(intentionType string, recommendations int) {
	SessionsStarted.WithLabelValues(intentionType).Inc()
	SessionRecommendations.Observe(float64(recommendations))
}

func RecordFeedback(accepted bool) {
	if accepted {
		FeedbackRecorded.WithLabelValues("true").Inc()
		return
	}
	FeedbackRecorded.WithLabelValues("false").Inc()
}

// RecordRecalc records the outcome counts of one batch.
func RecordRecalc(updated, unchanged, skipped, failed int, duration time.Duration) {
	RecalcOutcomes.WithLabelValues("updated").Add(float64(updated))
	RecalcOutcomes.WithLabelValues("unchanged").Add(float64(unchanged))
	RecalcOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	RecalcOutcomes.WithLabelValues("failed").Add(float64(failed))
	RecalcDuration.Observe(duration.Seconds())
}
