package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchOutcomesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "dispatch_outcomes_total",
			Help:      "Total per-contact dispatch outcomes.",
		},
		[]string{"status"}, // SENT, REJECTED, FAILED
	)

	dispatchRunDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "dispatch_run_duration_seconds",
			Help:      "Duration of complete dispatch runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"result"}, // completed, cancelled
	)

	sendDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "send_duration_seconds",
			Help:      "Duration of individual transport send attempts.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"session_id"},
	)

	sessionTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "session_state_transitions_total",
			Help:      "Total session state transitions.",
		},
		[]string{"state"},
	)

	reconnectAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "session_reconnect_attempts_total",
			Help:      "Total automatic reconnection attempts.",
		},
		[]string{"attempt"}, // "1", "2"
	)

	mergedGroupsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "conversation_merged_groups_total",
			Help:      "Total duplicate conversation groups merged.",
		},
	)

	mergeFailedGroupsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "conversation_merge_failed_groups_total",
			Help:      "Total duplicate conversation groups whose merge was abandoned.",
		},
	)
)
