// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	actionsTotalCounter      *prometheus.CounterVec
	undoTotalCounter         prometheus.Counter
	redoTotalCounter         prometheus.Counter
	mutationDurationMetric   prometheus.Histogram
	replayedActionsMetric    prometheus.Histogram
	eventsPublishedCounter   *prometheus.CounterVec
	eventsDroppedCounter     prometheus.Counter
	activeSessionsGauge      prometheus.Gauge
	sessionDurationMetric    prometheus.Histogram
	mutationConflictsCounter prometheus.Counter
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		actionsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "board_actions_total",
				Help: "Total number of applied board actions by kind.",
			},
			[]string{"kind"},
		)

		undoTotalCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "board_undo_total",
				Help: "Total number of undo operations (no-ops included).",
			},
		)

		redoTotalCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "board_redo_total",
				Help: "Total number of redo operations (no-ops included).",
			},
		)

		mutationDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "board_mutation_duration_seconds",
				Help:    "Duration of apply/undo/redo calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		replayedActionsMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "board_replayed_actions",
				Help:    "Number of log actions folded per snapshot recompute.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		)

		eventsPublishedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "board_events_published_total",
				Help: "Total number of events published to the fan-out broker by topic.",
			},
			[]string{"topic"},
		)

		eventsDroppedCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "board_events_dropped_total",
				Help: "Total number of events dropped for slow subscribers.",
			},
		)

		activeSessionsGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "board_active_sessions",
				Help: "Number of currently open transport sessions.",
			},
		)

		sessionDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "board_session_duration_seconds",
				Help:    "Lifetime of closed transport sessions in seconds.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		)

		mutationConflictsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "board_mutation_conflicts_total",
				Help: "Total number of optimistic-concurrency conflicts during persist.",
			},
		)

		prometheus.MustRegister(
			actionsTotalCounter,
			undoTotalCounter,
			redoTotalCounter,
			mutationDurationMetric,
			replayedActionsMetric,
			eventsPublishedCounter,
			eventsDroppedCounter,
			activeSessionsGauge,
			sessionDurationMetric,
			mutationConflictsCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, kind := range []domain.ActionKind{
			domain.ActionAdd,
			domain.ActionUpdate,
			domain.ActionRemove,
			domain.ActionClear,
			domain.ActionSync,
		} {
			actionsTotalCounter.WithLabelValues(string(kind))
		}

		for _, topic := range domain.AllTopics() {
			eventsPublishedCounter.WithLabelValues(string(topic))
		}
	})
}

func IncAction(kind string) {
	Init()
	actionsTotalCounter.WithLabelValues(kind).Inc()
}

func IncUndo() {
	Init()
	undoTotalCounter.Inc()
}

func IncRedo() {
	Init()
	redoTotalCounter.Inc()
}

func ObserveMutationDuration(d time.Duration) {
	Init()
	mutationDurationMetric.Observe(d.Seconds())
}

func ObserveReplayedActions(n int) {
	Init()
	replayedActionsMetric.Observe(float64(n))
}

func IncEventPublished(topic string) {
	Init()
	eventsPublishedCounter.WithLabelValues(topic).Inc()
}

func IncEventDropped() {
	Init()
	eventsDroppedCounter.Inc()
}

func SessionOpened() {
	Init()
	activeSessionsGauge.Inc()
}

func SessionClosed(lifetime time.Duration) {
	Init()
	activeSessionsGauge.Dec()
	sessionDurationMetric.Observe(lifetime.Seconds())
}

func IncMutationConflict() {
	Init()
	mutationConflictsCounter.Inc()
}
