package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type simMetrics struct {
	ticks           prometheus.Counter
	advanceDuration prometheus.Histogram
	actionsApplied  *prometheus.CounterVec
	actionsRejected *prometheus.CounterVec
	events          *prometheus.CounterVec
}

var (
	simMetricsOnce sync.Once
	simRegistry    *simMetrics
)

// Sim returns the lazily-initialised metrics registry for the simulation
// core.
func Sim() *simMetrics {
	simMetricsOnce.Do(func() {
		simRegistry = &simMetrics{
			ticks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "darkgrid",
				Subsystem: "tick",
				Name:      "advances_total",
				Help:      "Total tick advances committed.",
			}),
			advanceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "darkgrid",
				Subsystem: "tick",
				Name:      "advance_duration_seconds",
				Help:      "Latency distribution of tick advancement.",
				Buckets:   prometheus.DefBuckets,
			}),
			actionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "darkgrid",
				Subsystem: "actions",
				Name:      "applied_total",
				Help:      "Actions applied during advances segmented by type.",
			}, []string{"type"}),
			actionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "darkgrid",
				Subsystem: "actions",
				Name:      "rejected_total",
				Help:      "Actions rejected at enqueue segmented by reason.",
			}, []string{"reason"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "darkgrid",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Events published to the broadcaster segmented by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			simRegistry.ticks,
			simRegistry.advanceDuration,
			simRegistry.actionsApplied,
			simRegistry.actionsRejected,
			simRegistry.events,
		)
	})
	return simRegistry
}

// RecordTickAdvance notes one committed advance and its duration.
func (m *simMetrics) RecordTickAdvance(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.advanceDuration.Observe(d.Seconds())
}

// RecordActionApplied increments the applied counter for an action type.
func (m *simMetrics) RecordActionApplied(actionType string) {
	if m == nil {
		return
	}
	m.actionsApplied.WithLabelValues(normalizeLabel(actionType)).Inc()
}

// RecordActionRejected increments the rejected counter for a reason.
func (m *simMetrics) RecordActionRejected(reason string) {
	if m == nil {
		return
	}
	m.actionsRejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// RecordEventPublished increments the published-event counter for a kind.
func (m *simMetrics) RecordEventPublished(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(v string) string {
	normalized := strings.TrimSpace(strings.ToLower(v))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
