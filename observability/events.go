package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured engine events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "indexed_total",
				Help:      "Count of indexed engine events segmented by type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Count of events the indexer failed to persist segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordIndexed increments the indexed counter for the event type.
func (m *eventMetrics) RecordIndexed(kind string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(normalizeType(kind)).Inc()
}

// RecordDropped increments the dropped counter for the event type.
func (m *eventMetrics) RecordDropped(kind string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeType(kind)).Inc()
}

func normalizeType(kind string) string {
	normalized := strings.TrimSpace(strings.ToLower(kind))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
