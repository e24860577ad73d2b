package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"accordchain/core/events"
	"accordchain/core/types"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed contract events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "accord",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by contract and type.",
			}, []string{"contract", "type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Record increments the counter for the supplied event type. The contract
// label is the type's namespace.
func (m *eventMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	contract := types.Event{Type: normalized}.Contract()
	if contract == "" {
		contract = "unknown"
	}
	m.emitted.WithLabelValues(contract, normalized).Inc()
}

// Emit implements events.Emitter so the registry can sit in an emitter fanout.
func (m *eventMetrics) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	m.Record(evt.EventType())
}
