package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for turns, capability invocations and
// tool calls. A nil *Metrics records nothing.
type Metrics struct {
	Turns                 *prometheus.CounterVec // Turns by outcome (complete, error)
	TurnDuration          prometheus.Histogram   // Wall time of a turn
	CapabilityInvocations *prometheus.CounterVec // Capability calls by capability and result
	ToolCalls             *prometheus.CounterVec // Executed tool calls by tool, specialists included
}

// NewMetrics creates the collectors and registers them with reg, e.g. the
// global registry or a test registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	turns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sre_turns_total",
		Help: "Total number of coordinator turns by outcome",
	}, []string{"outcome"})

	turnDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sre_turn_duration_seconds",
		Help:    "Duration of coordinator turns",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	capabilityInvocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sre_capability_invocations_total",
		Help: "Total number of specialist invocations by capability and result",
	}, []string{"capability", "result"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sre_tool_calls_total",
		Help: "Total number of executed tool calls by tool",
	}, []string{"tool"})

	reg.MustRegister(turns)
	reg.MustRegister(turnDuration)
	reg.MustRegister(capabilityInvocations)
	reg.MustRegister(toolCalls)

	return &Metrics{
		Turns:                 turns,
		TurnDuration:          turnDuration,
		CapabilityInvocations: capabilityInvocations,
		ToolCalls:             toolCalls,
	}
}

func (m *Metrics) observeTurn(outcome EventType, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(string(outcome)).Inc()
	m.TurnDuration.Observe(d.Seconds())
}

func (m *Metrics) observeCapability(name string, success bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !success {
		result = "error"
	}
	m.CapabilityInvocations.WithLabelValues(name, result).Inc()
}

// ObserveTool counts an executed tool call.
func (m *Metrics) ObserveTool(name string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(name).Inc()
}
