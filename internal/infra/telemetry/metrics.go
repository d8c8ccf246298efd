package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "sessions"
	subsystem = "rotation"
)

// RotationMetrics exposes Prometheus collectors for the rotation engine and
// the audit dispatcher.
type RotationMetrics struct {
	Outcomes      *prometheus.CounterVec
	DroppedEvents prometheus.Counter
}

// NewRotationMetrics constructs and registers the collectors with the provided registerer.
func NewRotationMetrics(reg prometheus.Registerer) (*RotationMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "outcomes_total",
		Help:      "Total number of refresh attempts partitioned by outcome.",
	}, []string{"outcome"})

	if err := reg.Register(outcomes); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				outcomes = existing
			} else {
				return nil, fmt.Errorf("existing outcomes collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register outcomes collector: %w", err)
		}
	}

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "dropped_events_total",
		Help:      "Total number of security events dropped because the dispatcher buffer was full.",
	})

	if err := reg.Register(dropped); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				dropped = existing
			} else {
				return nil, fmt.Errorf("existing dropped collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register dropped collector: %w", err)
		}
	}

	return &RotationMetrics{
		Outcomes:      outcomes,
		DroppedEvents: dropped,
	}, nil
}

// RecordOutcome increments the outcome counter when metrics are attached.
func (m *RotationMetrics) RecordOutcome(outcome string) {
	if m == nil || m.Outcomes == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
}

// RecordDroppedEvent increments the dropped audit event counter.
func (m *RotationMetrics) RecordDroppedEvent() {
	if m == nil || m.DroppedEvents == nil {
		return
	}
	m.DroppedEvents.Inc()
}
