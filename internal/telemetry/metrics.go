package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallbackOutcomes counts reconciliation outcomes by kind.
	CallbackOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callback_outcomes_total",
		Help: "Reconciliation outcomes of gateway payment callbacks, by outcome kind.",
	}, []string{"kind"})

	// SideEffectFailures counts dropped or failed post-acknowledgement actions.
	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_side_effect_failures_total",
		Help: "Failed or dropped post-acknowledgement side effects, by type.",
	}, []string{"type"})
)
