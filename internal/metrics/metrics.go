// Package metrics exposes the bridge's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes recorded on RequestsTotal.
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeUnsupported  = "unsupported"
	OutcomeError        = "error"
)

var (
	// RequestsTotal counts RPC requests routed through the bridge.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "provider_bridge",
		Name:      "requests_total",
		Help:      "RPC requests routed through the bridge, by method and outcome.",
	}, []string{"method", "outcome"})

	// PromptsOpened counts approval prompt windows opened for the operator.
	PromptsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "provider_bridge",
		Name:      "prompts_opened_total",
		Help:      "Approval prompt windows opened.",
	})

	// PromptsPending tracks prompts currently awaiting an operator decision,
	// including requests queued behind the active window.
	PromptsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "provider_bridge",
		Name:      "prompts_pending",
		Help:      "Permission prompts awaiting an operator decision.",
	})

	// Decisions counts resolved prompts by final state.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "provider_bridge",
		Name:      "permission_decisions_total",
		Help:      "Resolved permission prompts, by final state.",
	}, []string{"state"})
)
