package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dispatchOutcomesTotal counts dispatch pipeline outcomes.
	// Labels:
	// - path:   send | resend | event
	// - result: sent | transport_failed | rejected | persistence_failed
	dispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edrm_mailer",
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Dispatch pipeline outcomes by path and result.",
		},
		[]string{"path", "result"},
	)

	// transportSendsTotal counts transport delivery attempts by provider.
	transportSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edrm_mailer",
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Transport delivery attempts by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// attachmentsResolvedTotal counts per-attachment resolution outcomes.
	// Labels:
	// - strategy: url | file
	// - result:   resolved | skipped
	attachmentsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edrm_mailer",
			Subsystem: "attachments",
			Name:      "resolved_total",
			Help:      "Attachment resolution outcomes by strategy and result.",
		},
		[]string{"strategy", "result"},
	)
)

// IncDispatchOutcome increments the dispatch outcome counter.
func IncDispatchOutcome(path, result string) {
	if path == "" {
		path = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	dispatchOutcomesTotal.WithLabelValues(path, result).Inc()
}

// IncTransportSend increments the transport attempt counter.
func IncTransportSend(provider, result string) {
	if provider == "" {
		provider = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	transportSendsTotal.WithLabelValues(provider, result).Inc()
}

// IncAttachmentResolved increments the attachment resolution counter.
func IncAttachmentResolved(strategy, result string) {
	if strategy == "" {
		strategy = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	attachmentsResolvedTotal.WithLabelValues(strategy, result).Inc()
}
