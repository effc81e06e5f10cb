package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Transition attempts by entity type and outcome",
		},
		[]string{"entity_type", "result"},
	)

	OfferAcceptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_offer_accept_total",
			Help: "Offer acceptance attempts by outcome",
		},
		[]string{"result"},
	)

	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecycle_audit_write_failures_total",
			Help: "Audit events that could not be written",
		},
	)

	AuditEventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_audit_events_consumed_total",
			Help: "Audit events read from Kafka by the auditor, by outcome",
		},
		[]string{"result"},
	)
)

// Register registers all collectors with the default registry.
func Register() {
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(OfferAcceptTotal)
	prometheus.MustRegister(AuditWriteFailures)
	prometheus.MustRegister(AuditEventsConsumed)
}
