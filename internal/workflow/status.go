package workflow

import "go.uber.org/zap"

type EntityType string

const (
	EntityOrder   EntityType = "order"
	EntityDeal    EntityType = "deal"
	EntityDispute EntityType = "dispute"
)

type Status string

// Order
const (
	OrderCreated               Status = "created"
	OrderOfferPending          Status = "offer_pending"
	OrderDealAccepted          Status = "deal_accepted"
	OrderConfirmedBySender     Status = "confirmed_by_sender"
	OrderInDelivery            Status = "in_delivery"
	OrderDelivered             Status = "delivered"
	OrderCompleted             Status = "completed"
	OrderDispute               Status = "dispute"
	OrderForceMajeureCancelled Status = "force_majeure_cancelled"
	OrderCancelled             Status = "cancelled"
	OrderExpired               Status = "expired"
	OrderResolved              Status = "resolved"
)

// Deal
const (
	DealProposed Status = "proposed"
	DealCounter  Status = "counter"
	DealAccepted Status = "accepted"
	DealRejected Status = "rejected"
	DealExpired  Status = "expired"
)

// Dispute
const (
	DisputeOpen        Status = "open"
	DisputeUnderReview Status = "under_review"
	DisputeEscalated   Status = "escalated"
	DisputeResolved    Status = "resolved"
)

// statusSets lists every status an entity type may hold, in lifecycle order.
var statusSets = map[EntityType][]Status{
	EntityOrder: {
		OrderCreated, OrderOfferPending, OrderDealAccepted, OrderConfirmedBySender,
		OrderInDelivery, OrderDelivered, OrderCompleted, OrderDispute,
		OrderForceMajeureCancelled, OrderCancelled, OrderExpired, OrderResolved,
	},
	EntityDeal:    {DealProposed, DealCounter, DealAccepted, DealRejected, DealExpired},
	EntityDispute: {DisputeOpen, DisputeUnderReview, DisputeEscalated, DisputeResolved},
}

// validNext holds the structurally legal edges per entity type. Terminal statuses
// map to an empty set and must never gain outgoing edges.
var validNext = map[EntityType]map[Status]map[Status]bool{
	EntityOrder: {
		OrderCreated:               {OrderOfferPending: true, OrderCancelled: true},
		OrderOfferPending:          {OrderDealAccepted: true, OrderCancelled: true, OrderExpired: true},
		OrderDealAccepted:          {OrderConfirmedBySender: true, OrderCancelled: true, OrderDispute: true},
		OrderConfirmedBySender:     {OrderInDelivery: true, OrderCancelled: true, OrderDispute: true},
		OrderInDelivery:            {OrderDelivered: true, OrderDispute: true, OrderForceMajeureCancelled: true},
		OrderDelivered:             {OrderCompleted: true, OrderDispute: true},
		OrderDispute:               {OrderResolved: true, OrderForceMajeureCancelled: true},
		OrderCompleted:             {},
		OrderForceMajeureCancelled: {},
		OrderCancelled:             {},
		OrderExpired:               {},
		OrderResolved:              {},
	},
	EntityDeal: {
		DealProposed: {DealCounter: true, DealAccepted: true, DealRejected: true, DealExpired: true},
		DealCounter:  {DealCounter: true, DealAccepted: true, DealRejected: true, DealExpired: true},
		DealAccepted: {},
		DealRejected: {},
		DealExpired:  {},
	},
	EntityDispute: {
		DisputeOpen:        {DisputeUnderReview: true, DisputeEscalated: true, DisputeResolved: true},
		DisputeUnderReview: {DisputeEscalated: true, DisputeResolved: true},
		DisputeEscalated:   {DisputeResolved: true},
		DisputeResolved:    {},
	},
}

// ParseEntityType returns the entity type named by s.
func ParseEntityType(s string) (EntityType, bool) {
	t := EntityType(s)
	_, ok := statusSets[t]
	return t, ok
}

// Statuses returns the status set for the entity type, nil when unknown.
func Statuses(t EntityType) []Status {
	set := statusSets[t]
	out := make([]Status, len(set))
	copy(out, set)
	return out
}

// IsKnownStatus reports whether s belongs to the status set of t.
func IsKnownStatus(t EntityType, s Status) bool {
	for _, v := range statusSets[t] {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(t EntityType, s Status) bool {
	next, ok := validNext[t][s]
	return ok && len(next) == 0
}

// IsValidTransition reports whether from→to is an edge of the entity type's status
// graph. Unknown entity types or from-statuses return false and leave a debug
// diagnostic, since callers check speculative transitions.
func IsValidTransition(t EntityType, from, to Status) bool {
	edges, ok := validNext[t]
	if !ok {
		zap.L().Debug("unknown entity type", zap.String("entity_type", string(t)))
		return false
	}
	next, ok := edges[from]
	if !ok {
		zap.L().Debug("unknown from status",
			zap.String("entity_type", string(t)),
			zap.String("from_status", string(from)),
			zap.String("to_status", string(to)),
		)
		return false
	}
	return next[to]
}
