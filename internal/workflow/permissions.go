package workflow

type Role string

const (
	RoleSystem         Role = "system"
	RoleSuperAdmin     Role = "super_admin"
	RoleAdmin          Role = "admin"
	RoleCM             Role = "cm"
	RoleDriver         Role = "driver"
	RoleSenderBusiness Role = "sender_business"
	RoleSenderPrivate  Role = "sender_private"
)

type transitionKey struct {
	entity   EntityType
	from, to Status
}

type Roles []Role

func (rs Roles) contains(r Role) bool {
	for _, v := range rs {
		if v == r {
			return true
		}
	}
	return false
}

var (
	senders    = Roles{RoleSenderBusiness, RoleSenderPrivate}
	staff      = Roles{RoleAdmin, RoleCM}
	sendersAnd = func(extra ...Role) Roles { return append(append(Roles{}, senders...), extra...) }
)

// grants maps each transition to the roles allowed to perform it. system and
// super_admin are not listed: they bypass this table.
var grants = map[transitionKey]Roles{
	{EntityOrder, OrderCreated, OrderOfferPending}: staff,
	{EntityOrder, OrderCreated, OrderCancelled}:    sendersAnd(RoleAdmin, RoleCM),

	{EntityOrder, OrderOfferPending, OrderDealAccepted}: sendersAnd(RoleAdmin),
	{EntityOrder, OrderOfferPending, OrderCancelled}:    sendersAnd(RoleAdmin, RoleCM),

	{EntityOrder, OrderDealAccepted, OrderConfirmedBySender}: senders,
	{EntityOrder, OrderDealAccepted, OrderCancelled}:         sendersAnd(RoleAdmin, RoleCM),
	{EntityOrder, OrderDealAccepted, OrderDispute}:           sendersAnd(RoleDriver, RoleAdmin, RoleCM),

	{EntityOrder, OrderConfirmedBySender, OrderInDelivery}: {RoleDriver},
	{EntityOrder, OrderConfirmedBySender, OrderCancelled}:  staff,
	{EntityOrder, OrderConfirmedBySender, OrderDispute}:    sendersAnd(RoleDriver, RoleAdmin, RoleCM),

	{EntityOrder, OrderInDelivery, OrderDelivered}:             {RoleDriver},
	{EntityOrder, OrderInDelivery, OrderDispute}:               sendersAnd(RoleDriver, RoleAdmin, RoleCM),
	{EntityOrder, OrderInDelivery, OrderForceMajeureCancelled}: staff,

	{EntityOrder, OrderDelivered, OrderCompleted}: sendersAnd(RoleAdmin),
	{EntityOrder, OrderDelivered, OrderDispute}:   sendersAnd(RoleDriver, RoleAdmin, RoleCM),

	{EntityOrder, OrderDispute, OrderResolved}:              staff,
	{EntityOrder, OrderDispute, OrderForceMajeureCancelled}: {RoleAdmin},

	{EntityDeal, DealProposed, DealCounter}:  sendersAnd(RoleDriver),
	{EntityDeal, DealProposed, DealAccepted}: senders,
	{EntityDeal, DealProposed, DealRejected}: sendersAnd(RoleDriver),
	{EntityDeal, DealCounter, DealCounter}:   sendersAnd(RoleDriver),
	{EntityDeal, DealCounter, DealAccepted}:  sendersAnd(RoleDriver),
	{EntityDeal, DealCounter, DealRejected}:  sendersAnd(RoleDriver),

	{EntityDispute, DisputeOpen, DisputeUnderReview}:      staff,
	{EntityDispute, DisputeOpen, DisputeEscalated}:        sendersAnd(RoleDriver, RoleAdmin, RoleCM),
	{EntityDispute, DisputeOpen, DisputeResolved}:         staff,
	{EntityDispute, DisputeUnderReview, DisputeEscalated}: staff,
	{EntityDispute, DisputeUnderReview, DisputeResolved}:  staff,
	{EntityDispute, DisputeEscalated, DisputeResolved}:    {RoleAdmin},
}

// IsPrivileged reports whether the role bypasses permission grants.
func IsPrivileged(r Role) bool {
	return r == RoleSystem || r == RoleSuperAdmin
}

// HasPermission reports whether role may perform from→to on the entity type.
// It does not check structural legality; callers validate that separately.
func HasPermission(t EntityType, from, to Status, role Role) bool {
	if IsPrivileged(role) {
		return true
	}
	roles, ok := grants[transitionKey{entity: t, from: from, to: to}]
	if !ok {
		return false
	}
	return roles.contains(role)
}
