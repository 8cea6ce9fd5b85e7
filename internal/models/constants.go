package models

const (
	OrderStatusPlaced    = "placed"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready_for_pickup"
	OrderStatusPickedUp  = "picked_up"
	OrderStatusInTransit = "in_transit"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"

	AuditEventReviewApproved   = "review.approved"
	AuditEventReviewRejected   = "review.rejected"
	AuditEventSubstitution     = "cart.substitution"
	AuditEventOrderPlaced      = "order.placed"
	AuditEventPromiseDisplayed = "order.promise_displayed"

	TopicAuditEvents           = "audit_events"
	TopicSubstitutionDecisions = "substitution_decisions"
)
