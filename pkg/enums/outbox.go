package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateBooking OutboxAggregateType = "booking"
	AggregatePayment OutboxAggregateType = "payment"
	AggregateRefund  OutboxAggregateType = "refund"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBooking,
	AggregatePayment,
	AggregateRefund,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", validAggregateTypes, value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventBookingReserved  OutboxEventType = "booking_reserved"
	EventBookingConfirmed OutboxEventType = "booking_confirmed"
	EventBookingCancelled OutboxEventType = "booking_cancelled"
	EventBookingExpired   OutboxEventType = "booking_expired"
	EventPaymentCaptured  OutboxEventType = "payment_captured"
	EventRefundRequested  OutboxEventType = "refund_requested"
	EventRefundUpdated    OutboxEventType = "refund_updated"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBookingReserved,
	EventBookingConfirmed,
	EventBookingCancelled,
	EventBookingExpired,
	EventPaymentCaptured,
	EventRefundRequested,
	EventRefundUpdated,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", validOutboxEventTypes, value)
}
