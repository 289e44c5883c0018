package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type to its topic.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation and decoded cleanly.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry is the publisher side of the event catalogue. A row is only
// handed to Pub/Sub once its routing and payload check out.
type EventRegistry struct {
	routes   map[enums.OutboxEventType]EventDescriptor
	decoders *Decoders
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var missing []error
	for name, topic := range map[string]string{
		"booking": cfg.BookingTopic,
		"payment": cfg.PaymentTopic,
		"refund":  cfg.RefundTopic,
	} {
		if topic == "" {
			missing = append(missing, fmt.Errorf("%s topic is required", name))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	reg := &EventRegistry{
		routes:   map[enums.OutboxEventType]EventDescriptor{},
		decoders: NewDecoders(),
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventBookingReserved,
		enums.EventBookingConfirmed,
		enums.EventBookingCancelled,
		enums.EventBookingExpired,
	} {
		reg.route(eventType, enums.AggregateBooking, cfg.BookingTopic)
		Register[payloads.BookingLifecycleEvent](reg.decoders, eventType, 1)
	}
	reg.route(enums.EventPaymentCaptured, enums.AggregatePayment, cfg.PaymentTopic)
	reg.route(enums.EventRefundRequested, enums.AggregatePayment, cfg.RefundTopic)
	reg.route(enums.EventRefundUpdated, enums.AggregateRefund, cfg.RefundTopic)
	Register[payloads.PaymentCapturedEvent](reg.decoders, enums.EventPaymentCaptured, 1)
	Register[payloads.RefundRequestedEvent](reg.decoders, enums.EventRefundRequested, 1)
	Register[payloads.RefundUpdatedEvent](reg.decoders, enums.EventRefundUpdated, 1)
	return reg, nil
}

func (r *EventRegistry) route(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) {
	r.routes[eventType] = EventDescriptor{EventType: eventType, AggregateType: aggregate, Topic: topic}
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.routes[eventType]
	return desc, ok
}

// Resolve checks the row against its route and decodes the payload for the
// envelope's version. Every error it returns is a NonRetryableError.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[row.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", row.EventType))
	case desc.AggregateType != row.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s aggregates, row has %s", row.EventType, desc.AggregateType, row.AggregateType))
	case row.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	payload, err := r.decoders.Decode(row.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, err
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
