package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/livo-backend/pkg/enums"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/outbox/payloads"
)

const analyticsConsumerName = "analytics"

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer writes booking lifecycle events to BigQuery while honoring Redis idempotency.
type Consumer struct {
	client      tableInserter
	table       string
	manager     idempotencyChecker
	logg        *logger.Logger
	eventFilter map[enums.OutboxEventType]struct{}
}

// NewConsumer builds a new analytics consumer.
func NewConsumer(client tableInserter, table string, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("bigquery table name required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		client:  client,
		table:   strings.TrimSpace(table),
		manager: manager,
		logg:    logg,
		eventFilter: map[enums.OutboxEventType]struct{}{
			enums.EventBookingReserved:  {},
			enums.EventBookingConfirmed: {},
			enums.EventBookingCancelled: {},
			enums.EventBookingExpired:   {},
		},
	}, nil
}

// Run pulls from the analytics subscription until ctx is canceled.
func (c *Consumer) Run(ctx context.Context, sub receiver) error {
	if sub == nil {
		return fmt.Errorf("analytics subscription required")
	}
	c.logg.Info(ctx, "analytics worker listening")
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.handleMessage(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handleMessage reports whether the message should be acked.
func (c *Consumer) handleMessage(ctx context.Context, messageID string, attributes map[string]string, data []byte) bool {
	logCtx := c.logg.WithField(ctx, "message_id", messageID)
	eventType, err := enums.ParseOutboxEventType(attributes["event_type"])
	if err != nil {
		c.logg.Warn(logCtx, "dropping message with unknown event_type")
		return true
	}
	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	if err := c.Process(ctx, eventType, envelope); err != nil {
		return false
	}
	return true
}

// Process ingests the outbox envelope into BigQuery if the event is supported.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if _, ok := c.eventFilter[eventType]; !ok {
		c.logg.Info(logCtx, "event not handled by analytics consumer")
		return nil
	}

	if envelope.EventID == "" {
		return fmt.Errorf("event id missing")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, analyticsConsumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	row, err := buildRow(eventType, envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to build booking event row", err)
		_ = c.manager.Delete(ctx, analyticsConsumerName, eventID)
		return err
	}

	if err := c.client.InsertRows(ctx, c.table, []any{row}); err != nil {
		c.logg.Error(logCtx, "failed to insert booking event row", err)
		_ = c.manager.Delete(ctx, analyticsConsumerName, eventID)
		return err
	}

	c.logg.Info(logCtx, "booking event ingested")
	return nil
}

type bookingEventRow struct {
	EventID    string             `bigquery:"event_id"`
	EventType  string             `bigquery:"event_type"`
	OccurredAt time.Time          `bigquery:"occurred_at"`
	BookingID  string             `bigquery:"booking_id"`
	HotelID    *string            `bigquery:"hotel_id"`
	RoomID     *string            `bigquery:"room_id"`
	UserID     *string            `bigquery:"user_id"`
	Status     string             `bigquery:"status"`
	StartDate  *string            `bigquery:"start_date"`
	EndDate    *string            `bigquery:"end_date"`
	RoomsCount int64              `bigquery:"rooms_count"`
	Amount     *big.Rat           `bigquery:"amount"`
	Reason     *string            `bigquery:"reason"`
	Payload    cbigquery.NullJSON `bigquery:"payload"`
}

// InsertID lets BigQuery drop a redelivered event's duplicate row.
func (r *bookingEventRow) InsertID() string { return r.EventID }

func buildRow(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (*bookingEventRow, error) {
	var payload payloads.BookingLifecycleEvent
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("booking event payload missing")
	}
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.BookingID == uuid.Nil {
		return nil, fmt.Errorf("booking id missing")
	}

	var amount *big.Rat
	if trimmed := strings.TrimSpace(payload.Amount); trimmed != "" {
		parsed, err := decimal.NewFromString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		amount = parsed.Rat()
	}

	occurredAt := envelope.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = payload.OccurredAt
	}

	return &bookingEventRow{
		EventID:    envelope.EventID,
		EventType:  string(eventType),
		OccurredAt: occurredAt.UTC(),
		BookingID:  payload.BookingID.String(),
		HotelID:    uuidValue(payload.HotelID),
		RoomID:     uuidValue(payload.RoomID),
		UserID:     uuidValue(payload.UserID),
		Status:     string(payload.Status),
		StartDate:  stringValue(payload.StartDate),
		EndDate:    stringValue(payload.EndDate),
		RoomsCount: int64(payload.RoomsCount),
		Amount:     amount,
		Reason:     stringValue(payload.Reason),
		Payload:    cbigquery.NullJSON{JSONVal: string(envelope.Data), Valid: true},
	}, nil
}

func uuidValue(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	value := id.String()
	return &value
}

func stringValue(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
