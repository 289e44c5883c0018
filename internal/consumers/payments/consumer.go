package payments

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/livo-backend/internal/payments"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/livo-backend/pkg/outbox/registry"
)

const consumerName = "payment-worker"

type paymentService interface {
	ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) error
	RequestRefund(ctx context.Context, orderID, paymentID string, directive payments.RefundDirective) error
	InitiateRefund(ctx context.Context, input payments.RefundInput) (*models.Refund, error)
	UpdateRefundStatus(ctx context.Context, gatewayRefundID, status string) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer applies payment_captured, refund_requested and refund_updated
// events to the payment service.
type Consumer struct {
	service       paymentService
	subscriptions []receiver
	idempotency   idempotencyChecker
	decoders      *registry.Decoders
	logg          *logger.Logger
}

// NewConsumer builds the payment worker over one or more subscriptions.
func NewConsumer(service paymentService, manager idempotencyChecker, logg *logger.Logger, subscriptions ...*pubsub.Subscriber) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	receivers := make([]receiver, 0, len(subscriptions))
	for _, sub := range subscriptions {
		if sub == nil {
			return nil, fmt.Errorf("subscription required")
		}
		receivers = append(receivers, sub)
	}
	if len(receivers) == 0 {
		return nil, fmt.Errorf("at least one subscription required")
	}
	return &Consumer{
		service:       service,
		subscriptions: receivers,
		idempotency:   manager,
		decoders:      registry.PaymentWorkerDecoders(),
		logg:          logg,
	}, nil
}

// Run receives from every subscription until ctx is canceled or one fails.
func (c *Consumer) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, sub := range c.subscriptions {
		group.Go(func() error {
			return sub.Receive(ctx, c.receive)
		})
	}
	return group.Wait()
}

func (c *Consumer) receive(ctx context.Context, msg *pubsub.Message) {
	if c.process(ctx, msg.ID, msg.Attributes, msg.Data).nack {
		msg.Nack()
		return
	}
	msg.Ack()
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) processResult {
	eventType := enums.OutboxEventType(attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	switch eventType {
	case enums.EventPaymentCaptured, enums.EventRefundRequested, enums.EventRefundUpdated:
	default:
		c.logg.Info(logCtx, "skipping event not handled by payment worker")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable payload", err)
		return processResult{ack: true}
	}

	if err := c.handle(logCtx, payload); err != nil {
		if !pkgerrors.IsRetryable(err) {
			c.logg.Error(logCtx, "dropping event after permanent failure", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "payment event handling failed", err)
		_ = c.idempotency.Delete(ctx, consumerName, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, payload any) error {
	switch p := payload.(type) {
	case *payloads.PaymentCapturedEvent:
		return c.confirm(ctx, *p)
	case *payloads.RefundRequestedEvent:
		_, err := c.service.InitiateRefund(ctx, payments.RefundInput{
			OrderID:    p.GatewayOrderID,
			PaymentID:  p.GatewayPaymentID,
			Reason:     p.Reason,
			Percentage: p.Percentage,
		})
		return err
	case *payloads.RefundUpdatedEvent:
		return c.service.UpdateRefundStatus(ctx, p.GatewayRefundID, p.Status)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unexpected payload %T", payload))
	}
}

// confirm applies a webhook capture. A capture for a booking that can no
// longer be confirmed is reported and turned into a full refund request.
func (c *Consumer) confirm(ctx context.Context, payload payloads.PaymentCapturedEvent) error {
	signature := payload.Signature
	if signature == "" {
		signature = payments.WebhookVerified
	}
	err := c.service.ConfirmPayment(ctx, payload.GatewayOrderID, payload.GatewayPaymentID, signature)
	if err == nil {
		return nil
	}
	directive, ok := payments.RefundDirectiveFrom(err)
	if !ok {
		return err
	}
	c.logg.Warn(c.logg.WithField(ctx, "gateway_order_id", payload.GatewayOrderID), "late payment captured, requesting refund")
	return c.service.RequestRefund(ctx, payload.GatewayOrderID, payload.GatewayPaymentID, directive)
}
