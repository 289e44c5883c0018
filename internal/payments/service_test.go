package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/internal/bookings"
	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/livo-backend/pkg/redis"
	"github.com/angelmondragon/livo-backend/pkg/square"
)

func TestInitPaymentOpensOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.reserve(t, 1, enums.BookingStatusGuestsAdded)

	payment, err := h.svc.InitPayment(ctx, h.user, booking.ID, "pay-key-1")
	require.NoError(t, err)
	require.Equal(t, "order_1", payment.GatewayOrderID)
	require.Equal(t, enums.PaymentStatusPending, payment.Status)
	require.Equal(t, "USD", payment.Currency)
	require.True(t, payment.Amount.Equal(decimal.RequireFromString("320.49")))

	require.Len(t, h.gateway.orders, 1)
	require.Equal(t, int64(32049), h.gateway.orders[0].AmountMinor)
	require.Equal(t, "order-"+booking.ID.String(), h.gateway.orders[0].IdempotencyKey)
	require.Equal(t, enums.BookingStatusPaymentPending, h.booking(t, booking.ID).Status)

	_, err = h.svc.InitPayment(ctx, h.user, booking.ID, "pay-key-1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdempotency))

	again, err := h.svc.InitPayment(ctx, h.user, booking.ID, "pay-key-2")
	require.NoError(t, err)
	require.Equal(t, payment.ID, again.ID)
	require.Len(t, h.gateway.orders, 1, "pending order is reused")
}

func TestInitPaymentRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reserved := h.reserve(t, 1, enums.BookingStatusReserved)
	_, err := h.svc.InitPayment(ctx, h.user, reserved.ID, "k1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.InitPayment(ctx, uuid.New(), reserved.ID, "k2")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.InitPayment(ctx, h.user, reserved.ID, " ")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	// the failed attempt released its key
	h.setBookingStatus(t, reserved.ID, enums.BookingStatusGuestsAdded)
	_, err = h.svc.InitPayment(ctx, h.user, reserved.ID, "k1")
	require.NoError(t, err)
}

func TestInitPaymentGatewayFailureReleasesKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.reserve(t, 1, enums.BookingStatusGuestsAdded)

	h.gateway.orderErr = pkgerrors.New(pkgerrors.CodeDependency, "square unavailable")
	_, err := h.svc.InitPayment(ctx, h.user, booking.ID, "k1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Equal(t, enums.BookingStatusGuestsAdded, h.booking(t, booking.ID).Status)

	h.gateway.orderErr = nil
	_, err = h.svc.InitPayment(ctx, h.user, booking.ID, "k1")
	require.NoError(t, err)
}

func TestInitPaymentReleaseKeepsKeyClaimedByAnotherCaller(t *testing.T) {
	var mr *miniredis.Miniredis
	h := newHarnessWith(t, harnessOptions{
		idempotency: func(store redis.IdempotencyStore, m *miniredis.Miniredis) redis.IdempotencyStore {
			mr = m
			return takeoverStore{IdempotencyStore: store, mr: m, owner: "other-user"}
		},
	})
	booking := h.reserve(t, 1, enums.BookingStatusGuestsAdded)
	h.gateway.orderErr = pkgerrors.New(pkgerrors.CodeDependency, "square unavailable")

	_, err := h.svc.InitPayment(context.Background(), h.user, booking.ID, "shared-key")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	got, err := mr.Get("livo:idempotency:payment:shared-key")
	require.NoError(t, err)
	require.Equal(t, "other-user", got)
}

func TestInitPaymentResetsFailedPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.reserve(t, 1, enums.BookingStatusGuestsAdded)

	payment, err := h.svc.InitPayment(ctx, h.user, booking.ID, "k1")
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.Payment{}).Where("id = ?", payment.ID).
		UpdateColumn("status", enums.PaymentStatusFailed).Error)

	again, err := h.svc.InitPayment(ctx, h.user, booking.ID, "k2")
	require.NoError(t, err)
	require.Equal(t, payment.ID, again.ID)
	require.Equal(t, enums.PaymentStatusPending, h.payment(t, booking.ID).Status)

	require.NoError(t, h.conn.Model(&models.Payment{}).Where("id = ?", payment.ID).
		UpdateColumn("status", enums.PaymentStatusSuccessful).Error)
	_, err = h.svc.InitPayment(ctx, h.user, booking.ID, "k3")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestVerifyFromClientConfirmsBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.reserve(t, 2, enums.BookingStatusGuestsAdded)
	payment, err := h.svc.InitPayment(ctx, h.user, booking.ID, "k1")
	require.NoError(t, err)

	sig := SignClientPayment(testSecret, payment.GatewayOrderID, "pay_42")
	ok, err := h.svc.VerifyFromClient(ctx, payment.GatewayOrderID, "pay_42", sig)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, enums.BookingStatusConfirmed, h.booking(t, booking.ID).Status)
	stored := h.payment(t, booking.ID)
	require.Equal(t, enums.PaymentStatusSuccessful, stored.Status)
	require.NotNil(t, stored.GatewayPaymentID)
	require.Equal(t, "pay_42", *stored.GatewayPaymentID)
	for _, cell := range h.cells(t) {
		require.Equal(t, 0, cell.ReservedCount)
		require.Equal(t, 2, cell.BookedCount)
	}
	require.Len(t, h.emitter.ofType(enums.EventBookingConfirmed), 1)

	ok, err = h.svc.VerifyFromClient(ctx, payment.GatewayOrderID, "pay_42", sig)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, h.emitter.ofType(enums.EventBookingConfirmed), 1, "second verification is a no-op")
}

func TestVerifyFromClientBadSignatureFailsPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.reserve(t, 1, enums.BookingStatusGuestsAdded)
	payment, err := h.svc.InitPayment(ctx, h.user, booking.ID, "k1")
	require.NoError(t, err)

	ok, err := h.svc.VerifyFromClient(ctx, payment.GatewayOrderID, "pay_42", "deadbeef")
	require.False(t, ok)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLatePayment))
	_, refund := RefundDirectiveFrom(err)
	require.False(t, refund)

	require.Equal(t, enums.PaymentStatusFailed, h.payment(t, booking.ID).Status)
	require.Equal(t, enums.BookingStatusPaymentPending, h.booking(t, booking.ID).Status)
}

func TestLatePaymentOnExpiredBookingQueuesRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.reserve(t, 1, enums.BookingStatusGuestsAdded)
	payment, err := h.svc.InitPayment(ctx, h.user, booking.ID, "k1")
	require.NoError(t, err)
	h.setBookingStatus(t, booking.ID, enums.BookingStatusExpired)

	err = h.svc.ConfirmPayment(ctx, payment.GatewayOrderID, "pay_late", WebhookVerified)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLatePayment))
	directive, ok := RefundDirectiveFrom(err)
	require.True(t, ok)
	require.Equal(t, 100, directive.Percentage)
	require.Equal(t, enums.PaymentStatusPending, h.payment(t, booking.ID).Status)

	sig := SignClientPayment(testSecret, payment.GatewayOrderID, "pay_late")
	confirmed, err := h.svc.VerifyFromClient(ctx, payment.GatewayOrderID, "pay_late", sig)
	require.False(t, confirmed)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLatePayment))

	events := h.emitter.ofType(enums.EventRefundRequested)
	require.Len(t, events, 1)
	data := events[0].Data.(payloads.RefundRequestedEvent)
	require.Equal(t, "pay_late", data.GatewayPaymentID)
	require.Equal(t, 100, data.Percentage)
	require.Equal(t, ReasonLatePayment, data.Reason)
}

func TestConfirmPaymentTwiceIsNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.reserve(t, 1, enums.BookingStatusGuestsAdded)
	payment, err := h.svc.InitPayment(ctx, h.user, booking.ID, "k1")
	require.NoError(t, err)

	require.NoError(t, h.svc.ConfirmPayment(ctx, payment.GatewayOrderID, "pay_1", WebhookVerified))
	require.NoError(t, h.svc.ConfirmPayment(ctx, payment.GatewayOrderID, "pay_1", WebhookVerified))
	require.Len(t, h.emitter.ofType(enums.EventBookingConfirmed), 1)
}

func TestConfirmPaymentLosesVersionRaceToExpiry(t *testing.T) {
	var swept *sweptBookings
	h := newHarnessWith(t, harnessOptions{
		bookings: func(repo bookings.Repository, conn *gorm.DB) bookings.Repository {
			swept = &sweptBookings{
				Repository: repo,
				conn:       conn,
				expirer:    bookings.NewExpirer(repo, inventory.NewRepository(conn), nil, func() time.Time { return fixedNow }),
				swept:      true,
			}
			return swept
		},
	})
	ctx := context.Background()
	booking := h.reserve(t, 2, enums.BookingStatusGuestsAdded)
	payment, err := h.svc.InitPayment(ctx, h.user, booking.ID, "k1")
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusPaymentPending, h.booking(t, booking.ID).Status)

	swept.swept = false
	err = h.svc.ConfirmPayment(ctx, payment.GatewayOrderID, "pay_1", WebhookVerified)
	require.True(t, swept.swept)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLatePayment))
	require.Contains(t, err.Error(), "booking could not be confirmed, payment will be refunded")
	directive, ok := RefundDirectiveFrom(err)
	require.True(t, ok)
	require.True(t, directive.RefundRequired)
	require.Equal(t, 100, directive.Percentage)

	require.Equal(t, enums.BookingStatusExpired, h.booking(t, booking.ID).Status)
	require.Equal(t, enums.PaymentStatusPending, h.payment(t, booking.ID).Status)
	cells := h.cells(t)
	require.Len(t, cells, 3)
	for _, cell := range cells {
		require.Equal(t, 0, cell.ReservedCount)
		require.Equal(t, 0, cell.BookedCount)
	}
	require.Empty(t, h.emitter.ofType(enums.EventBookingConfirmed))
}

func webhook(eventID, eventType string) *square.WebhookEvent {
	event := &square.WebhookEvent{EventID: eventID, Type: eventType}
	return event
}

func TestHandleWebhookEventDedupes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.reserve(t, 1, enums.BookingStatusGuestsAdded)
	payment, err := h.svc.InitPayment(ctx, h.user, booking.ID, "k1")
	require.NoError(t, err)

	event := webhook("evt_1", square.EventPaymentUpdated)
	event.Data.Object.Payment = &square.WebhookPayment{ID: "pay_9", OrderID: payment.GatewayOrderID, Status: square.PaymentCompleted}

	require.NoError(t, h.svc.HandleWebhookEvent(ctx, event))
	require.NoError(t, h.svc.HandleWebhookEvent(ctx, event))

	captured := h.emitter.ofType(enums.EventPaymentCaptured)
	require.Len(t, captured, 1)
	require.Equal(t, payment.ID, captured[0].AggregateID)
	data := captured[0].Data.(payloads.PaymentCapturedEvent)
	require.Equal(t, "pay_9", data.GatewayPaymentID)
	require.Equal(t, WebhookVerified, data.Signature)

	var seen int64
	require.NoError(t, h.conn.Model(&models.GatewayEvent{}).Count(&seen).Error)
	require.Equal(t, int64(1), seen)
}

func TestHandleWebhookEventIgnoresIrrelevant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := webhook("evt_pending", square.EventPaymentUpdated)
	pending.Data.Object.Payment = &square.WebhookPayment{ID: "pay_1", OrderID: "order_x", Status: "APPROVED"}
	require.NoError(t, h.svc.HandleWebhookEvent(ctx, pending))

	unknownOrder := webhook("evt_unknown", square.EventPaymentUpdated)
	unknownOrder.Data.Object.Payment = &square.WebhookPayment{ID: "pay_1", OrderID: "order_x", Status: square.PaymentCompleted}
	require.NoError(t, h.svc.HandleWebhookEvent(ctx, unknownOrder))

	require.NoError(t, h.svc.HandleWebhookEvent(ctx, webhook("evt_other", "invoice.created")))
	require.Empty(t, h.emitter.events)

	err := h.svc.HandleWebhookEvent(ctx, webhook("", square.EventPaymentUpdated))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestInitiateRefundIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payment := h.captured(t)

	refund, err := h.svc.InitiateRefund(ctx, RefundInput{OrderID: payment.GatewayOrderID, Reason: "User Manually Cancelled Booking", Percentage: 75})
	require.NoError(t, err)
	require.True(t, refund.Amount.Equal(decimal.RequireFromString("240.37")))
	require.Equal(t, enums.RefundStatusPending, refund.Status)
	require.Len(t, h.gateway.refunds, 1)
	require.Equal(t, int64(24037), h.gateway.refunds[0].AmountMinor)
	require.Equal(t, "pay_1", h.gateway.refunds[0].PaymentID)
	require.Equal(t, "refund-"+payment.ID.String(), h.gateway.refunds[0].IdempotencyKey)
	require.Equal(t, enums.PaymentStatusRefunded, h.payment(t, payment.BookingID).Status)

	again, err := h.svc.InitiateRefund(ctx, RefundInput{OrderID: payment.GatewayOrderID, Percentage: 75})
	require.NoError(t, err)
	require.Equal(t, refund.ID, again.ID)
	require.Len(t, h.gateway.refunds, 1)
}

func TestInitiateRefundValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payment := h.captured(t)

	_, err := h.svc.InitiateRefund(ctx, RefundInput{OrderID: payment.GatewayOrderID, Percentage: 0})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.svc.InitiateRefund(ctx, RefundInput{OrderID: "missing", Percentage: 50})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	h.gateway.refundErr = errors.New("boom")
	_, err = h.svc.InitiateRefund(ctx, RefundInput{OrderID: payment.GatewayOrderID, Percentage: 50})
	require.Error(t, err)
	require.Equal(t, enums.PaymentStatusSuccessful, h.payment(t, payment.BookingID).Status)
}

func TestRefundUpdatedWebhookAndStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payment := h.captured(t)
	refund, err := h.svc.InitiateRefund(ctx, RefundInput{OrderID: payment.GatewayOrderID, Percentage: 100})
	require.NoError(t, err)

	event := webhook("evt_refund", square.EventRefundUpdated)
	event.Data.Object.Refund = &square.WebhookRefund{ID: refund.GatewayRefundID, PaymentID: "pay_1", Status: "COMPLETED"}
	require.NoError(t, h.svc.HandleWebhookEvent(ctx, event))
	updated := h.emitter.ofType(enums.EventRefundUpdated)
	require.Len(t, updated, 1)
	require.Equal(t, refund.ID, updated[0].AggregateID)

	require.NoError(t, h.svc.UpdateRefundStatus(ctx, refund.GatewayRefundID, "completed"))
	var stored models.Refund
	require.NoError(t, h.conn.First(&stored, "id = ?", refund.ID).Error)
	require.Equal(t, enums.RefundStatusCompleted, stored.Status)

	err = h.svc.UpdateRefundStatus(ctx, "refund_missing", "COMPLETED")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	err = h.svc.UpdateRefundStatus(ctx, refund.GatewayRefundID, "LOST")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAmountsAndSignatures(t *testing.T) {
	require.Equal(t, int64(32049), MinorUnits(decimal.RequireFromString("320.49")))
	require.Equal(t, int64(1001), MinorUnits(decimal.RequireFromString("10.005")))
	require.True(t, RefundAmount(decimal.RequireFromString("320.49"), 50).Equal(decimal.RequireFromString("160.25")))
	require.True(t, RefundAmount(decimal.RequireFromString("99.99"), 100).Equal(decimal.RequireFromString("99.99")))

	sig := SignClientPayment("s", "order_1", "pay_1")
	require.Len(t, sig, 64)
	require.True(t, VerifyClientSignature("s", "order_1", "pay_1", sig))
	require.False(t, VerifyClientSignature("s", "order_1", "pay_2", sig))
	require.False(t, VerifyClientSignature("", "order_1", "pay_1", sig))

	require.Equal(t, enums.RefundStatusCompleted, ParseGatewayRefundStatus("completed"))
	require.Equal(t, enums.RefundStatusPending, ParseGatewayRefundStatus("???"))
}
