package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/internal/bookings"
	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/livo-backend/pkg/redis"
	"github.com/angelmondragon/livo-backend/pkg/square"
)

const (
	idempotencyScope   = "payment"
	defaultCurrency    = "USD"
	defaultGateTTL     = 10 * time.Minute
	defaultLockTimeout = 3 * time.Second

	ReasonLatePayment    = "Late payment for expired booking"
	ReasonInvalidPayment = "invalid payment signature"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RefundDirective travels in the details of a LatePayment error when money
// was captured for a booking that can no longer be confirmed.
type RefundDirective struct {
	RefundRequired bool   `json:"refund_required"`
	Percentage     int    `json:"percentage"`
	Reason         string `json:"reason"`
}

// RefundDirectiveFrom extracts the directive attached to err, if any.
func RefundDirectiveFrom(err error) (RefundDirective, bool) {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLatePayment {
		return RefundDirective{}, false
	}
	directive, ok := typed.Details().(RefundDirective)
	if !ok || !directive.RefundRequired {
		return RefundDirective{}, false
	}
	return directive, true
}

func latePayment(message string) error {
	return pkgerrors.New(pkgerrors.CodeLatePayment, message).WithDetails(RefundDirective{
		RefundRequired: true,
		Percentage:     100,
		Reason:         ReasonLatePayment,
	})
}

// RefundInput asks for pct percent of the payment behind OrderID back.
type RefundInput struct {
	OrderID    string
	PaymentID  string
	Reason     string
	Percentage int
}

// Service moves money for bookings: order creation, capture confirmation,
// webhook intake and refunds.
type Service interface {
	InitPayment(ctx context.Context, userID, bookingID uuid.UUID, idempotencyKey string) (*models.Payment, error)
	VerifyFromClient(ctx context.Context, orderID, paymentID, signature string) (bool, error)
	ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) error
	RequestRefund(ctx context.Context, orderID, paymentID string, directive RefundDirective) error
	HandleWebhookEvent(ctx context.Context, event *square.WebhookEvent) error
	InitiateRefund(ctx context.Context, input RefundInput) (*models.Refund, error)
	UpdateRefundStatus(ctx context.Context, gatewayRefundID, status string) error
}

// ServiceParams wires the payment service.
type ServiceParams struct {
	Repo          Repository
	Bookings      bookings.Repository
	Inventory     inventory.Repository
	TxRunner      txRunner
	Outbox        outbox.Emitter
	Idempotency   redis.IdempotencyStore
	Gateway       Gateway
	Logger        *logger.Logger
	Metrics       *metrics.BookingMetrics
	Config        config.BookingConfig
	SigningSecret string
	Currency      string
	Now           func() time.Time
}

type service struct {
	repo          Repository
	bookings      bookings.Repository
	inventory     inventory.Repository
	tx            txRunner
	outbox        outbox.Emitter
	idem          redis.IdempotencyStore
	gateway       Gateway
	logg          *logger.Logger
	metrics       *metrics.BookingMetrics
	gateTTL       time.Duration
	lockTimeout   time.Duration
	signingSecret string
	currency      string
	now           func() time.Time
}

// NewService validates params and builds the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if strings.TrimSpace(params.SigningSecret) == "" {
		return nil, fmt.Errorf("client signing secret required")
	}
	gateTTL := params.Config.IdempotencyTTL
	if gateTTL <= 0 {
		gateTTL = defaultGateTTL
	}
	lockTimeout := params.Config.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		bookings:      params.Bookings,
		inventory:     params.Inventory,
		tx:            params.TxRunner,
		outbox:        params.Outbox,
		idem:          params.Idempotency,
		gateway:       params.Gateway,
		logg:          params.Logger,
		metrics:       params.Metrics,
		gateTTL:       gateTTL,
		lockTimeout:   lockTimeout,
		signingSecret: params.SigningSecret,
		currency:      currency,
		now:           now,
	}, nil
}

// InitPayment opens (or reuses) the gateway order for a booking with guests.
func (s *service) InitPayment(ctx context.Context, userID, bookingID uuid.UUID, idempotencyKey string) (*models.Payment, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	gateKey := s.idem.IdempotencyKey(idempotencyScope, key)
	acquired, err := s.idem.SetNX(ctx, gateKey, userID.String(), s.gateTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "payment already initiated")
	}

	payment, err := s.initPayment(ctx, userID, bookingID)
	if err != nil {
		if _, delErr := s.idem.DelIfValue(ctx, gateKey, userID.String()); delErr != nil && s.logg != nil {
			s.logg.Error(ctx, "failed to release payment idempotency key", delErr)
		}
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithBookingID(ctx, bookingID.String())
		logCtx = s.logg.WithField(logCtx, "gateway_order_id", payment.GatewayOrderID)
		s.logg.Info(logCtx, "payment initiated")
	}
	return payment, nil
}

func (s *service) initPayment(ctx context.Context, userID, bookingID uuid.UUID) (*models.Payment, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another user")
	}
	if booking.Status != enums.BookingStatusGuestsAdded && booking.Status != enums.BookingStatusPaymentPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not ready for payment").
			WithDetails(map[string]any{"status": booking.Status})
	}

	existing, err := s.repo.FindByBookingID(ctx, booking.ID)
	switch {
	case err == nil:
		return s.reuse(ctx, existing)
	case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return nil, err
	}

	orderID, err := s.gateway.CreateOrder(ctx, OrderRequest{
		ReferenceID:    booking.ID.String(),
		AmountMinor:    MinorUnits(booking.Amount),
		Currency:       s.currency,
		IdempotencyKey: "order-" + booking.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	payment := &models.Payment{
		ID:             uuid.New(),
		BookingID:      booking.ID,
		GatewayOrderID: orderID,
		Amount:         booking.Amount,
		Currency:       s.currency,
		Status:         enums.PaymentStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "payment already exists for booking")
			}
			return err
		}
		if booking.Status == enums.BookingStatusPaymentPending {
			return nil
		}
		return s.bookings.WithTx(tx).UpdateStatus(ctx, booking.ID, booking.Version, enums.BookingStatusPaymentPending)
	})
	if err != nil {
		return nil, mapTxError(err, "create payment")
	}
	s.metrics.IncTransition(enums.BookingStatusPaymentPending.String())
	return payment, nil
}

// reuse hands back the booking's existing order. A failed attempt is reset to
// PENDING so the guest can pay against the same order again.
func (s *service) reuse(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	switch payment.Status {
	case enums.PaymentStatusSuccessful:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already completed")
	case enums.PaymentStatusRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already refunded")
	case enums.PaymentStatusFailed:
		if err := s.repo.UpdateStatus(ctx, payment.ID, payment.Version, enums.PaymentStatusPending, nil); err != nil {
			return nil, err
		}
		payment.Status = enums.PaymentStatusPending
		payment.Version++
	}
	return payment, nil
}

// VerifyFromClient checks the client supplied signature and confirms the
// booking. A bad signature fails the payment; a capture that arrives too late
// is queued for refund.
func (s *service) VerifyFromClient(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	if orderID == "" || paymentID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id and payment id are required")
	}
	payment, err := s.repo.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		return false, err
	}
	switch payment.Status {
	case enums.PaymentStatusSuccessful:
		return true, nil
	case enums.PaymentStatusRefunded:
		return false, nil
	}

	if !VerifyClientSignature(s.signingSecret, orderID, paymentID, signature) {
		if err := s.repo.UpdateStatus(ctx, payment.ID, payment.Version, enums.PaymentStatusFailed, nil); err != nil &&
			!pkgerrors.IsCode(err, pkgerrors.CodeConflict) && s.logg != nil {
			s.logg.Error(ctx, "failed to mark payment failed", err)
		}
		return false, pkgerrors.New(pkgerrors.CodeLatePayment, ReasonInvalidPayment)
	}

	if err := s.ConfirmPayment(ctx, orderID, paymentID, signature); err != nil {
		if directive, ok := RefundDirectiveFrom(err); ok {
			if rerr := s.RequestRefund(ctx, orderID, paymentID, directive); rerr != nil && s.logg != nil {
				s.logg.Error(ctx, "failed to queue late payment refund", rerr)
			}
		}
		return false, err
	}
	return true, nil
}

// ConfirmPayment marks the payment SUCCESSFUL and the booking CONFIRMED in one
// transaction, converting reserved units to booked. Confirming a settled
// payment is a no-op.
func (s *service) ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) error {
	payment, err := s.repo.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if payment.Status.IsSettled() {
		return nil
	}

	booking, err := s.confirm(ctx, payment, paymentID, signature)
	if err == nil {
		s.metrics.IncTransition(enums.BookingStatusConfirmed.String())
		if s.logg != nil {
			logCtx := s.logg.WithBookingID(ctx, booking.ID.String())
			logCtx = s.logg.WithField(logCtx, "gateway_payment_id", paymentID)
			s.logg.Info(logCtx, "booking confirmed")
		}
		return nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return err
	}

	// lost a race against another confirmation or the expiry sweep
	current, ferr := s.repo.FindByGatewayOrderID(ctx, orderID)
	if ferr == nil && current.Status == enums.PaymentStatusSuccessful {
		return nil
	}
	return latePayment("booking could not be confirmed, payment will be refunded")
}

func (s *service) confirm(ctx context.Context, payment *models.Payment, paymentID, signature string) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, payment.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == enums.BookingStatusExpired {
		return nil, latePayment("booking has expired, payment will be refunded")
	}
	if !booking.Status.CanTransitionTo(enums.BookingStatusConfirmed) {
		return nil, latePayment("booking is no longer awaiting payment, payment will be refunded")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := db.SetLockTimeout(tx, s.lockTimeout); err != nil {
			return err
		}
		invRepo := s.inventory.WithTx(tx)
		cells, err := invRepo.LockRange(ctx, booking.RoomID, booking.StartDate, booking.EndDate)
		if err != nil {
			return err
		}
		updates := map[string]any{"gateway_payment_id": paymentID, "gateway_signature": signature}
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, payment.ID, payment.Version, enums.PaymentStatusSuccessful, updates); err != nil {
			return err
		}
		if err := s.bookings.WithTx(tx).UpdateStatus(ctx, booking.ID, booking.Version, enums.BookingStatusConfirmed); err != nil {
			return err
		}
		if err := inventory.CommitReserved(ctx, invRepo, cells, booking.RoomsCount); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, bookings.LifecycleEvent(*booking, enums.BookingStatusConfirmed, "", nil, s.now().UTC()))
	})
	if err != nil {
		return nil, mapTxError(err, "confirm payment")
	}
	return booking, nil
}

// RequestRefund queues a refund for the payment behind orderID.
func (s *service) RequestRefund(ctx context.Context, orderID, paymentID string, directive RefundDirective) error {
	payment, err := s.repo.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if paymentID == "" && payment.GatewayPaymentID != nil {
		paymentID = *payment.GatewayPaymentID
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventRefundRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		OccurredAt:    s.now().UTC(),
		Data: payloads.RefundRequestedEvent{
			GatewayOrderID:   orderID,
			GatewayPaymentID: paymentID,
			Reason:           directive.Reason,
			Percentage:       directive.Percentage,
		},
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, event)
	})
	return mapTxError(err, "queue refund")
}

// HandleWebhookEvent records a verified gateway event once and turns it into
// an outbox event for the payment consumers. Redeliveries are dropped.
func (s *service) HandleWebhookEvent(ctx context.Context, event *square.WebhookEvent) error {
	if event == nil || strings.TrimSpace(event.EventID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event id is required")
	}
	ctx = s.withEventFields(ctx, event)
	var emitted bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fresh, err := repo.RecordGatewayEvent(ctx, event.EventID, event.Type)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		domainEvent, ok, err := s.translate(ctx, repo, event)
		if err != nil || !ok {
			return err
		}
		emitted = true
		return s.outbox.Emit(ctx, tx, domainEvent)
	})
	if err != nil {
		return mapTxError(err, "handle webhook event")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "emitted", emitted), "webhook event processed")
	}
	return nil
}

func (s *service) translate(ctx context.Context, repo Repository, event *square.WebhookEvent) (outbox.DomainEvent, bool, error) {
	switch event.Type {
	case square.EventPaymentUpdated:
		captured := event.Data.Object.Payment
		if captured == nil || captured.Status != square.PaymentCompleted || captured.OrderID == "" {
			return outbox.DomainEvent{}, false, nil
		}
		payment, err := repo.FindByGatewayOrderID(ctx, captured.OrderID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return outbox.DomainEvent{}, false, nil
			}
			return outbox.DomainEvent{}, false, err
		}
		return outbox.DomainEvent{
			EventType:     enums.EventPaymentCaptured,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			OccurredAt:    s.now().UTC(),
			Data: payloads.PaymentCapturedEvent{
				GatewayEventID:   event.EventID,
				GatewayOrderID:   captured.OrderID,
				GatewayPaymentID: captured.ID,
				Signature:        WebhookVerified,
			},
		}, true, nil
	case square.EventRefundUpdated:
		updated := event.Data.Object.Refund
		if updated == nil || updated.ID == "" {
			return outbox.DomainEvent{}, false, nil
		}
		refund, err := repo.FindRefundByGatewayID(ctx, updated.ID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return outbox.DomainEvent{}, false, nil
			}
			return outbox.DomainEvent{}, false, err
		}
		return outbox.DomainEvent{
			EventType:     enums.EventRefundUpdated,
			AggregateType: enums.AggregateRefund,
			AggregateID:   refund.ID,
			OccurredAt:    s.now().UTC(),
			Data: payloads.RefundUpdatedEvent{
				GatewayRefundID: updated.ID,
				Status:          updated.Status,
			},
		}, true, nil
	default:
		return outbox.DomainEvent{}, false, nil
	}
}

// InitiateRefund returns Percentage percent of the captured amount through the
// gateway. Repeated requests for the same payment return the existing refund.
func (s *service) InitiateRefund(ctx context.Context, input RefundInput) (*models.Refund, error) {
	if input.Percentage < 1 || input.Percentage > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund percentage must be between 1 and 100")
	}
	payment, err := s.repo.FindByGatewayOrderID(ctx, strings.TrimSpace(input.OrderID))
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindRefundByPaymentID(ctx, payment.ID)
	switch {
	case err == nil:
		return existing, nil
	case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return nil, err
	}

	gatewayPaymentID := strings.TrimSpace(input.PaymentID)
	if gatewayPaymentID == "" && payment.GatewayPaymentID != nil {
		gatewayPaymentID = *payment.GatewayPaymentID
	}
	if gatewayPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no captured gateway payment")
	}
	amount := RefundAmount(payment.Amount, input.Percentage)
	result, err := s.gateway.Refund(ctx, RefundRequest{
		PaymentID:      gatewayPaymentID,
		AmountMinor:    MinorUnits(amount),
		Currency:       payment.Currency,
		Reason:         input.Reason,
		IdempotencyKey: "refund-" + payment.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	refund := &models.Refund{
		ID:              uuid.New(),
		PaymentID:       payment.ID,
		GatewayRefundID: result.ID,
		Amount:          amount,
		Percentage:      input.Percentage,
		Reason:          input.Reason,
		Status:          result.Status,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateRefund(ctx, refund); err != nil {
			return err
		}
		updates := map[string]any{"gateway_payment_id": gatewayPaymentID}
		return repo.UpdateStatus(ctx, payment.ID, payment.Version, enums.PaymentStatusRefunded, updates)
	})
	if err != nil {
		return nil, mapTxError(err, "record refund")
	}
	if s.logg != nil {
		logCtx := s.logg.WithBookingID(ctx, payment.BookingID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"gateway_refund_id": refund.GatewayRefundID,
			"percentage":        refund.Percentage,
			"amount":            refund.Amount.StringFixed(2),
		})
		s.logg.Info(logCtx, "refund initiated")
	}
	return refund, nil
}

func (s *service) UpdateRefundStatus(ctx context.Context, gatewayRefundID, status string) error {
	gatewayRefundID = strings.TrimSpace(gatewayRefundID)
	if gatewayRefundID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway refund id is required")
	}
	parsed, err := enums.ParseRefundStatus(strings.ToUpper(strings.TrimSpace(status)))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund status")
	}
	rows, err := s.repo.UpdateRefundStatus(ctx, gatewayRefundID, parsed)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update refund status")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
	}
	return nil
}

func (s *service) withEventFields(ctx context.Context, event *square.WebhookEvent) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, map[string]any{
		"gateway_event_id":   event.EventID,
		"gateway_event_type": event.Type,
	})
}

func mapTxError(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsLockTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeResourceBusy, err, "inventory is busy, retry shortly")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
