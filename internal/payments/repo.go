package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
)

// Repository persists payments, refunds and seen gateway events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	FindByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, status enums.PaymentStatus, updates map[string]any) error
	CreateRefund(ctx context.Context, refund *models.Refund) error
	FindRefundByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Refund, error)
	FindRefundByGatewayID(ctx context.Context, gatewayRefundID string) (*models.Refund, error)
	UpdateRefundStatus(ctx context.Context, gatewayRefundID string, status enums.RefundStatus) (int64, error)
	RecordGatewayEvent(ctx context.Context, eventID, eventType string) (bool, error)
	DeleteGatewayEventsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&payment).Error; err != nil {
		return nil, mapNotFound(err, "payment not found", "load payment")
	}
	return &payment, nil
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, mapNotFound(err, "payment not found", "load payment")
	}
	return &payment, nil
}

// UpdateStatus is a compare-and-set on version; extra columns ride along in updates.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, status enums.PaymentStatus, updates map[string]any) error {
	values := map[string]any{
		"status":     status,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(values)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update payment status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment was modified concurrently")
	}
	return nil
}

func (r *repository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) FindRefundByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&refund).Error; err != nil {
		return nil, mapNotFound(err, "refund not found", "load refund")
	}
	return &refund, nil
}

func (r *repository) FindRefundByGatewayID(ctx context.Context, gatewayRefundID string) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).Where("gateway_refund_id = ?", gatewayRefundID).First(&refund).Error; err != nil {
		return nil, mapNotFound(err, "refund not found", "load refund")
	}
	return &refund, nil
}

func (r *repository) UpdateRefundStatus(ctx context.Context, gatewayRefundID string, status enums.RefundStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("gateway_refund_id = ?", gatewayRefundID).
		Updates(map[string]any{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// RecordGatewayEvent stores a webhook delivery id. It returns false when the
// id was already recorded.
func (r *repository) RecordGatewayEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GatewayEvent{EventID: eventID, EventType: eventType, CreatedAt: time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteGatewayEventsBefore drops delivery ids older than cutoff; the gateway
// stops redelivering long before that.
func (r *repository) DeleteGatewayEventsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.GatewayEvent{})
	return res.RowsAffected, res.Error
}

func mapNotFound(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
