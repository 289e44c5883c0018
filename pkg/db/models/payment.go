package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/livo-backend/pkg/enums"
)

// Payment is the single gateway payment attached to a booking.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BookingID        uuid.UUID           `gorm:"column:booking_id;type:uuid;not null;uniqueIndex"`
	GatewayOrderID   string              `gorm:"column:gateway_order_id;not null;uniqueIndex"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id"`
	GatewaySignature *string             `gorm:"column:gateway_signature"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(10,2);not null"`
	Currency         string              `gorm:"column:currency;not null"`
	Status           enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	Version          int64               `gorm:"column:version;not null;default:0"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
