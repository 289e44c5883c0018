package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/livo-backend/pkg/enums"
)

type Refund struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID       uuid.UUID          `gorm:"column:payment_id;type:uuid;not null;uniqueIndex"`
	GatewayRefundID string             `gorm:"column:gateway_refund_id;not null;uniqueIndex"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(10,2);not null"`
	Percentage      int                `gorm:"column:percentage;not null"`
	Reason          string             `gorm:"column:reason"`
	Status          enums.RefundStatus `gorm:"column:status;not null"`
	Version         int64              `gorm:"column:version;not null;default:0"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
