package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Room is a bookable room type; TotalCount physical units share one inventory row per date.
type Room struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	HotelID    uuid.UUID       `gorm:"column:hotel_id;type:uuid;not null"`
	Type       string          `gorm:"column:type;not null"`
	BasePrice  decimal.Decimal `gorm:"column:base_price;type:numeric(10,2);not null"`
	TotalCount int             `gorm:"column:total_count;not null"`
	Capacity   int             `gorm:"column:capacity;not null"`
	Active     bool            `gorm:"column:active;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Hotel *Hotel `gorm:"foreignKey:HotelID;references:ID"`
}
