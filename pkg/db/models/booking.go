package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/livo-backend/pkg/enums"
)

// Booking is a user's hold or purchase of RoomsCount units over an inclusive date range.
type Booking struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	HotelID    uuid.UUID           `gorm:"column:hotel_id;type:uuid;not null"`
	RoomID     uuid.UUID           `gorm:"column:room_id;type:uuid;not null"`
	UserID     uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	RoomsCount int                 `gorm:"column:rooms_count;not null"`
	StartDate  time.Time           `gorm:"column:start_date;type:date;not null"`
	EndDate    time.Time           `gorm:"column:end_date;type:date;not null"`
	Amount     decimal.Decimal     `gorm:"column:amount;type:numeric(10,2);not null"`
	Status     enums.BookingStatus `gorm:"column:status;type:booking_status;not null"`
	Version    int64               `gorm:"column:version;not null;default:0"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Guests []Guest `gorm:"foreignKey:BookingID;references:ID"`
}

// Nights returns the number of inventory dates covered, end date included.
func (b Booking) Nights() int {
	return int(b.EndDate.Sub(b.StartDate).Hours()/24) + 1
}
