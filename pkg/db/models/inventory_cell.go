package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryCell holds the counters for one room type on one date.
// booked_count + reserved_count never exceeds total_count.
type InventoryCell struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	HotelID       uuid.UUID       `gorm:"column:hotel_id;type:uuid;not null;uniqueIndex:ux_inventory_cells_hotel_room_date"`
	RoomID        uuid.UUID       `gorm:"column:room_id;type:uuid;not null;uniqueIndex:ux_inventory_cells_hotel_room_date"`
	Date          time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:ux_inventory_cells_hotel_room_date"`
	City          string          `gorm:"column:city;not null"`
	TotalCount    int             `gorm:"column:total_count;not null;check:chk_inventory_cells_capacity,booked_count >= 0 AND reserved_count >= 0 AND booked_count + reserved_count <= total_count"`
	BookedCount   int             `gorm:"column:booked_count;not null;default:0"`
	ReservedCount int             `gorm:"column:reserved_count;not null;default:0"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	SurgeFactor   decimal.Decimal `gorm:"column:surge_factor;type:numeric(5,2);not null;default:1"`
	Closed        bool            `gorm:"column:closed;not null;default:false"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryCell) TableName() string { return "inventory_cells" }

// Available returns the units still free for new reservations.
func (c InventoryCell) Available() int {
	free := c.TotalCount - c.BookedCount - c.ReservedCount
	if free < 0 {
		return 0
	}
	return free
}
