package models

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/livo-backend/pkg/enums"
)

type Guest struct {
	ID        uuid.UUID    `gorm:"column:id;type:uuid;primaryKey"`
	BookingID uuid.UUID    `gorm:"column:booking_id;type:uuid;not null"`
	Name      string       `gorm:"column:name;not null"`
	Gender    enums.Gender `gorm:"column:gender"`
	Age       int          `gorm:"column:age"`
}

func (Guest) TableName() string { return "booking_guests" }
