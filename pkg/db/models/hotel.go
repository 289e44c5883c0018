package models

import (
	"time"

	"github.com/google/uuid"
)

// Hotel is the read-only catalog projection the booking engine needs.
type Hotel struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name      string     `gorm:"column:name;not null"`
	City      string     `gorm:"column:city;not null"`
	Active    bool       `gorm:"column:active;not null;default:false"`
	ManagerID *uuid.UUID `gorm:"column:manager_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
