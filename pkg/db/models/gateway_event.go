package models

import "time"

// GatewayEvent records every webhook delivery id seen, so redeliveries are dropped.
type GatewayEvent struct {
	EventID   string    `gorm:"column:event_id;primaryKey"`
	EventType string    `gorm:"column:event_type;not null"`
	Picked    bool      `gorm:"column:picked;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
