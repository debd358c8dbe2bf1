package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent is an append-only audit trail row
type AuditEvent struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	Action     string         `gorm:"index;not null" json:"action"`
	EntityType string         `gorm:"index" json:"entityType"`
	EntityID   string         `gorm:"index" json:"entityId"`
	Actor      string         `json:"actor"`
	Reason     string         `gorm:"type:text" json:"reason"`
	Payload    datatypes.JSON `json:"payload"`
	CreatedAt  time.Time      `gorm:"index" json:"createdAt"`
}

func (AuditEvent) TableName() string { return "audit_events" }
