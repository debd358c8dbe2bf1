package models

import (
	"time"

	"gorm.io/datatypes"
)

// Sync run status constants
const (
	SyncRunStatusSuccess = "success" // every attempted row synced
	SyncRunStatusPartial = "partial" // some rows skipped
	SyncRunStatusFailed  = "failed"  // aborted by a fatal API error or cancellation
)

// Skip reason tags
const (
	SkipReasonMissingOrderIDOrNumber = "missing_order_id_or_number"
	SkipReasonNoShipments            = "no_shipments"
	SkipReasonNoValidItems           = "no_valid_items"
	SkipReasonDuplicateExternalKey   = "duplicate_external_key"
	SkipReasonInsertFailed           = "insert_failed"
)

// ShipStationSyncRun is the append-only record of one orchestrator execution
type ShipStationSyncRun struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunUUID         string     `gorm:"uniqueIndex;size:36" json:"runUuid"`
	Status          string     `gorm:"index;not null" json:"status"`
	StartedAt       time.Time  `gorm:"not null" json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt"`
	DateStart       time.Time  `json:"dateStart"`
	DateEnd         time.Time  `json:"dateEnd"`
	OrdersSeen      int        `json:"ordersSeen"`
	ShipmentsSeen   int        `json:"shipmentsSeen"`
	SyncedCount     int        `json:"syncedCount"`
	SkippedCount    int        `json:"skippedCount"`
	DurationSeconds float64    `json:"durationSeconds"`
	Message         string     `gorm:"type:text" json:"message"`
	TriggeredBy     string     `json:"triggeredBy"`
	CreatedAt       time.Time  `json:"createdAt"`

	// Relations
	Skipped []ShipStationSkippedOrder `gorm:"foreignKey:RunID" json:"skipped,omitempty"`
}

func (ShipStationSyncRun) TableName() string { return "shipstation_sync_runs" }

// ShipStationSkippedOrder is one non-fatal skip decision inside a run
type ShipStationSkippedOrder struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       int64          `gorm:"index;not null" json:"runId"`
	OrderID     string         `gorm:"index" json:"orderId"`
	OrderNumber string         `gorm:"index" json:"orderNumber"`
	ShipmentID  string         `json:"shipmentId"`
	Reason      string         `gorm:"index;not null" json:"reason"`
	Details     datatypes.JSON `json:"details"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (ShipStationSkippedOrder) TableName() string { return "shipstation_skipped_orders" }
