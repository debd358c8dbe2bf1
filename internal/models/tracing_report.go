package models

import (
	"time"

	"gorm.io/datatypes"
)

// TracingReport is an immutable snapshot of distribution entries for one month.
// Regenerating with the same filters inserts a new row.
type TracingReport struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Month       string         `gorm:"index;size:7;not null" json:"month"` // YYYY-MM
	Filters     datatypes.JSON `json:"filters"`
	FilterHash  string         `gorm:"index;size:12;not null" json:"filterHash"`
	StorageKey  string         `gorm:"uniqueIndex;not null" json:"storageKey"`
	SHA256      string         `gorm:"column:sha256;size:64;not null" json:"sha256"`
	RowCount    int            `json:"rowCount"`
	GeneratedBy string         `json:"generatedBy"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (TracingReport) TableName() string { return "tracing_reports" }
