// Package audit writes the append-only audit trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit actions
const (
	ActionDistributionCreate = "distribution.create"
	ActionDistributionUpdate = "distribution.update"
	ActionDistributionDelete = "distribution.delete"
	ActionDistributionImport = "distribution.import"
	ActionSalesOrderImport   = "sales_order.import"
	ActionSalesOrderBackfill = "sales_order.backfill"
	ActionSyncRunCompleted   = "shipstation.run_completed"
	ActionSyncRunFailed      = "shipstation.run_failed"
	ActionReportGenerated    = "tracing_report.generate"
)

// Event is one structured audit record
type Event struct {
	Action     string
	EntityType string
	EntityID   string
	Actor      string
	Reason     string
	Payload    map[string]interface{}
}

// Sink accepts audit events. Writes join the caller's transaction so an
// audit row commits or rolls back with the change it describes.
type Sink interface {
	Record(ctx context.Context, tx *gorm.DB, ev Event) error
}

// DBSink stores events in the audit_events table
type DBSink struct {
	log logrus.FieldLogger
}

// NewDBSink creates a database-backed sink
func NewDBSink(log logrus.FieldLogger) *DBSink {
	return &DBSink{log: log.WithField("module", "audit")}
}

// Record inserts ev using tx
func (s *DBSink) Record(ctx context.Context, tx *gorm.DB, ev Event) error {
	row := models.AuditEvent{
		ID:         uuid.NewString(),
		Action:     ev.Action,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Actor:      ev.Actor,
		Reason:     ev.Reason,
	}
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		row.Payload = datatypes.JSON(b)
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("write audit event %s: %w", ev.Action, err)
	}

	s.log.WithFields(logrus.Fields{
		"action":      ev.Action,
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
		"actor":       ev.Actor,
	}).Debug("audit event recorded")
	return nil
}
