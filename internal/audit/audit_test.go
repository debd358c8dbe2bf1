package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/testutil"
	"gorm.io/gorm"
)

func TestRecordJoinsCallerTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	sink := NewDBSink(testutil.Logger(t))

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := sink.Record(context.Background(), tx, Event{
			Action:     ActionDistributionDelete,
			EntityType: "distribution_log_entry",
			EntityID:   "42",
			Actor:      "qa@example.com",
			Reason:     "entered twice",
			Payload:    map[string]interface{}{"lot": "SLQ-12345"},
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	var got models.AuditEvent
	if err := db.Where("action = ?", ActionDistributionDelete).First(&got).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if len(got.ID) != 36 {
		t.Errorf("id %q is not a uuid", got.ID)
	}
	var payload map[string]string
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["lot"] != "SLQ-12345" || got.Reason != "entered twice" {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestRecordRollsBackWithCaller(t *testing.T) {
	db := testutil.NewDB(t)
	sink := NewDBSink(testutil.Logger(t))

	_ = db.Transaction(func(tx *gorm.DB) error {
		sink.Record(context.Background(), tx, Event{Action: ActionDistributionCreate})
		return gorm.ErrInvalidTransaction
	})

	var n int64
	db.Model(&models.AuditEvent{}).Count(&n)
	if n != 0 {
		t.Errorf("audit rows = %d after rollback, want 0", n)
	}
}
