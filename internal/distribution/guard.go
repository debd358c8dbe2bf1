package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/silq-qms/qmsgo/internal/database"
	"github.com/silq-qms/qmsgo/internal/models"
	"gorm.io/gorm"
)

// ErrDuplicateExternalKey is returned by InsertUnique when (source, external_key) already exists
var ErrDuplicateExternalKey = errors.New("duplicate external key")

// ExternalKey is the idempotency token for one fulfillment row
func ExternalKey(shipmentID, sku, lot string) string {
	return shipmentID + ":" + sku + ":" + lot
}

// InsertUnique inserts e under a savepoint. A uniqueness violation rolls back
// only this row and is reported as ErrDuplicateExternalKey; the caller's
// transaction stays usable either way.
func InsertUnique(ctx context.Context, tx *gorm.DB, e *models.DistributionLogEntry) error {
	err := tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(e).Error
	})
	if err == nil {
		return nil
	}
	e.ID = 0
	if database.IsDuplicateKey(err) {
		return ErrDuplicateExternalKey
	}
	return fmt.Errorf("insert distribution entry: %w", err)
}

// FindSoftDuplicate returns an existing entry with the same order number, ship
// date and facility name, or nil. The match is advisory; nothing enforces it.
func FindSoftDuplicate(ctx context.Context, tx *gorm.DB, orderNumber string, shipDate time.Time, facilityName string) (*models.DistributionLogEntry, error) {
	var e models.DistributionLogEntry
	err := tx.WithContext(ctx).
		Where("order_number = ? AND ship_date = ? AND facility_name = ?", orderNumber, DateOf(shipDate), facilityName).
		Order("id").
		First(&e).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("soft duplicate lookup: %w", err)
	}
	return &e, nil
}
