package salesorders

import (
	"context"
	"errors"
	"fmt"

	"github.com/silq-qms/qmsgo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNoExternalKey = errors.New("sales order external key is required")

// Upsert writes so keyed by (Source, ExternalKey) and replaces its lines.
// On return so.ID is the persisted row's id.
func Upsert(ctx context.Context, tx *gorm.DB, so *models.SalesOrder, lines []models.SalesOrderLine) error {
	if so.ExternalKey == nil || *so.ExternalKey == "" {
		return errNoExternalKey
	}
	db := tx.WithContext(ctx)

	so.ID = 0
	so.Lines = nil
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source"}, {Name: "external_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"order_number", "order_date", "customer_id", "customer_number",
			"ship_to_name", "ship_to_address1", "ship_to_city", "ship_to_state", "ship_to_zip",
			"status", "updated_at",
		}),
	}).Create(so).Error
	if err != nil {
		return fmt.Errorf("upsert sales order %s/%s: %w", so.Source, *so.ExternalKey, err)
	}

	// re-read: the conflict path does not reliably report the existing id
	var stored models.SalesOrder
	if err := db.Where("source = ? AND external_key = ?", so.Source, *so.ExternalKey).First(&stored).Error; err != nil {
		return fmt.Errorf("reload sales order %s/%s: %w", so.Source, *so.ExternalKey, err)
	}
	so.ID = stored.ID
	so.CreatedAt = stored.CreatedAt

	if err := db.Where("sales_order_id = ?", so.ID).Delete(&models.SalesOrderLine{}).Error; err != nil {
		return fmt.Errorf("clear lines for sales order %d: %w", so.ID, err)
	}
	for i := range lines {
		lines[i].ID = 0
		lines[i].SalesOrderID = so.ID
	}
	if len(lines) > 0 {
		if err := db.Create(&lines).Error; err != nil {
			return fmt.Errorf("write lines for sales order %d: %w", so.ID, err)
		}
	}
	so.Lines = lines
	return nil
}
