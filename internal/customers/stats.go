package customers

import (
	"context"
	"fmt"

	"github.com/silq-qms/qmsgo/internal/database"
	"github.com/silq-qms/qmsgo/internal/models"
	"gorm.io/gorm"
)

// Stats summarizes a customer's ordering history.
// Only distribution entries linked to a sales order are counted.
type Stats struct {
	CustomerID    int64 `json:"customerId"`
	OrderCount    int64 `json:"orderCount"`
	TotalUnits    int64 `json:"totalUnits"`
	LinkedEntries int64 `json:"linkedEntries"`
}

// GetStats returns order/unit totals for a customer, or ErrNotFound
func GetStats(ctx context.Context, db *gorm.DB, customerID int64) (*Stats, error) {
	db = db.WithContext(ctx)

	var c models.Customer
	if err := db.Select("id").First(&c, customerID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load customer %d: %w", customerID, err)
	}

	var row struct {
		OrderCount    int64
		TotalUnits    int64
		LinkedEntries int64
	}
	err := db.Model(&models.DistributionLogEntry{}).
		Select("COUNT(DISTINCT sales_order_id) AS order_count, COALESCE(SUM(quantity), 0) AS total_units, COUNT(*) AS linked_entries").
		Where("customer_id = ? AND sales_order_id IS NOT NULL", customerID).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("customer %d stats: %w", customerID, err)
	}

	return &Stats{
		CustomerID:    customerID,
		OrderCount:    row.OrderCount,
		TotalUnits:    row.TotalUnits,
		LinkedEntries: row.LinkedEntries,
	}, nil
}
