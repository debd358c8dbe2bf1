// Package salesorders links distribution entries to sales orders and keeps
// order-level records in sync with their sources.
package salesorders

import (
	"context"
	"fmt"

	"github.com/silq-qms/qmsgo/internal/database"
	"github.com/silq-qms/qmsgo/internal/models"
	"gorm.io/gorm"
)

// FindByOrderNumber returns the oldest sales order carrying orderNumber, or nil.
// Matching is exact and case-sensitive.
func FindByOrderNumber(ctx context.Context, tx *gorm.DB, orderNumber string) (*models.SalesOrder, error) {
	if orderNumber == "" {
		return nil, nil
	}
	var so models.SalesOrder
	err := tx.WithContext(ctx).Where("order_number = ?", orderNumber).Order("id").First(&so).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find sales order %q: %w", orderNumber, err)
	}
	return &so, nil
}

// LinkEntry sets entry.SalesOrderID from the sales order with the same order
// number. It reports whether a link was made; an unmatched entry is not an error.
func LinkEntry(ctx context.Context, tx *gorm.DB, entry *models.DistributionLogEntry) (bool, error) {
	if entry.SalesOrderID != nil {
		return false, nil
	}
	so, err := FindByOrderNumber(ctx, tx, entry.OrderNumber)
	if err != nil || so == nil {
		return false, err
	}
	if err := tx.WithContext(ctx).Model(entry).Update("sales_order_id", so.ID).Error; err != nil {
		return false, fmt.Errorf("link entry %d to sales order %d: %w", entry.ID, so.ID, err)
	}
	entry.SalesOrderID = &so.ID
	return true, nil
}

// LinkOrderEntries attaches every unlinked entry with so's order number to so
func LinkOrderEntries(ctx context.Context, tx *gorm.DB, so *models.SalesOrder) (int64, error) {
	res := tx.WithContext(ctx).Model(&models.DistributionLogEntry{}).
		Where("order_number = ? AND sales_order_id IS NULL", so.OrderNumber).
		Update("sales_order_id", so.ID)
	if res.Error != nil {
		return 0, fmt.Errorf("link entries for order %s: %w", so.OrderNumber, res.Error)
	}
	return res.RowsAffected, nil
}

// PropagateCustomer makes so's customer authoritative over its linked entries
func PropagateCustomer(ctx context.Context, tx *gorm.DB, so *models.SalesOrder) (int64, error) {
	if so.CustomerID == nil {
		return 0, nil
	}
	res := tx.WithContext(ctx).Model(&models.DistributionLogEntry{}).
		Where("sales_order_id = ? AND (customer_id IS NULL OR customer_id <> ?)", so.ID, *so.CustomerID).
		Update("customer_id", *so.CustomerID)
	if res.Error != nil {
		return 0, fmt.Errorf("propagate customer for order %s: %w", so.OrderNumber, res.Error)
	}
	return res.RowsAffected, nil
}
