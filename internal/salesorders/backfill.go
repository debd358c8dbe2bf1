package salesorders

import (
	"context"
	"fmt"

	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const backfillBatchSize = 200

// BackfillResult reports what a backfill pass changed
type BackfillResult struct {
	Scanned             int   `json:"scanned"`
	Linked              int   `json:"linked"`
	CustomersPropagated int64 `json:"customersPropagated"`
	OrdersWithCustomer  int   `json:"ordersWithCustomer"`
}

// Backfill links every unlinked entry whose order number matches a sales order,
// then propagates each order's customer onto its linked entries.
func Backfill(ctx context.Context, tx *gorm.DB, log logrus.FieldLogger) (*BackfillResult, error) {
	log = log.WithField("module", "salesorders")
	out := &BackfillResult{}

	var pending []models.DistributionLogEntry
	res := tx.WithContext(ctx).
		Where("sales_order_id IS NULL AND order_number <> ''").
		Order("id").
		FindInBatches(&pending, backfillBatchSize, func(batch *gorm.DB, _ int) error {
			for i := range pending {
				out.Scanned++
				ok, err := LinkEntry(ctx, tx, &pending[i])
				if err != nil {
					return err
				}
				if ok {
					out.Linked++
				}
			}
			return nil
		})
	if res.Error != nil {
		return nil, fmt.Errorf("backfill links: %w", res.Error)
	}

	var orders []models.SalesOrder
	res = tx.WithContext(ctx).
		Where("customer_id IS NOT NULL").
		Order("id").
		FindInBatches(&orders, backfillBatchSize, func(batch *gorm.DB, _ int) error {
			for i := range orders {
				out.OrdersWithCustomer++
				n, err := PropagateCustomer(ctx, tx, &orders[i])
				if err != nil {
					return err
				}
				out.CustomersPropagated += n
			}
			return nil
		})
	if res.Error != nil {
		return nil, fmt.Errorf("backfill customers: %w", res.Error)
	}

	log.WithFields(logrus.Fields{
		"scanned":   out.Scanned,
		"linked":    out.Linked,
		"customers": out.CustomersPropagated,
	}).Info("sales order backfill complete")
	return out, nil
}
