package shipstation

import (
	"context"
	"errors"
	"fmt"

	"github.com/silq-qms/qmsgo/internal/models"
	"gorm.io/gorm"
)

// ErrRunNotFound is returned when a run id does not exist
var ErrRunNotFound = errors.New("sync run not found")

// ListRuns returns the most recent runs, newest first
func ListRuns(ctx context.Context, db *gorm.DB, limit int) ([]models.ShipStationSyncRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var runs []models.ShipStationSyncRun
	err := db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, nil
}

// GetRun loads a run together with its skipped orders
func GetRun(ctx context.Context, db *gorm.DB, id int64) (*models.ShipStationSyncRun, error) {
	var run models.ShipStationSyncRun
	err := db.WithContext(ctx).
		Preload("Skipped", func(q *gorm.DB) *gorm.DB { return q.Order("id") }).
		First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load sync run %d: %w", id, err)
	}
	return &run, nil
}
