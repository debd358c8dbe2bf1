package database

import (
	"fmt"

	"github.com/silq-qms/qmsgo/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates every table and index the service relies on.
// The unique indexes on customers.company_key and (source, external_key) are
// what make concurrent ingestion safe, so a failed migration is fatal.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Migrate runs the schema migration on the wrapped connection
func (db *DB) Migrate() error {
	db.log.Info("running schema migration")
	return Migrate(db.DB)
}
