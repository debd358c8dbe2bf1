// Package testutil provides a migrated throwaway database for package tests.
package testutil

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/silq-qms/qmsgo/internal/database"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Logger returns a logger that discards output unless -v is set
func Logger(t testing.TB) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	if !testing.Verbose() {
		l.SetOutput(io.Discard)
	}
	return l
}

// NewDB opens a fresh SQLite file under t.TempDir() with the full schema applied
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "qms_test.db"), Logger(t))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db.DB); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.DB
}
