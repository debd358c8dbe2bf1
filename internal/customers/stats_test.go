package customers

import (
	"context"
	"testing"
	"time"

	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/testutil"
)

func TestStatsCountOnlyLinkedEntries(t *testing.T) {
	db := testutil.NewDB(t)
	c := seed(t, db, models.Customer{CompanyKey: "HOSPITALA", FacilityName: "Hospital A"})

	so1 := models.SalesOrder{Source: models.SourcePDFImport, OrderNumber: "SO-1", CustomerID: &c.ID}
	so2 := models.SalesOrder{Source: models.SourcePDFImport, OrderNumber: "SO-2", CustomerID: &c.ID}
	db.Create(&so1)
	db.Create(&so2)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.DistributionLogEntry{
		{ShipDate: day, OrderNumber: "SO-1", FacilityName: "Hospital A", SKU: "211410SPT", LotNumber: "SLQ-00001", Quantity: 5, Source: models.SourceManual, CustomerID: &c.ID, SalesOrderID: &so1.ID},
		{ShipDate: day, OrderNumber: "SO-1", FacilityName: "Hospital A", SKU: "211610SPT", LotNumber: "SLQ-00002", Quantity: 3, Source: models.SourceManual, CustomerID: &c.ID, SalesOrderID: &so1.ID},
		{ShipDate: day, OrderNumber: "SO-2", FacilityName: "Hospital A", SKU: "211410SPT", LotNumber: "SLQ-00001", Quantity: 2, Source: models.SourceManual, CustomerID: &c.ID, SalesOrderID: &so2.ID},
		// unlinked, excluded
		{ShipDate: day, OrderNumber: "MAN-1", FacilityName: "Hospital A", SKU: "211410SPT", LotNumber: "SLQ-00001", Quantity: 100, Source: models.SourceManual, CustomerID: &c.ID},
	}
	if err := db.Create(&entries).Error; err != nil {
		t.Fatalf("seed entries: %v", err)
	}

	s, err := GetStats(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if s.OrderCount != 2 {
		t.Errorf("order count = %d, want 2", s.OrderCount)
	}
	if s.TotalUnits != 10 {
		t.Errorf("total units = %d, want 10", s.TotalUnits)
	}
	if s.LinkedEntries != 3 {
		t.Errorf("linked entries = %d, want 3", s.LinkedEntries)
	}

	if _, err := GetStats(context.Background(), db, 9999); err != ErrNotFound {
		t.Errorf("missing customer err = %v, want ErrNotFound", err)
	}
}
