package reports

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/normalize"
	"github.com/silq-qms/qmsgo/internal/storage"
	"github.com/silq-qms/qmsgo/internal/testutil"
	"gorm.io/gorm"
)

func seedEntries(t *testing.T, db *gorm.DB) (repID, customerID int64) {
	t.Helper()
	rep := models.Rep{Name: "Dana Rep", Email: "dana@example.com", Active: true}
	if err := db.Create(&rep).Error; err != nil {
		t.Fatalf("create rep: %v", err)
	}
	cust := models.Customer{CompanyKey: "HOSPITALA", FacilityName: "Hospital A", City: "Austin", State: "TX", PrimaryRepID: &rep.ID}
	if err := db.Create(&cust).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}
	other := models.Customer{CompanyKey: "CLINICB", FacilityName: "Clinic B", City: "Dallas", State: "TX"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}

	day := func(d int, m time.Month) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }
	entries := []models.DistributionLogEntry{
		{ShipDate: day(20, time.May), OrderNumber: "B-2", FacilityName: "Hospital A", City: "Austin", State: "TX", SKU: normalize.SKU14, LotNumber: "SLQ-11111", Quantity: 2, Source: models.SourceManual, CustomerID: &cust.ID},
		{ShipDate: day(3, time.May), OrderNumber: "A-1", FacilityName: "Clinic B", City: "Dallas", State: "TX", SKU: normalize.SKU16, LotNumber: "SLQ-22222", Quantity: 1, Source: models.SourceCSVImport, CustomerID: &other.ID},
		{ShipDate: day(20, time.May), OrderNumber: "A-9", FacilityName: "Hospital A", City: "Austin", State: "TX", SKU: normalize.SKU18, LotNumber: "SLQ-33333", Quantity: 5, Source: models.SourceManual, CustomerID: &cust.ID},
		{ShipDate: day(1, time.June), OrderNumber: "C-1", FacilityName: "Hospital A", City: "Austin", State: "TX", SKU: normalize.SKU14, LotNumber: "SLQ-44444", Quantity: 1, Source: models.SourceManual, CustomerID: &cust.ID},
	}
	if err := db.Create(&entries).Error; err != nil {
		t.Fatalf("create entries: %v", err)
	}
	return rep.ID, cust.ID
}

func newGenerator(t *testing.T) (*Generator, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	log := testutil.Logger(t)
	g := NewGenerator(store, audit.NewDBSink(log), log)
	tick := time.Date(2025, 6, 5, 8, 0, 0, 0, time.UTC)
	g.Clock = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return g, store
}

func TestGenerateIsDeterministic(t *testing.T) {
	db := testutil.NewDB(t)
	seedEntries(t, db)
	g, _ := newGenerator(t)
	ctx := context.Background()

	first, err := g.Generate(ctx, db, "2025-05", Filters{}, "qa")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := g.Generate(ctx, db, "2025-05", Filters{}, "qa")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if !bytes.Equal(first.CSV, second.CSV) {
		t.Errorf("CSV differs between runs")
	}
	if first.Report.SHA256 != second.Report.SHA256 || first.Report.RowCount != second.Report.RowCount {
		t.Errorf("digest or row count differ: %+v vs %+v", first.Report, second.Report)
	}
	if first.Report.ID == second.Report.ID || first.Report.StorageKey == second.Report.StorageKey {
		t.Errorf("regeneration must insert a new report")
	}
	if first.Report.RowCount != 3 {
		t.Errorf("row count = %d, want 3", first.Report.RowCount)
	}
	if !strings.HasPrefix(first.Report.StorageKey, "tracing_reports/2025-05/"+first.Report.FilterHash+"/") {
		t.Errorf("storage key = %s", first.Report.StorageKey)
	}

	want := "Ship Date,Order #,Facility,City,State,SKU,Lot,Quantity,Rep,Source\n" +
		"2025-05-03,A-1,Clinic B,Dallas,TX,211610SPT,SLQ-22222,1,,csv_import\n" +
		"2025-05-20,A-9,Hospital A,Austin,TX,211810SPT,SLQ-33333,5,Dana Rep,manual\n" +
		"2025-05-20,B-2,Hospital A,Austin,TX,211410SPT,SLQ-11111,2,Dana Rep,manual\n"
	if string(first.CSV) != want {
		t.Errorf("CSV =\n%s\nwant\n%s", first.CSV, want)
	}

	loaded, err := g.Load(ctx, db, first.Report.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded.CSV, first.CSV) {
		t.Errorf("stored bytes differ from generated bytes")
	}
}

func TestGenerateFilters(t *testing.T) {
	db := testutil.NewDB(t)
	repID, custID := seedEntries(t, db)
	g, _ := newGenerator(t)
	ctx := context.Background()

	cases := []struct {
		name string
		f    Filters
		rows int
	}{
		{"rep", Filters{RepID: &repID}, 2},
		{"source", Filters{Source: models.SourceCSVImport}, 1},
		{"all sources", Filters{Source: models.SourceAll}, 3},
		{"sku", Filters{SKU: normalize.SKU18}, 1},
		{"customer", Filters{CustomerID: &custID}, 2},
	}
	for _, tc := range cases {
		res, err := g.Generate(ctx, db, "2025-05", tc.f, "qa")
		if err != nil {
			t.Fatalf("%s: Generate: %v", tc.name, err)
		}
		if res.Report.RowCount != tc.rows {
			t.Errorf("%s: rows = %d, want %d", tc.name, res.Report.RowCount, tc.rows)
		}
	}

	if _, err := g.Generate(ctx, db, "2025-5", Filters{}, "qa"); !errors.Is(err, ErrInvalidMonth) {
		t.Errorf("expected ErrInvalidMonth, got %v", err)
	}
	if _, err := g.Generate(ctx, db, "2025-05", Filters{SKU: "BOGUS"}, "qa"); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestFilterHashIgnoresEmptyAndAll(t *testing.T) {
	a, _ := FilterHash(Filters{})
	b, _ := FilterHash(Filters{Source: models.SourceAll})
	c, _ := FilterHash(Filters{Source: models.SourceManual})
	if a != b {
		t.Errorf("empty and all should hash equal: %s vs %s", a, b)
	}
	if a == c || len(a) != 12 {
		t.Errorf("unexpected hashes %s %s", a, c)
	}
}

func TestRenderPDF(t *testing.T) {
	db := testutil.NewDB(t)
	seedEntries(t, db)
	g, _ := newGenerator(t)

	res, err := g.Generate(context.Background(), db, "2025-05", Filters{}, "qa")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	out, err := RenderPDF(res.Report, res.CSV)
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Errorf("output is not a PDF")
	}
}

type failingSink struct{}

func (failingSink) Record(ctx context.Context, tx *gorm.DB, ev audit.Event) error {
	return errors.New("audit unavailable")
}

func TestGenerateRemovesArtifactWhenRowNotWritten(t *testing.T) {
	db := testutil.NewDB(t)
	seedEntries(t, db)
	dir := t.TempDir()
	store, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	g := NewGenerator(store, failingSink{}, testutil.Logger(t))

	if _, err := g.Generate(context.Background(), db, "2025-05", Filters{}, "qa"); err == nil {
		t.Fatal("expected audit failure")
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return err
	})
	if err != nil {
		t.Fatalf("walk store: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("orphaned artifacts: %v", files)
	}
}
