package distribution

import (
	"testing"
	"time"

	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/models"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fields(errs []FieldError) map[string]bool {
	m := map[string]bool{}
	for _, e := range errs {
		m[e.Field] = true
	}
	return m
}

func TestFromManualValid(t *testing.T) {
	rec, errs := FromManual(ManualInput{
		ShipDate:     "2025-05-30",
		FacilityName: " Hospital A ",
		SKU:          "211410spt",
		LotNumber:    "12345",
		Quantity:     3,
	}, fixedNow)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if rec.SKU != "211410SPT" || rec.LotNumber != "SLQ-12345" || rec.Dest.FacilityName != "Hospital A" {
		t.Errorf("unexpected record %+v", rec)
	}
	if !rec.ShipDate.Equal(time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ship date = %v", rec.ShipDate)
	}
}

func TestFromManualCollectsEveryError(t *testing.T) {
	_, errs := FromManual(ManualInput{
		ShipDate:  "2025-06-02",
		SKU:       "widget",
		LotNumber: "SLQ-123456",
		Quantity:  0,
	}, fixedNow)
	got := fields(errs)
	for _, f := range []string{"shipDate", "facilityName", "sku", "lotNumber", "quantity"} {
		if !got[f] {
			t.Errorf("missing error for %s in %v", f, errs)
		}
	}
	if len(errs) != 5 {
		t.Errorf("got %d errors, want one per field: %v", len(errs), errs)
	}
}

func TestShipDateTodayIsAllowed(t *testing.T) {
	_, errs := FromManual(ManualInput{
		ShipDate: "2025-06-01", FacilityName: "A", SKU: "211410SPT", LotNumber: "SLQ-00001", Quantity: 1,
	}, fixedNow)
	if len(errs) != 0 {
		t.Errorf("today rejected: %v", errs)
	}
}

func TestFromCSVRowQuantity(t *testing.T) {
	_, errs := FromCSVRow(CsvRowInput{
		Row: 2, ShipDate: "5/1/2025", FacilityName: "A", SKU: "211610SPT", LotNumber: "SLQ-00001", Quantity: "two",
	}, fixedNow)
	if len(errs) != 1 || errs[0].Field != "quantity" {
		t.Errorf("errors = %v, want one quantity error", errs)
	}
}

func TestShipmentLotIsPermissive(t *testing.T) {
	rec, errs := FromShipment(ShipmentInput{
		ShipmentID:  "9001",
		OrderNumber: "SS-1",
		ShipDate:    time.Date(2025, 5, 1, 15, 30, 0, 0, time.UTC),
		ShipTo:      customers.ShipTo{FacilityName: "Hospital A"},
		SKU:         "211810SPT",
		LotNumber:   "SLQ-05012025",
		Quantity:    10,
	}, fixedNow)
	if len(errs) != 0 {
		t.Fatalf("8-digit lot rejected on fulfillment path: %v", errs)
	}
	if rec.ExternalKey != "9001:211810SPT:SLQ-05012025" {
		t.Errorf("external key = %q", rec.ExternalKey)
	}
	if rec.ShipDate.Hour() != 0 {
		t.Errorf("ship date not truncated: %v", rec.ShipDate)
	}

	// the same lot fails the strict grammar on the manual path
	_, errs = FromManual(ManualInput{
		ShipDate: "2025-05-01", FacilityName: "Hospital A", SKU: "211810SPT", LotNumber: "SLQ-05012025", Quantity: 1,
	}, fixedNow)
	if !fields(errs)["lotNumber"] {
		t.Error("manual path accepted a non-5-digit lot")
	}
}

func TestAllIsNotARecordSource(t *testing.T) {
	errs := ValidateRecord(Record{
		Source:    models.SourceAll,
		ShipDate:  time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Dest:      customers.ShipTo{FacilityName: "A"},
		SKU:       "211410SPT",
		LotNumber: "SLQ-00001",
		Quantity:  1,
	}, fixedNow)
	if !fields(errs)["source"] {
		t.Errorf("source \"all\" accepted on a record: %v", errs)
	}
}

func TestGenerateOrderNumber(t *testing.T) {
	if got := GenerateOrderNumber(models.SourceManual, fixedNow); got != "MAN-20250601120000" {
		t.Errorf("got %q", got)
	}
	if got := GenerateOrderNumber(models.SourceCSVImport, fixedNow); got != "CSV-20250601120000" {
		t.Errorf("got %q", got)
	}
}

func TestConvertDispatch(t *testing.T) {
	var in Input = CsvRowInput{Row: 2, ShipDate: "2025-05-01", FacilityName: "A", SKU: "14", LotNumber: "00001", Quantity: "1"}
	rec, errs := Convert(in, fixedNow)
	if len(errs) != 0 || rec.Source != models.SourceCSVImport {
		t.Errorf("Convert: %+v %v", rec, errs)
	}
}
