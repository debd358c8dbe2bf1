package shipstation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/config"
	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/lotlog"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/normalize"
	"github.com/silq-qms/qmsgo/internal/testutil"
	"gorm.io/gorm"
)

var syncNow = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type fakeAPI struct {
	orders    []Order
	shipments map[int64][]Shipment
	getErr    map[int64]error
	pageSize  int
}

func (f *fakeAPI) ListOrders(ctx context.Context, start, end time.Time, page, pageSize int) (*OrdersPage, error) {
	size := f.pageSize
	if size <= 0 {
		size = len(f.orders) + 1
	}
	pages := (len(f.orders) + size - 1) / size
	from := (page - 1) * size
	if from > len(f.orders) {
		from = len(f.orders)
	}
	to := from + size
	if to > len(f.orders) {
		to = len(f.orders)
	}
	return &OrdersPage{Orders: f.orders[from:to], Total: len(f.orders), Page: page, Pages: pages}, nil
}

func (f *fakeAPI) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	if err := f.getErr[orderID]; err != nil {
		return nil, err
	}
	for _, o := range f.orders {
		if o.OrderID == orderID {
			o := o
			return &o, nil
		}
	}
	return nil, &APIError{StatusCode: 404, Path: "/orders"}
}

func (f *fakeAPI) ListShipments(ctx context.Context, orderID int64, page, pageSize int) (*ShipmentsPage, error) {
	sh := f.shipments[orderID]
	return &ShipmentsPage{Shipments: sh, Total: len(sh), Page: 1, Pages: 1}, nil
}

func testOrder(id int64, facility string) Order {
	return Order{
		OrderID:       id,
		OrderNumber:   fmt.Sprintf("SO-%d", id),
		OrderDate:     "2025-05-28T10:00:00.0000000",
		CustomerEmail: fmt.Sprintf("buyer%d@clinic%d.example.com", id, id),
		ShipTo: Address{
			Name:       "Receiving",
			Company:    facility,
			Street1:    fmt.Sprintf("%d Main St", id),
			City:       "Austin",
			State:      "TX",
			PostalCode: fmt.Sprintf("787%02d", id),
		},
		Items:         []Item{{SKU: normalize.SKU14, Name: "Device 14", Quantity: 1}},
		InternalNotes: "LOT: SLQ-12345",
	}
}

func testShipment(id int64) Shipment {
	return Shipment{ShipmentID: id, ShipDate: "2025-06-02", TrackingNumber: fmt.Sprintf("1Z%d", id), CarrierCode: "ups"}
}

// tenRowAPI yields ten shipment rows where the last repeats a shipment id
func tenRowAPI() *fakeAPI {
	api := &fakeAPI{shipments: map[int64][]Shipment{}}
	for i := int64(1); i <= 5; i++ {
		api.orders = append(api.orders, testOrder(i, fmt.Sprintf("Clinic %d", i)))
		api.shipments[i] = []Shipment{testShipment(i * 100), testShipment(i*100 + 1)}
	}
	api.shipments[5][1] = testShipment(500)
	return api
}

func newSyncService(t *testing.T, db *gorm.DB, api API, lots LotLookup) *SyncService {
	t.Helper()
	log := testutil.Logger(t)
	svc := NewSyncService(api, db, customers.NewMatcher(log), lots, audit.NewDBSink(log),
		config.ShipStationConfig{PageSize: 2, MaxPages: 10, LookbackDays: 30}, log)
	svc.Clock = func() time.Time { return syncNow }
	return svc
}

func countEntries(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.DistributionLogEntry{}).Count(&n).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return n
}

func TestSyncSkipsDuplicateExternalKey(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newSyncService(t, db, tenRowAPI(), lotlog.Empty())

	sum, err := svc.Run(context.Background(), RunOptions{TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.SyncedCount != 9 || sum.SkippedCount != 1 {
		t.Fatalf("synced=%d skipped=%d, want 9 and 1", sum.SyncedCount, sum.SkippedCount)
	}
	if sum.SyncedCount+sum.SkippedCount != 10 {
		t.Errorf("attempted rows not accounted for")
	}
	if sum.Skips[0].Reason != models.SkipReasonDuplicateExternalKey || sum.Skips[0].ShipmentID != "500" {
		t.Errorf("unexpected skip: %+v", sum.Skips[0])
	}
	if sum.Status != models.SyncRunStatusPartial {
		t.Errorf("status = %s", sum.Status)
	}
	if got := countEntries(t, db); got != 9 {
		t.Errorf("entries = %d, want 9", got)
	}

	run, err := GetRun(context.Background(), db, sum.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.SyncedCount != 9 || len(run.Skipped) != 1 || run.Skipped[0].Reason != models.SkipReasonDuplicateExternalKey {
		t.Errorf("persisted run mismatch: %+v", run)
	}

	var e models.DistributionLogEntry
	if err := db.Where("order_number = ?", "SO-1").First(&e).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if e.LotNumber != "SLQ-12345" || e.SKU != normalize.SKU14 || e.SalesOrderID == nil || e.CustomerID == nil {
		t.Errorf("entry not fully populated: %+v", e)
	}
	if e.ExternalKey == nil || *e.ExternalKey != "100:211410SPT:SLQ-12345" {
		t.Errorf("external key = %v", e.ExternalKey)
	}
}

func TestSyncRerunIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	api := tenRowAPI()
	svc := newSyncService(t, db, api, lotlog.Empty())

	if _, err := svc.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := svc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.SyncedCount != 0 || sum.SkippedCount != 10 {
		t.Errorf("second run synced=%d skipped=%d", sum.SyncedCount, sum.SkippedCount)
	}
	if got := countEntries(t, db); got != 9 {
		t.Errorf("entries = %d, want 9", got)
	}
	var orders int64
	db.Model(&models.SalesOrder{}).Count(&orders)
	if orders != 5 {
		t.Errorf("sales orders = %d, want 5", orders)
	}

	runs, err := ListRuns(context.Background(), db, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("runs = %d", len(runs))
	}
}

func TestSyncSkipReasons(t *testing.T) {
	db := testutil.NewDB(t)

	noID := testOrder(0, "Nameless")
	noShip := testOrder(2, "Clinic Voided")
	badItems := testOrder(3, "Clinic Shipping")
	badItems.Items = []Item{{SKU: "SHIPPING", Name: "Freight charge", Quantity: 1}}
	good := testOrder(4, "Clinic Good")
	good.Items = []Item{{SKU: "", Name: "Device 211610SPT 10-pack", Quantity: 2}}

	api := &fakeAPI{
		orders: []Order{noID, noShip, badItems, good},
		shipments: map[int64][]Shipment{
			2: {{ShipmentID: 20, ShipDate: "2025-06-01", Voided: true}},
			3: {testShipment(30)},
			4: {testShipment(40)},
		},
	}
	svc := newSyncService(t, db, api, lotlog.Empty())

	sum, err := svc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	reasons := map[string]int{}
	for _, sk := range sum.Skips {
		reasons[sk.Reason]++
	}
	for _, want := range []string{
		models.SkipReasonMissingOrderIDOrNumber,
		models.SkipReasonNoShipments,
		models.SkipReasonNoValidItems,
	} {
		if reasons[want] != 1 {
			t.Errorf("reason %s count = %d", want, reasons[want])
		}
	}
	if sum.SyncedCount != 1 || sum.ShipmentsSeen != 2 {
		t.Errorf("synced=%d shipments=%d", sum.SyncedCount, sum.ShipmentsSeen)
	}

	var e models.DistributionLogEntry
	if err := db.Where("order_number = ?", "SO-4").First(&e).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if e.SKU != normalize.SKU16 || e.Quantity != 20 {
		t.Errorf("sku=%s qty=%d, want %s and 20", e.SKU, e.Quantity, normalize.SKU16)
	}
}

func TestSyncLotCorrectionAndMismatch(t *testing.T) {
	db := testutil.NewDB(t)
	lots := lotlog.Empty()
	if err := lots.Add("SLQ-1234", "SLQ-01234", normalize.SKU18); err != nil {
		t.Fatalf("Add: %v", err)
	}

	o := testOrder(1, "Clinic Lots")
	o.InternalNotes = "shipped lot SLQ1234 today"
	o.Items = []Item{
		{SKU: normalize.SKU18, Quantity: 1},
		{SKU: normalize.SKU14, Quantity: 1},
	}
	api := &fakeAPI{orders: []Order{o}, shipments: map[int64][]Shipment{1: {testShipment(10)}}}

	sum, err := newSyncService(t, db, api, lots).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.SyncedCount != 2 {
		t.Fatalf("synced = %d", sum.SyncedCount)
	}

	var rows []models.DistributionLogEntry
	db.Order("sku").Find(&rows)
	got := map[string]string{}
	for _, r := range rows {
		got[r.SKU] = r.LotNumber
	}
	if got[normalize.SKU18] != "SLQ-01234" {
		t.Errorf("18 lot = %q", got[normalize.SKU18])
	}
	if got[normalize.SKU14] != normalize.UnknownLot {
		t.Errorf("14 lot = %q, want UNKNOWN on SKU mismatch", got[normalize.SKU14])
	}
}

func TestSyncFatalErrorRecordsFailedRun(t *testing.T) {
	db := testutil.NewDB(t)
	api := tenRowAPI()
	api.getErr = map[int64]error{3: fmt.Errorf("%w: /orders/3", ErrRetriesExhausted)}
	svc := newSyncService(t, db, api, lotlog.Empty())

	sum, err := svc.Run(context.Background(), RunOptions{})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if sum == nil || sum.Status != models.SyncRunStatusFailed {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.SyncedCount != 4 {
		t.Errorf("synced before failure = %d, want 4", sum.SyncedCount)
	}
	if got := countEntries(t, db); got != 4 {
		t.Errorf("entries kept = %d, want 4", got)
	}

	var ev models.AuditEvent
	if err := db.Where("action = ?", audit.ActionSyncRunFailed).First(&ev).Error; err != nil {
		t.Errorf("missing run_failed audit event: %v", err)
	}
}

// cancelingAPI cancels the run context once a given order is fetched
type cancelingAPI struct {
	*fakeAPI
	cancelAt int64
	cancel   context.CancelFunc
}

func (c *cancelingAPI) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	if orderID == c.cancelAt {
		c.cancel()
	}
	return c.fakeAPI.GetOrder(ctx, orderID)
}

func TestSyncCancelledRunKeepsInsertedRows(t *testing.T) {
	db := testutil.NewDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &cancelingAPI{fakeAPI: tenRowAPI(), cancelAt: 3, cancel: cancel}
	svc := newSyncService(t, db, api, lotlog.Empty())

	sum, err := svc.Run(ctx, RunOptions{TriggeredBy: "ops@example.com"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum == nil || sum.Status != models.SyncRunStatusFailed {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.SyncedCount != 4 {
		t.Errorf("synced = %d, want 4", sum.SyncedCount)
	}
	if got := countEntries(t, db); got != 4 {
		t.Errorf("entries kept = %d, want 4", got)
	}

	var runs []models.ShipStationSyncRun
	if err := db.Find(&runs).Error; err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != models.SyncRunStatusFailed {
		t.Fatalf("runs = %+v", runs)
	}
	var n int64
	db.Model(&models.AuditEvent{}).Where("action = ?", audit.ActionSyncRunFailed).Count(&n)
	if n != 1 {
		t.Errorf("run_failed events = %d, want 1", n)
	}
}

func TestBoundedJSONStaysWithinBudget(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"escaped quotes": {"error": strings.Repeat("<\"", 2000)},
		"html":           {"error": strings.Repeat("&<>", 3000)},
		"multibyte":      {"error": strings.Repeat("é\"", 1500)},
		"plain":          {"error": strings.Repeat("x", 5000)},
	}
	for name, details := range cases {
		out := boundedJSON(details)
		if len(out) > maxSkipDetailBytes {
			t.Errorf("%s: len = %d, want <= %d", name, len(out), maxSkipDetailBytes)
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(out, &decoded); err != nil {
			t.Errorf("%s: invalid json: %v", name, err)
			continue
		}
		if decoded["truncated"] != true {
			t.Errorf("%s: missing truncated flag: %v", name, decoded)
		}
	}

	small := boundedJSON(map[string]interface{}{"sku": "211410SPT"})
	if string(small) != `{"sku":"211410SPT"}` {
		t.Errorf("small payload = %s", small)
	}
}
