package shipstation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/config"
	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/distribution"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/normalize"
	"github.com/silq-qms/qmsgo/internal/salesorders"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// skip diagnostics are capped so a run log stays bounded
const maxSkipDetailBytes = 2048

const syncActor = "shipstation-sync"

// API is the subset of the fulfillment API the sync needs
type API interface {
	ListOrders(ctx context.Context, start, end time.Time, page, pageSize int) (*OrdersPage, error)
	GetOrder(ctx context.Context, orderID int64) (*Order, error)
	ListShipments(ctx context.Context, orderID int64, page, pageSize int) (*ShipmentsPage, error)
}

// LotLookup resolves lots against the lot log
type LotLookup interface {
	Correct(lot string) string
	ExpectedSKU(lot string) (string, bool)
}

// RunOptions bounds one sync run. Zero times default to the configured lookback window.
type RunOptions struct {
	Start       time.Time
	End         time.Time
	TriggeredBy string
}

// Skip is one non-fatal decision not to ingest an order or row
type Skip struct {
	OrderID     string                 `json:"orderId"`
	OrderNumber string                 `json:"orderNumber"`
	ShipmentID  string                 `json:"shipmentId,omitempty"`
	Reason      string                 `json:"reason"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Summary is the outcome of a run
type Summary struct {
	RunID           int64   `json:"runId"`
	RunUUID         string  `json:"runUuid"`
	Status          string  `json:"status"`
	OrdersSeen      int     `json:"ordersSeen"`
	ShipmentsSeen   int     `json:"shipmentsSeen"`
	SyncedCount     int     `json:"syncedCount"`
	SkippedCount    int     `json:"skippedCount"`
	DurationSeconds float64 `json:"durationSeconds"`
	Message         string  `json:"message"`
	Skips           []Skip  `json:"skips"`
}

// SyncService drives a bounded, paginated pull of shipped orders
type SyncService struct {
	api     API
	db      *gorm.DB
	matcher *customers.Matcher
	lots    LotLookup
	sink    audit.Sink
	log     logrus.FieldLogger

	pageSize     int
	maxPages     int
	lookbackDays int

	// Clock is overridable for tests
	Clock func() time.Time
}

// NewSyncService wires the orchestrator
func NewSyncService(api API, db *gorm.DB, matcher *customers.Matcher, lots LotLookup, sink audit.Sink, cfg config.ShipStationConfig, log logrus.FieldLogger) *SyncService {
	s := &SyncService{
		api:          api,
		db:           db,
		matcher:      matcher,
		lots:         lots,
		sink:         sink,
		log:          log.WithField("module", "shipstation_sync"),
		pageSize:     cfg.PageSize,
		maxPages:     cfg.MaxPages,
		lookbackDays: cfg.LookbackDays,
		Clock:        time.Now,
	}
	if s.pageSize <= 0 {
		s.pageSize = 100
	}
	if s.maxPages <= 0 {
		s.maxPages = 50
	}
	if s.lookbackDays <= 0 {
		s.lookbackDays = 30
	}
	return s
}

// run holds the counters of one execution
type run struct {
	// dbCtx carries database work; it is detached from the caller so a
	// cancelled request still commits what was inserted plus a failed run.
	dbCtx   context.Context
	uuid    string
	log     logrus.FieldLogger
	now     time.Time
	summary Summary
	capped  bool
}

func (r *run) skip(o Order, shipmentID, reason string, details map[string]interface{}) {
	sk := Skip{
		OrderNumber: o.OrderNumber,
		ShipmentID:  shipmentID,
		Reason:      reason,
		Details:     details,
	}
	if o.OrderID != 0 {
		sk.OrderID = strconv.FormatInt(o.OrderID, 10)
	}
	r.summary.Skips = append(r.summary.Skips, sk)
	r.summary.SkippedCount++
	r.log.WithFields(logrus.Fields{
		"order_number": o.OrderNumber,
		"shipment_id":  shipmentID,
		"reason":       reason,
	}).Info("skipped")
}

// Run executes one sync. Every row is inserted under its own savepoint inside
// a single run transaction; the run record and skip rows are written at the end.
// A fatal API error or a cancelled ctx stops the run, but inserted rows are kept
// and committed together with a failed run record before the error is returned.
func (s *SyncService) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	started := s.Clock()
	end := opts.End
	if end.IsZero() {
		end = started
	}
	start := opts.Start
	if start.IsZero() {
		start = end.AddDate(0, 0, -s.lookbackDays)
	}

	r := &run{dbCtx: context.WithoutCancel(ctx), uuid: uuid.NewString(), now: started, summary: Summary{Skips: []Skip{}}}
	r.summary.RunUUID = r.uuid
	r.log = s.log.WithField("run_id", r.uuid)
	r.log.WithFields(logrus.Fields{"start": start, "end": end}).Info("shipstation sync started")

	tx := s.db.WithContext(r.dbCtx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin sync transaction: %w", tx.Error)
	}

	fatal := s.pullOrders(ctx, tx, r, start, end)

	finished := s.Clock()
	r.summary.DurationSeconds = finished.Sub(started).Seconds()
	switch {
	case fatal != nil:
		r.summary.Status = models.SyncRunStatusFailed
		r.summary.Message = "run aborted: " + fatal.Error()
	case r.summary.SkippedCount > 0:
		r.summary.Status = models.SyncRunStatusPartial
	default:
		r.summary.Status = models.SyncRunStatusSuccess
	}
	if fatal == nil {
		r.summary.Message = fmt.Sprintf("synced %d, skipped %d (%d orders, %d shipments)",
			r.summary.SyncedCount, r.summary.SkippedCount, r.summary.OrdersSeen, r.summary.ShipmentsSeen)
		if r.capped {
			r.summary.Message += fmt.Sprintf("; stopped at page limit %d", s.maxPages)
		}
	}

	if err := s.persistRun(r.dbCtx, tx, r, opts.TriggeredBy, start, end, started, finished, fatal); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit sync run: %w", err)
	}

	entry := r.log.WithFields(logrus.Fields{
		"synced":   r.summary.SyncedCount,
		"skipped":  r.summary.SkippedCount,
		"orders":   r.summary.OrdersSeen,
		"duration": r.summary.DurationSeconds,
	})
	if fatal != nil {
		entry.WithField("error", fatal).Error("shipstation sync failed")
		return &r.summary, fmt.Errorf("shipstation sync aborted: %w", fatal)
	}
	entry.Info("shipstation sync finished")
	return &r.summary, nil
}

// pullOrders walks the order pages. The returned error is fatal to the run.
func (s *SyncService) pullOrders(ctx context.Context, tx *gorm.DB, r *run, start, end time.Time) error {
	for page := 1; page <= s.maxPages; page++ {
		p, err := s.api.ListOrders(ctx, start, end, page, s.pageSize)
		if err != nil {
			return fmt.Errorf("list orders page %d: %w", page, err)
		}
		for _, o := range p.Orders {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("run interrupted: %w", err)
			}
			r.summary.OrdersSeen++
			if err := s.processOrder(ctx, tx, r, o); err != nil {
				return err
			}
		}
		if len(p.Orders) == 0 || page >= p.Pages {
			return nil
		}
		if page == s.maxPages {
			r.capped = true
		}
	}
	return nil
}

func (s *SyncService) processOrder(ctx context.Context, tx *gorm.DB, r *run, o Order) error {
	if o.OrderID == 0 || strings.TrimSpace(o.OrderNumber) == "" {
		r.skip(o, "", models.SkipReasonMissingOrderIDOrNumber, map[string]interface{}{
			"order_id":     o.OrderID,
			"order_number": o.OrderNumber,
		})
		return nil
	}

	detail, err := s.api.GetOrder(ctx, o.OrderID)
	if err != nil {
		return fmt.Errorf("get order %d: %w", o.OrderID, err)
	}
	if detail.OrderID == 0 {
		detail.OrderID = o.OrderID
	}
	if strings.TrimSpace(detail.OrderNumber) == "" {
		detail.OrderNumber = o.OrderNumber
	}
	order := *detail

	shipments, err := s.shipments(ctx, order.OrderID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted at order %d: %w", order.OrderID, err)
	}
	r.summary.ShipmentsSeen += len(shipments)
	if len(shipments) == 0 {
		r.skip(order, "", models.SkipReasonNoShipments, nil)
		return nil
	}

	units, dropped := unitMap(order.Items)
	if len(units) == 0 {
		r.skip(order, "", models.SkipReasonNoValidItems, map[string]interface{}{"items": dropped})
		return nil
	}

	lot, lotSource := s.resolveLot(order.InternalNotes)
	expected, hasExpected := "", false
	if lot != normalize.UnknownLot {
		expected, hasExpected = s.lots.ExpectedSKU(lot)
	}
	lotFor := func(sku string) string {
		if hasExpected && expected != sku {
			return normalize.UnknownLot
		}
		return lot
	}

	// customer and sales order share a savepoint so a failure here drops only this order
	var (
		customerID int64
		so         *models.SalesOrder
	)
	err = tx.Transaction(func(otx *gorm.DB) error {
		match, err := s.matcher.FindOrCreate(r.dbCtx, otx, shipTo(order))
		if err != nil {
			return fmt.Errorf("resolve customer: %w", err)
		}
		customerID = match.Customer.ID
		so, err = s.upsertSalesOrder(r.dbCtx, otx, order, customerID, units, lotFor)
		return err
	})
	if err != nil {
		r.skip(order, "", models.SkipReasonInsertFailed, map[string]interface{}{"stage": "customer", "error": err.Error()})
		return nil
	}

	r.log.WithFields(logrus.Fields{
		"order_number": order.OrderNumber,
		"lot":          lot,
		"lot_source":   lotSource,
		"skus":         len(units),
		"shipments":    len(shipments),
	}).Debug("processing order")

	for _, sh := range shipments {
		rowUnits := units
		if len(sh.ShipmentItems) > 0 {
			if own, _ := unitMap(sh.ShipmentItems); len(own) > 0 {
				rowUnits = own
			}
		}
		for _, sku := range sortedKeys(rowUnits) {
			s.insertRow(r.dbCtx, tx, r, order, sh, sku, rowUnits[sku], lotFor(sku), customerID, so.ID)
		}
	}
	return nil
}

func (s *SyncService) insertRow(ctx context.Context, tx *gorm.DB, r *run, o Order, sh Shipment, sku string, qty int, lot string, customerID, salesOrderID int64) {
	shipmentID := strconv.FormatInt(sh.ShipmentID, 10)
	shipDate, err := ParseShipDate(sh.ShipDate)
	if err != nil {
		r.skip(o, shipmentID, models.SkipReasonInsertFailed, map[string]interface{}{"sku": sku, "error": err.Error()})
		return
	}

	rec, errs := distribution.FromShipment(distribution.ShipmentInput{
		ShipmentID:     shipmentID,
		OrderNumber:    o.OrderNumber,
		ShipDate:       shipDate,
		ShipTo:         shipTo(o),
		SKU:            sku,
		LotNumber:      lot,
		Quantity:       qty,
		TrackingNumber: sh.TrackingNumber,
		CarrierCode:    sh.CarrierCode,
		ServiceCode:    sh.ServiceCode,
	}, r.now)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.String()
		}
		r.skip(o, shipmentID, models.SkipReasonInsertFailed, map[string]interface{}{"sku": sku, "errors": msgs})
		return
	}

	entry := distribution.Build(rec, &customerID, syncActor, r.now)
	entry.SalesOrderID = &salesOrderID

	err = distribution.InsertUnique(ctx, tx, entry)
	switch {
	case err == nil:
		r.summary.SyncedCount++
	case errors.Is(err, distribution.ErrDuplicateExternalKey):
		r.skip(o, shipmentID, models.SkipReasonDuplicateExternalKey, map[string]interface{}{"external_key": rec.ExternalKey})
	default:
		r.skip(o, shipmentID, models.SkipReasonInsertFailed, map[string]interface{}{"external_key": rec.ExternalKey, "error": err.Error()})
	}
}

// shipments returns every non-voided shipment of an order
func (s *SyncService) shipments(ctx context.Context, orderID int64) ([]Shipment, error) {
	var out []Shipment
	for page := 1; page <= s.maxPages; page++ {
		p, err := s.api.ListShipments(ctx, orderID, page, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list shipments for order %d: %w", orderID, err)
		}
		for _, sh := range p.Shipments {
			if !sh.Voided {
				out = append(out, sh)
			}
		}
		if len(p.Shipments) == 0 || page >= p.Pages {
			break
		}
	}
	return out, nil
}

// resolveLot extracts one lot per order from notes and applies corrections
func (s *SyncService) resolveLot(notes string) (lot, source string) {
	raw := normalize.ExtractLot(notes)
	if raw == "" {
		return normalize.UnknownLot, "missing"
	}
	fixed := s.lots.Correct(raw)
	if fixed != normalize.Lot(raw) {
		return fixed, "corrected"
	}
	return fixed, "notes"
}

func (s *SyncService) upsertSalesOrder(ctx context.Context, tx *gorm.DB, o Order, customerID int64, units map[string]int, lotFor func(string) string) (*models.SalesOrder, error) {
	ext := strconv.FormatInt(o.OrderID, 10)
	so := &models.SalesOrder{
		Source:         models.SourceShipStation,
		ExternalKey:    &ext,
		OrderNumber:    o.OrderNumber,
		CustomerID:     &customerID,
		ShipToName:     o.ShipTo.FacilityName(),
		ShipToAddress1: o.ShipTo.Street1,
		ShipToCity:     o.ShipTo.City,
		ShipToState:    o.ShipTo.State,
		ShipToZip:      o.ShipTo.PostalCode,
		Status:         "shipped",
	}
	if d, err := ParseShipDate(o.OrderDate); err == nil {
		so.OrderDate = &d
	}
	lines := make([]models.SalesOrderLine, 0, len(units))
	for _, sku := range sortedKeys(units) {
		lines = append(lines, models.SalesOrderLine{SKU: sku, Quantity: units[sku], LotNumber: lotFor(sku)})
	}
	if err := salesorders.Upsert(ctx, tx, so, lines); err != nil {
		return nil, err
	}
	return so, nil
}

func (s *SyncService) persistRun(ctx context.Context, tx *gorm.DB, r *run, triggeredBy string, start, end, started, finished time.Time, fatal error) error {
	db := tx.WithContext(ctx)
	row := models.ShipStationSyncRun{
		RunUUID:         r.uuid,
		Status:          r.summary.Status,
		StartedAt:       started.UTC(),
		FinishedAt:      ptrTime(finished.UTC()),
		DateStart:       start.UTC(),
		DateEnd:         end.UTC(),
		OrdersSeen:      r.summary.OrdersSeen,
		ShipmentsSeen:   r.summary.ShipmentsSeen,
		SyncedCount:     r.summary.SyncedCount,
		SkippedCount:    r.summary.SkippedCount,
		DurationSeconds: r.summary.DurationSeconds,
		Message:         r.summary.Message,
		TriggeredBy:     triggeredBy,
	}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("write sync run: %w", err)
	}
	r.summary.RunID = row.ID

	if len(r.summary.Skips) > 0 {
		skipped := make([]models.ShipStationSkippedOrder, len(r.summary.Skips))
		for i, sk := range r.summary.Skips {
			skipped[i] = models.ShipStationSkippedOrder{
				RunID:       row.ID,
				OrderID:     sk.OrderID,
				OrderNumber: sk.OrderNumber,
				ShipmentID:  sk.ShipmentID,
				Reason:      sk.Reason,
				Details:     boundedJSON(sk.Details),
			}
		}
		if err := db.CreateInBatches(&skipped, 200).Error; err != nil {
			return fmt.Errorf("write skipped orders: %w", err)
		}
	}

	action := audit.ActionSyncRunCompleted
	payload := map[string]interface{}{
		"run_uuid": r.uuid,
		"status":   r.summary.Status,
		"synced":   r.summary.SyncedCount,
		"skipped":  r.summary.SkippedCount,
		"orders":   r.summary.OrdersSeen,
	}
	if fatal != nil {
		action = audit.ActionSyncRunFailed
		payload["error"] = truncate(fatal.Error(), maxSkipDetailBytes)
	}
	return s.sink.Record(ctx, tx, audit.Event{
		Action:     action,
		EntityType: "shipstation_sync_run",
		EntityID:   strconv.FormatInt(row.ID, 10),
		Actor:      firstNonEmpty(triggeredBy, syncActor),
		Payload:    payload,
	})
}

// unitMap canonicalizes line items into SKU -> device units
func unitMap(items []Item) (map[string]int, []string) {
	units := map[string]int{}
	var dropped []string
	for _, it := range items {
		sku, ok := normalize.SKU(it.SKU)
		if !ok {
			sku, ok = normalize.SKU(it.Name)
		}
		n := normalize.InferUnits(it.Name+" "+it.SKU, it.Quantity)
		if !ok || n <= 0 {
			dropped = append(dropped, truncate(strings.TrimSpace(it.SKU+" "+it.Name), 80))
			continue
		}
		units[sku] += n
	}
	return units, dropped
}

func shipTo(o Order) customers.ShipTo {
	a := o.ShipTo
	return customers.ShipTo{
		FacilityName: firstNonEmpty(a.FacilityName(), "Order "+o.OrderNumber),
		Address1:     a.Street1,
		Address2:     a.Street2,
		City:         a.City,
		State:        a.State,
		Zip:          a.PostalCode,
		ContactName:  a.Name,
		ContactPhone: a.Phone,
		ContactEmail: o.CustomerEmail,
	}
}

// boundedJSON marshals details, replacing oversized payloads with a prefix
func boundedJSON(details map[string]interface{}) datatypes.JSON {
	if len(details) == 0 {
		return nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	if len(b) <= maxSkipDetailBytes {
		return datatypes.JSON(b)
	}
	// escaping in the preview can grow it, so shrink by the overshoot until it fits
	preview, limit := string(b), maxSkipDetailBytes
	for {
		preview = truncate(preview, limit)
		out, _ := json.Marshal(map[string]interface{}{"truncated": true, "preview": preview})
		if len(out) <= maxSkipDetailBytes || preview == "" {
			return datatypes.JSON(out)
		}
		limit = len(preview) - (len(out) - maxSkipDetailBytes)
		if limit < 0 {
			limit = 0
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func ptrTime(t time.Time) *time.Time { return &t }
