// Package reports generates immutable monthly tracing reports of device distribution.
package reports

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/normalize"
	"github.com/silq-qms/qmsgo/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidMonth  = errors.New("month must be YYYY-MM")
	ErrInvalidFilter = errors.New("invalid report filter")
	ErrNotFound      = errors.New("tracing report not found")
)

// Header is the fixed column set of the tracing CSV
var Header = []string{"Ship Date", "Order #", "Facility", "City", "State", "SKU", "Lot", "Quantity", "Rep", "Source"}

// Filters narrows a report. Zero values mean no filter.
type Filters struct {
	RepID      *int64        `json:"repId,omitempty"`
	Source     models.Source `json:"source,omitempty"`
	SKU        string        `json:"sku,omitempty"`
	CustomerID *int64        `json:"customerId,omitempty"`
}

// canonical returns the filter set as a map so json.Marshal sorts its keys
func (f Filters) canonical() map[string]interface{} {
	m := map[string]interface{}{}
	if f.RepID != nil {
		m["rep_id"] = *f.RepID
	}
	if f.Source != "" && f.Source != models.SourceAll {
		m["source"] = string(f.Source)
	}
	if f.SKU != "" {
		m["sku"] = f.SKU
	}
	if f.CustomerID != nil {
		m["customer_id"] = *f.CustomerID
	}
	return m
}

func (f Filters) validate() error {
	if f.Source != "" && f.Source != models.SourceAll && !f.Source.Valid() {
		return fmt.Errorf("%w: source %q", ErrInvalidFilter, f.Source)
	}
	if f.SKU != "" && !normalize.IsValidSKU(f.SKU) {
		return fmt.Errorf("%w: sku %q", ErrInvalidFilter, f.SKU)
	}
	return nil
}

// FilterHash is the first 12 hex chars of SHA-256 over the sorted-key filter JSON
func FilterHash(f Filters) (string, []byte) {
	b, _ := json.Marshal(f.canonical())
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:12], b
}

// MonthRange returns [first day of month, first day of next month) in UTC
func MonthRange(month string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", strings.TrimSpace(month), time.UTC)
	if err != nil || len(strings.TrimSpace(month)) != 7 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// Result is a generated report and its bytes
type Result struct {
	Report *models.TracingReport
	CSV    []byte
}

// Generator builds and stores tracing reports
type Generator struct {
	store storage.Storage
	sink  audit.Sink
	log   logrus.FieldLogger

	// Clock is overridable for tests
	Clock func() time.Time
}

// NewGenerator wires a generator to its artifact store
func NewGenerator(store storage.Storage, sink audit.Sink, log logrus.FieldLogger) *Generator {
	return &Generator{
		store: store,
		sink:  sink,
		log:   log.WithField("module", "tracing_report"),
		Clock: time.Now,
	}
}

// Generate selects the month's entries, serializes them, stores the CSV and
// inserts a new TracingReport row. Existing reports are never modified.
func (g *Generator) Generate(ctx context.Context, tx *gorm.DB, month string, f Filters, actor string) (*Result, error) {
	start, end, err := MonthRange(month)
	if err != nil {
		return nil, err
	}
	if err := f.validate(); err != nil {
		return nil, err
	}

	entries, err := selectEntries(ctx, tx, start, end, f)
	if err != nil {
		return nil, err
	}
	data, err := renderCSV(entries)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	hash, filterJSON := FilterHash(f)
	now := g.Clock().UTC()
	key := fmt.Sprintf("tracing_reports/%s/%s/%s.csv", start.Format("2006-01"), hash, now.Format("20060102T150405.000000000Z"))

	if err := g.store.Put(ctx, key, data, "text/csv"); err != nil {
		return nil, fmt.Errorf("store tracing report: %w", err)
	}

	rep := &models.TracingReport{
		Month:       start.Format("2006-01"),
		Filters:     datatypes.JSON(filterJSON),
		FilterHash:  hash,
		StorageKey:  key,
		SHA256:      digest,
		RowCount:    len(entries),
		GeneratedBy: actor,
	}
	if err := tx.WithContext(ctx).Create(rep).Error; err != nil {
		g.Discard(ctx, key)
		return nil, fmt.Errorf("insert tracing report: %w", err)
	}

	if err := g.sink.Record(ctx, tx, audit.Event{
		Action:     audit.ActionReportGenerated,
		EntityType: "tracing_report",
		EntityID:   strconv.FormatInt(rep.ID, 10),
		Actor:      actor,
		Payload: map[string]interface{}{
			"month":       rep.Month,
			"filter_hash": hash,
			"sha256":      digest,
			"row_count":   rep.RowCount,
		},
	}); err != nil {
		g.Discard(ctx, key)
		return nil, err
	}

	g.log.WithFields(logrus.Fields{
		"report_id": rep.ID,
		"month":     rep.Month,
		"rows":      rep.RowCount,
		"key":       key,
	}).Info("tracing report generated")
	return &Result{Report: rep, CSV: data}, nil
}

// Discard removes a stored artifact whose report row was not committed
func (g *Generator) Discard(ctx context.Context, key string) {
	if err := g.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		g.log.WithError(err).WithField("key", key).Warn("orphaned tracing report artifact")
	}
}

// Load returns a stored report row and its CSV bytes
func (g *Generator) Load(ctx context.Context, db *gorm.DB, id int64) (*Result, error) {
	var rep models.TracingReport
	err := db.WithContext(ctx).First(&rep, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tracing report %d: %w", id, err)
	}
	data, err := g.store.Get(ctx, rep.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read tracing report %d: %w", id, err)
	}
	return &Result{Report: &rep, CSV: data}, nil
}

func selectEntries(ctx context.Context, tx *gorm.DB, start, end time.Time, f Filters) ([]models.DistributionLogEntry, error) {
	q := tx.WithContext(ctx).Model(&models.DistributionLogEntry{}).
		Preload("Customer.PrimaryRep").
		Where("distribution_log_entries.ship_date >= ? AND distribution_log_entries.ship_date < ?", start, end)

	if f.Source != "" && f.Source != models.SourceAll {
		q = q.Where("distribution_log_entries.source = ?", f.Source)
	}
	if f.SKU != "" {
		q = q.Where("distribution_log_entries.sku = ?", f.SKU)
	}
	if f.CustomerID != nil {
		q = q.Where("distribution_log_entries.customer_id = ?", *f.CustomerID)
	}
	if f.RepID != nil {
		reps := tx.Model(&models.Customer{}).Select("id").Where("primary_rep_id = ?", *f.RepID)
		q = q.Where("distribution_log_entries.customer_id IN (?)", reps)
	}

	var entries []models.DistributionLogEntry
	err := q.Order("distribution_log_entries.ship_date ASC, distribution_log_entries.order_number ASC, distribution_log_entries.id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("select tracing entries: %w", err)
	}
	return entries, nil
}

func renderCSV(entries []models.DistributionLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, e := range entries {
		rep := ""
		if e.Customer != nil && e.Customer.PrimaryRep != nil {
			rep = e.Customer.PrimaryRep.Name
		}
		row := []string{
			e.ShipDate.UTC().Format("2006-01-02"),
			e.OrderNumber,
			e.FacilityName,
			e.City,
			e.State,
			e.SKU,
			e.LotNumber,
			strconv.Itoa(e.Quantity),
			rep,
			string(e.Source),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write tracing csv: %w", err)
	}
	return buf.Bytes(), nil
}
