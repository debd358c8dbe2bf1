package distribution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/database"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/normalize"
	"github.com/silq-qms/qmsgo/internal/salesorders"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrReasonRequired is returned when an edit or delete carries no reason
	ErrReasonRequired = errors.New("a reason for change is required")
	// ErrEntryNotFound is returned for an unknown entry id
	ErrEntryNotFound = errors.New("distribution entry not found")
)

// EntryResult is the outcome of a single manual create or edit.
// When Errors is non-empty nothing was written.
type EntryResult struct {
	Entry        *models.DistributionLogEntry `json:"entry,omitempty"`
	Errors       []FieldError                 `json:"errors,omitempty"`
	Warnings     []string                     `json:"warnings,omitempty"`
	CustomerTier customers.Tier               `json:"customerTier,omitempty"`
	Linked       bool                         `json:"linked"`
}

// Service runs the manual and spreadsheet ingestion paths
type Service struct {
	matcher *customers.Matcher
	sink    audit.Sink
	log     logrus.FieldLogger

	// Clock is overridable for tests
	Clock func() time.Time
}

// NewService creates a distribution Service
func NewService(matcher *customers.Matcher, sink audit.Sink, log logrus.FieldLogger) *Service {
	return &Service{
		matcher: matcher,
		sink:    sink,
		log:     log.WithField("module", "distribution"),
		Clock:   time.Now,
	}
}

// CreateManual validates and stores one form entry. A soft duplicate only
// produces a warning.
func (s *Service) CreateManual(ctx context.Context, tx *gorm.DB, in ManualInput, actor string) (*EntryResult, error) {
	now := s.Clock()
	rec, errs := FromManual(in, now)
	if len(errs) > 0 {
		return &EntryResult{Errors: errs}, nil
	}

	res := &EntryResult{}
	if rec.OrderNumber != "" {
		dup, err := FindSoftDuplicate(ctx, tx, rec.OrderNumber, rec.ShipDate, rec.Dest.FacilityName)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("possible duplicate of entry #%d (same order, ship date and facility)", dup.ID))
		}
	}

	entry, tier, linked, err := s.store(ctx, tx, rec, actor, now)
	if err != nil {
		return nil, err
	}
	res.Entry, res.CustomerTier, res.Linked = entry, tier, linked

	if err := s.sink.Record(ctx, tx, audit.Event{
		Action:     audit.ActionDistributionCreate,
		EntityType: "distribution_log_entry",
		EntityID:   strconv.FormatInt(entry.ID, 10),
		Actor:      actor,
		Payload:    snapshot(entry),
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// store resolves the customer, inserts the entry and links its sales order
func (s *Service) store(ctx context.Context, tx *gorm.DB, rec Record, actor string, now time.Time) (*models.DistributionLogEntry, customers.Tier, bool, error) {
	match, err := s.matcher.FindOrCreate(ctx, tx, rec.Dest)
	if err != nil {
		return nil, "", false, fmt.Errorf("resolve customer: %w", err)
	}
	entry := Build(rec, &match.Customer.ID, actor, now)
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, "", false, fmt.Errorf("insert distribution entry: %w", err)
	}
	linked, err := salesorders.LinkEntry(ctx, tx, entry)
	if err != nil {
		return nil, "", false, err
	}
	s.log.WithFields(logrus.Fields{
		"entry_id":     entry.ID,
		"order_number": entry.OrderNumber,
		"source":       entry.Source,
		"tier":         match.Tier,
	}).Debug("distribution entry stored")
	return entry, match.Tier, linked, nil
}

// UpdateInput carries the editable fields of an entry
type UpdateInput struct {
	ShipDate     string `json:"shipDate"`
	OrderNumber  string `json:"orderNumber"`
	FacilityName string `json:"facilityName"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	SKU          string `json:"sku"`
	LotNumber    string `json:"lotNumber"`
	Quantity     int    `json:"quantity"`
	Notes        string `json:"notes"`
}

// UpdateEntry replaces the editable fields of an entry. The result is
// re-validated under the entry's own source rules and the changed fields are
// written to the audit trail with reason.
func (s *Service) UpdateEntry(ctx context.Context, tx *gorm.DB, id int64, in UpdateInput, reason, actor string) (*EntryResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	entry, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	rec := recordOf(entry)
	var errs []FieldError
	if in.ShipDate != "" {
		d, perr := ParseShipDate(in.ShipDate)
		if perr != nil {
			errs = append(errs, FieldError{Field: "shipDate", Message: perr.Error()})
		} else {
			rec.ShipDate = d
		}
	}
	applyEdits(&rec, in)
	errs = merge(errs, ValidateRecord(rec, s.Clock()))
	if len(errs) > 0 {
		return &EntryResult{Errors: errs}, nil
	}

	before := snapshot(entry)
	updated := Build(rec, entry.CustomerID, entry.CreatedBy, s.Clock())
	changes := map[string]interface{}{}
	diff := map[string]interface{}{}
	track := func(col string, from, to interface{}) {
		if fmt.Sprint(from) != fmt.Sprint(to) {
			changes[col] = to
			diff[col] = map[string]interface{}{"from": from, "to": to}
		}
	}
	track("ship_date", entry.ShipDate.Format("2006-01-02"), updated.ShipDate.Format("2006-01-02"))
	track("order_number", entry.OrderNumber, updated.OrderNumber)
	track("facility_name", entry.FacilityName, updated.FacilityName)
	track("city", entry.City, updated.City)
	track("state", entry.State, updated.State)
	track("zip", entry.Zip, updated.Zip)
	track("sku", entry.SKU, updated.SKU)
	track("lot_number", entry.LotNumber, updated.LotNumber)
	track("quantity", entry.Quantity, updated.Quantity)
	track("notes", entry.Notes, updated.Notes)

	if len(changes) == 0 {
		return &EntryResult{Entry: entry, Warnings: []string{"no changes"}}, nil
	}
	if _, ok := changes["ship_date"]; ok {
		changes["ship_date"] = updated.ShipDate
	}
	if err := tx.WithContext(ctx).Model(entry).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("update entry %d: %w", id, err)
	}
	if err := tx.WithContext(ctx).First(entry, id).Error; err != nil {
		return nil, fmt.Errorf("reload entry %d: %w", id, err)
	}

	if err := s.sink.Record(ctx, tx, audit.Event{
		Action:     audit.ActionDistributionUpdate,
		EntityType: "distribution_log_entry",
		EntityID:   strconv.FormatInt(id, 10),
		Actor:      actor,
		Reason:     reason,
		Payload:    map[string]interface{}{"changed": diff, "before": before},
	}); err != nil {
		return nil, err
	}
	return &EntryResult{Entry: entry}, nil
}

// DeleteEntry physically removes an entry. The audit event keeps its snapshot.
func (s *Service) DeleteEntry(ctx context.Context, tx *gorm.DB, id int64, reason, actor string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	entry, err := s.load(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Delete(entry).Error; err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	s.log.WithFields(logrus.Fields{"entry_id": id, "actor": actor}).Info("distribution entry deleted")
	return s.sink.Record(ctx, tx, audit.Event{
		Action:     audit.ActionDistributionDelete,
		EntityType: "distribution_log_entry",
		EntityID:   strconv.FormatInt(id, 10),
		Actor:      actor,
		Reason:     reason,
		Payload:    snapshot(entry),
	})
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, id int64) (*models.DistributionLogEntry, error) {
	var e models.DistributionLogEntry
	if err := tx.WithContext(ctx).First(&e, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("load entry %d: %w", id, err)
	}
	return &e, nil
}

func recordOf(e *models.DistributionLogEntry) Record {
	r := Record{
		Source:      e.Source,
		ShipDate:    e.ShipDate,
		OrderNumber: e.OrderNumber,
		Dest: customers.ShipTo{
			FacilityName: e.FacilityName,
			City:         e.City,
			State:        e.State,
			Zip:          e.Zip,
			ContactName:  e.ContactName,
			ContactEmail: e.ContactEmail,
		},
		SKU:            e.SKU,
		LotNumber:      e.LotNumber,
		Quantity:       e.Quantity,
		TrackingNumber: e.TrackingNumber,
		CarrierCode:    e.CarrierCode,
		ServiceCode:    e.ServiceCode,
		Notes:          e.Notes,
	}
	if e.ExternalKey != nil {
		r.ExternalKey = *e.ExternalKey
	}
	return r
}

func applyEdits(r *Record, in UpdateInput) {
	if v := strings.TrimSpace(in.OrderNumber); v != "" {
		r.OrderNumber = v
	}
	if v := strings.TrimSpace(in.FacilityName); v != "" {
		r.Dest.FacilityName = v
	}
	if v := strings.TrimSpace(in.City); v != "" {
		r.Dest.City = v
	}
	if v := strings.TrimSpace(in.State); v != "" {
		r.Dest.State = v
	}
	if v := strings.TrimSpace(in.Zip); v != "" {
		r.Dest.Zip = v
	}
	if v := strings.TrimSpace(in.SKU); v != "" {
		convertCommon(r, "", v, nil)
	}
	if v := strings.TrimSpace(in.LotNumber); v != "" {
		if r.Source == models.SourceShipStation {
			r.LotNumber = v
		} else {
			r.LotNumber = normalize.Lot(v)
		}
	}
	if in.Quantity != 0 {
		r.Quantity = in.Quantity
	}
	if in.Notes != "" {
		r.Notes = in.Notes
	}
}

func snapshot(e *models.DistributionLogEntry) map[string]interface{} {
	m := map[string]interface{}{
		"ship_date":     e.ShipDate.Format("2006-01-02"),
		"order_number":  e.OrderNumber,
		"facility_name": e.FacilityName,
		"sku":           e.SKU,
		"lot_number":    e.LotNumber,
		"quantity":      e.Quantity,
		"source":        e.Source,
	}
	if e.CustomerID != nil {
		m["customer_id"] = *e.CustomerID
	}
	if e.SalesOrderID != nil {
		m["sales_order_id"] = *e.SalesOrderID
	}
	if e.ExternalKey != nil {
		m["external_key"] = *e.ExternalKey
	}
	return m
}
