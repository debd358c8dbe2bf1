package distribution

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/normalize"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// structErrors runs the required-field tags of an input variant
func structErrors(in interface{}) []FieldError {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []FieldError{{Field: "input", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, FieldError{Field: fe.Field(), Message: tagMessage(fe)})
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be a positive integer"
	case "email":
		return "must be a valid email address"
	}
	return "failed " + fe.Tag() + " check"
}

var shipDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
}

// ParseShipDate parses an ISO date (or a US-style M/D/YYYY spreadsheet date)
// and returns midnight UTC of that calendar day.
func ParseShipDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range shipDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// DateOf truncates t to its UTC calendar day
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidateRecord applies the rules shared by every source. The strict lot
// grammar applies to manual and CSV entries only.
func ValidateRecord(r Record, now time.Time) []FieldError {
	var errs []FieldError
	add := func(field, msg string) { errs = append(errs, FieldError{Field: field, Message: msg}) }

	if !r.Source.Valid() {
		add("source", fmt.Sprintf("%q is not a valid record source", r.Source))
	}
	if r.ShipDate.IsZero() {
		add("shipDate", "is required")
	} else if r.ShipDate.After(DateOf(now)) {
		add("shipDate", "must not be in the future")
	}
	if strings.TrimSpace(r.Dest.FacilityName) == "" {
		add("facilityName", "is required")
	}
	if !normalize.IsValidSKU(r.SKU) {
		add("sku", fmt.Sprintf("%q is not a recognized SKU", r.SKU))
	}
	switch r.Source {
	case models.SourceManual, models.SourceCSVImport:
		if !normalize.ValidLot(r.LotNumber) {
			add("lotNumber", fmt.Sprintf("%q must be SLQ- followed by 5 digits", r.LotNumber))
		}
	default:
		if strings.TrimSpace(r.LotNumber) == "" {
			add("lotNumber", "is required")
		}
	}
	if r.Quantity <= 0 {
		add("quantity", "must be a positive integer")
	}
	return errs
}

// FromManual converts a form entry to a Record
func FromManual(in ManualInput, now time.Time) (Record, []FieldError) {
	errs := structErrors(in)
	r := Record{
		Source:      models.SourceManual,
		OrderNumber: strings.TrimSpace(in.OrderNumber),
		Dest: customers.ShipTo{
			FacilityName: strings.TrimSpace(in.FacilityName),
			Address1:     in.Address1,
			City:         in.City,
			State:        in.State,
			Zip:          in.Zip,
			ContactName:  in.ContactName,
			ContactPhone: in.ContactPhone,
			ContactEmail: in.ContactEmail,
		},
		LotNumber: normalize.Lot(in.LotNumber),
		Quantity:  in.Quantity,
		Notes:     in.Notes,
	}
	errs = convertCommon(&r, in.ShipDate, in.SKU, errs)
	return r, merge(errs, ValidateRecord(r, now))
}

// FromCSVRow converts a spreadsheet row to a Record
func FromCSVRow(in CsvRowInput, now time.Time) (Record, []FieldError) {
	errs := structErrors(in)
	r := Record{
		Source:      models.SourceCSVImport,
		OrderNumber: strings.TrimSpace(in.OrderNumber),
		Dest: customers.ShipTo{
			FacilityName: strings.TrimSpace(in.FacilityName),
			City:         in.City,
			State:        in.State,
			Zip:          in.Zip,
		},
		LotNumber: normalize.Lot(in.LotNumber),
	}
	if q := strings.TrimSpace(in.Quantity); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			errs = append(errs, FieldError{Field: "quantity", Message: fmt.Sprintf("%q is not an integer", q)})
		}
		r.Quantity = n
	}
	errs = convertCommon(&r, in.ShipDate, in.SKU, errs)
	return r, merge(errs, ValidateRecord(r, now))
}

// FromShipment converts a fulfillment row to a Record with its external key
func FromShipment(in ShipmentInput, now time.Time) (Record, []FieldError) {
	errs := structErrors(in)
	r := Record{
		Source:         models.SourceShipStation,
		OrderNumber:    strings.TrimSpace(in.OrderNumber),
		Dest:           in.ShipTo,
		SKU:            in.SKU,
		LotNumber:      in.LotNumber,
		Quantity:       in.Quantity,
		TrackingNumber: in.TrackingNumber,
		CarrierCode:    in.CarrierCode,
		ServiceCode:    in.ServiceCode,
	}
	if !in.ShipDate.IsZero() {
		r.ShipDate = DateOf(in.ShipDate)
	}
	r.ExternalKey = ExternalKey(in.ShipmentID, r.SKU, r.LotNumber)
	return r, merge(errs, ValidateRecord(r, now))
}

// Convert dispatches on the input variant
func Convert(in Input, now time.Time) (Record, []FieldError) {
	switch v := in.(type) {
	case ManualInput:
		return FromManual(v, now)
	case CsvRowInput:
		return FromCSVRow(v, now)
	case ShipmentInput:
		return FromShipment(v, now)
	}
	return Record{}, []FieldError{{Field: "source", Message: fmt.Sprintf("unsupported input %T", in)}}
}

func convertCommon(r *Record, shipDate, sku string, errs []FieldError) []FieldError {
	if strings.TrimSpace(shipDate) != "" {
		d, err := ParseShipDate(shipDate)
		if err != nil {
			errs = append(errs, FieldError{Field: "shipDate", Message: err.Error()})
		}
		r.ShipDate = d
	}
	if strings.TrimSpace(sku) != "" {
		if canon, ok := normalize.SKU(sku); ok {
			r.SKU = canon
		} else {
			r.SKU = strings.TrimSpace(sku)
		}
	}
	return errs
}

// merge appends record-level errors for fields not already reported
func merge(first, second []FieldError) []FieldError {
	seen := make(map[string]bool, len(first))
	for _, e := range first {
		seen[e.Field] = true
	}
	for _, e := range second {
		if !seen[e.Field] {
			first = append(first, e)
			seen[e.Field] = true
		}
	}
	return first
}
