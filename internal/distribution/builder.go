package distribution

import (
	"strings"
	"time"

	"github.com/silq-qms/qmsgo/internal/models"
)

var orderPrefixes = map[models.Source]string{
	models.SourceManual:      "MAN",
	models.SourceCSVImport:   "CSV",
	models.SourcePDFImport:   "PDF",
	models.SourceShipStation: "SS",
}

// GenerateOrderNumber returns PREFIX-YYYYMMDDHHMMSS for source at now (UTC).
// Two entries created in the same second collide; that is tolerated.
func GenerateOrderNumber(source models.Source, now time.Time) string {
	prefix, ok := orderPrefixes[source]
	if !ok {
		prefix = "ORD"
	}
	return prefix + "-" + now.UTC().Format("20060102150405")
}

// Build turns a validated Record into an entry with a denormalized snapshot of
// the destination so history survives later customer edits.
func Build(r Record, customerID *int64, createdBy string, now time.Time) *models.DistributionLogEntry {
	order := strings.TrimSpace(r.OrderNumber)
	if order == "" {
		order = GenerateOrderNumber(r.Source, now)
	}
	e := &models.DistributionLogEntry{
		ShipDate:       DateOf(r.ShipDate),
		OrderNumber:    order,
		FacilityName:   r.Dest.FacilityName,
		City:           strings.TrimSpace(r.Dest.City),
		State:          strings.TrimSpace(r.Dest.State),
		Zip:            strings.TrimSpace(r.Dest.Zip),
		ContactName:    strings.TrimSpace(r.Dest.ContactName),
		ContactEmail:   strings.TrimSpace(r.Dest.ContactEmail),
		SKU:            r.SKU,
		LotNumber:      r.LotNumber,
		Quantity:       r.Quantity,
		Source:         r.Source,
		CustomerID:     customerID,
		TrackingNumber: r.TrackingNumber,
		CarrierCode:    r.CarrierCode,
		ServiceCode:    r.ServiceCode,
		Notes:          r.Notes,
		CreatedBy:      createdBy,
	}
	if r.ExternalKey != "" {
		k := r.ExternalKey
		e.ExternalKey = &k
	}
	return e
}
