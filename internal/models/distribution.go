package models

import "time"

// Source identifies the channel a distribution entry was ingested from
type Source string

const (
	SourceManual      Source = "manual"
	SourceCSVImport   Source = "csv_import"
	SourcePDFImport   Source = "pdf_import"
	SourceShipStation Source = "shipstation"

	// SourceAll is a filter-only wildcard and is never valid on a record
	SourceAll Source = "all"
)

// Sources lists every value a record may carry
var Sources = []Source{SourceManual, SourceCSVImport, SourcePDFImport, SourceShipStation}

// Valid reports whether s may be stored on a record
func (s Source) Valid() bool {
	for _, v := range Sources {
		if s == v {
			return true
		}
	}
	return false
}

// DistributionLogEntry is one shipment of a SKU/lot to a customer.
// (Source, ExternalKey) is unique when ExternalKey is set.
type DistributionLogEntry struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ShipDate    time.Time `gorm:"type:date;not null;index;index:idx_distribution_soft_dup,priority:2" json:"shipDate"`
	OrderNumber string    `gorm:"not null;index;index:idx_distribution_soft_dup,priority:1" json:"orderNumber"`

	// Snapshot of the destination at ship time
	FacilityName string `gorm:"not null;index:idx_distribution_soft_dup,priority:3" json:"facilityName"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`

	SKU       string `gorm:"column:sku;not null;index" json:"sku"`
	LotNumber string `gorm:"not null;index" json:"lotNumber"`
	Quantity  int    `gorm:"not null" json:"quantity"`

	Source      Source  `gorm:"type:varchar(32);not null;uniqueIndex:ux_distribution_source_external_key,priority:1" json:"source"`
	ExternalKey *string `gorm:"uniqueIndex:ux_distribution_source_external_key,priority:2" json:"externalKey,omitempty"`

	CustomerID   *int64 `gorm:"index" json:"customerId"`
	SalesOrderID *int64 `gorm:"index" json:"salesOrderId"`

	TrackingNumber string `json:"trackingNumber"`
	CarrierCode    string `json:"carrierCode"`
	ServiceCode    string `json:"serviceCode"`
	Notes          string `gorm:"type:text" json:"notes"`
	CreatedBy      string `json:"createdBy"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Relations
	Customer   *Customer   `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	SalesOrder *SalesOrder `gorm:"foreignKey:SalesOrderID" json:"salesOrder,omitempty"`
}

func (DistributionLogEntry) TableName() string { return "distribution_log_entries" }
