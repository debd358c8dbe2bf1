// Package distribution validates heterogeneous inbound shipment data, builds
// canonical distribution log entries and guards them against duplication.
package distribution

import (
	"time"

	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/models"
)

// Input is one of ManualInput, CsvRowInput or ShipmentInput
type Input interface {
	Source() models.Source
}

// ManualInput is a single entry typed into the distribution form
type ManualInput struct {
	ShipDate     string `json:"shipDate" validate:"required"`
	OrderNumber  string `json:"orderNumber"`
	FacilityName string `json:"facilityName" validate:"required"`
	Address1     string `json:"address1"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	ContactName  string `json:"contactName"`
	ContactPhone string `json:"contactPhone"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
	SKU          string `json:"sku" validate:"required"`
	LotNumber    string `json:"lotNumber" validate:"required"`
	Quantity     int    `json:"quantity" validate:"gt=0"`
	Notes        string `json:"notes"`
}

func (ManualInput) Source() models.Source { return models.SourceManual }

// CsvRowInput is one parsed spreadsheet row; every cell is still raw text
type CsvRowInput struct {
	Row          int    `json:"row"`
	ShipDate     string `json:"shipDate" validate:"required"`
	OrderNumber  string `json:"orderNumber"`
	FacilityName string `json:"facilityName" validate:"required"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	SKU          string `json:"sku" validate:"required"`
	LotNumber    string `json:"lotNumber" validate:"required"`
	Quantity     string `json:"quantity" validate:"required"`
}

func (CsvRowInput) Source() models.Source { return models.SourceCSVImport }

// ShipmentInput is one (shipment, SKU) row produced by the fulfillment sync.
// SKU is already canonical and LotNumber already normalized.
type ShipmentInput struct {
	ShipmentID     string           `json:"shipmentId" validate:"required"`
	OrderNumber    string           `json:"orderNumber" validate:"required"`
	ShipDate       time.Time        `json:"shipDate" validate:"required"`
	ShipTo         customers.ShipTo `json:"shipTo"`
	SKU            string           `json:"sku" validate:"required"`
	LotNumber      string           `json:"lotNumber" validate:"required"`
	Quantity       int              `json:"quantity" validate:"gt=0"`
	TrackingNumber string           `json:"trackingNumber"`
	CarrierCode    string           `json:"carrierCode"`
	ServiceCode    string           `json:"serviceCode"`
}

func (ShipmentInput) Source() models.Source { return models.SourceShipStation }

// Record is the canonical shape every input is converted to
type Record struct {
	Source         models.Source
	ShipDate       time.Time
	OrderNumber    string
	Dest           customers.ShipTo
	SKU            string
	LotNumber      string
	Quantity       int
	ExternalKey    string
	TrackingNumber string
	CarrierCode    string
	ServiceCode    string
	Notes          string
}

// FieldError is a single field-tagged validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string { return e.Field + ": " + e.Message }
