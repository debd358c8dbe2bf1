package shipstation

import (
	"fmt"
	"strings"
	"time"
)

// Address is the shipTo/billTo block of an order
type Address struct {
	Name       string `json:"name"`
	Company    string `json:"company"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// FacilityName prefers the company line and falls back to the recipient name
func (a Address) FacilityName() string {
	if c := strings.TrimSpace(a.Company); c != "" {
		return c
	}
	return strings.TrimSpace(a.Name)
}

// Item is one order or shipment line
type Item struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Order is a fulfillment order. List responses carry the summary fields;
// GetOrder fills the rest.
type Order struct {
	OrderID       int64   `json:"orderId"`
	OrderNumber   string  `json:"orderNumber"`
	OrderDate     string  `json:"orderDate"`
	OrderStatus   string  `json:"orderStatus"`
	CustomerEmail string  `json:"customerEmail"`
	ShipTo        Address `json:"shipTo"`
	Items         []Item  `json:"items"`
	InternalNotes string  `json:"internalNotes"`
}

// Shipment is one label/package sent for an order
type Shipment struct {
	ShipmentID     int64  `json:"shipmentId"`
	OrderID        int64  `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	ShipDate       string `json:"shipDate"`
	TrackingNumber string `json:"trackingNumber"`
	CarrierCode    string `json:"carrierCode"`
	ServiceCode    string `json:"serviceCode"`
	Voided         bool   `json:"voided"`
	ShipmentItems  []Item `json:"shipmentItems"`
}

// OrdersPage is one page of the order list
type OrdersPage struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Pages  int     `json:"pages"`
}

// ShipmentsPage is one page of an order's shipments
type ShipmentsPage struct {
	Shipments []Shipment `json:"shipments"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Pages     int        `json:"pages"`
}

var shipDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05.9999999",
	time.RFC3339,
}

// ParseShipDate reads the provider's date formats as UTC
func ParseShipDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range shipDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ship date %q", s)
}
