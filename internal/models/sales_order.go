package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesOrder is the order-level record, one per (Source, ExternalKey)
type SalesOrder struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Source      Source     `gorm:"type:varchar(32);not null;uniqueIndex:ux_sales_orders_source_external_key,priority:1" json:"source"`
	ExternalKey *string    `gorm:"uniqueIndex:ux_sales_orders_source_external_key,priority:2" json:"externalKey,omitempty"`
	OrderNumber string     `gorm:"not null;index" json:"orderNumber"`
	OrderDate   *time.Time `json:"orderDate"`

	CustomerID     *int64 `gorm:"index" json:"customerId"`
	CustomerNumber string `json:"customerNumber"`

	ShipToName     string `json:"shipToName"`
	ShipToAddress1 string `json:"shipToAddress1"`
	ShipToCity     string `json:"shipToCity"`
	ShipToState    string `json:"shipToState"`
	ShipToZip      string `json:"shipToZip"`

	Status    string    `gorm:"default:open" json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Relations
	Customer *Customer        `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Lines    []SalesOrderLine `gorm:"foreignKey:SalesOrderID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
}

func (SalesOrder) TableName() string { return "sales_orders" }

// SalesOrderLine is one SKU/quantity/lot row of a sales order
type SalesOrderLine struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SalesOrderID int64           `gorm:"index;not null" json:"salesOrderId"`
	SKU          string          `gorm:"column:sku;not null" json:"sku"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	LotNumber    string          `json:"lotNumber"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unitPrice"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (SalesOrderLine) TableName() string { return "sales_order_lines" }
