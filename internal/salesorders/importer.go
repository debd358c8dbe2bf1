package salesorders

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/normalize"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExtractedOrder is what the sales-order document parser hands to the core
type ExtractedOrder struct {
	OrderNumber    string           `json:"orderNumber" validate:"required"`
	OrderDate      *time.Time       `json:"orderDate"`
	CustomerNumber string           `json:"customerNumber"`
	AccountNumber  string           `json:"accountNumber"`
	ShipTo         customers.ShipTo `json:"shipTo"`
	Lines          []ExtractedLine  `json:"lines" validate:"required,min=1,dive"`
}

// ExtractedLine is one parsed order line
type ExtractedLine struct {
	SKU       string          `json:"sku" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	LotNumber string          `json:"lotNumber"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// ImportResult summarizes one imported order
type ImportResult struct {
	SalesOrder    *models.SalesOrder `json:"salesOrder"`
	CustomerKey   string             `json:"customerKey"`
	CustomerTier  customers.Tier     `json:"customerTier"`
	LinkedEntries int64              `json:"linkedEntries"`
	Propagated    int64              `json:"propagated"`
	// SkippedLines holds the SKUs that could not be mapped onto the device set
	SkippedLines []string `json:"skippedLines,omitempty"`
}

// Importer stores parsed sales orders and links existing distribution entries
type Importer struct {
	matcher  *customers.Matcher
	sink     audit.Sink
	log      logrus.FieldLogger
	validate *validator.Validate
}

// NewImporter creates an Importer
func NewImporter(matcher *customers.Matcher, sink audit.Sink, log logrus.FieldLogger) *Importer {
	return &Importer{
		matcher:  matcher,
		sink:     sink,
		log:      log.WithField("module", "salesorders"),
		validate: validator.New(),
	}
}

// Import resolves the customer through the sales-order key chain, upserts the
// order under source pdf_import and links entries sharing its order number.
func (im *Importer) Import(ctx context.Context, tx *gorm.DB, in ExtractedOrder, actor string) (*ImportResult, error) {
	in.OrderNumber = strings.TrimSpace(in.OrderNumber)
	if err := im.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid sales order: %w", err)
	}

	key := customers.KeyFromSalesOrder(customers.OrderParty{
		CustomerNumber: in.CustomerNumber,
		AccountNumber:  in.AccountNumber,
		Name:           in.ShipTo.FacilityName,
		Address1:       in.ShipTo.Address1,
		City:           in.ShipTo.City,
		State:          in.ShipTo.State,
		Zip:            in.ShipTo.Zip,
	})
	match, err := im.matcher.FindOrCreateByKey(ctx, tx, key, in.ShipTo)
	if err != nil {
		return nil, fmt.Errorf("resolve customer for order %s: %w", in.OrderNumber, err)
	}

	out := &ImportResult{CustomerKey: key, CustomerTier: match.Tier}
	lines := make([]models.SalesOrderLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		sku, ok := normalize.SKU(l.SKU)
		if !ok {
			out.SkippedLines = append(out.SkippedLines, l.SKU)
			continue
		}
		lot := ""
		if l.LotNumber != "" {
			lot = normalize.Lot(l.LotNumber)
		}
		lines = append(lines, models.SalesOrderLine{
			SKU:       sku,
			Quantity:  l.Quantity,
			LotNumber: lot,
			UnitPrice: l.UnitPrice,
		})
	}

	extKey := in.OrderNumber
	so := &models.SalesOrder{
		Source:         models.SourcePDFImport,
		ExternalKey:    &extKey,
		OrderNumber:    in.OrderNumber,
		OrderDate:      in.OrderDate,
		CustomerID:     &match.Customer.ID,
		CustomerNumber: firstNonEmpty(in.CustomerNumber, in.AccountNumber),
		ShipToName:     in.ShipTo.FacilityName,
		ShipToAddress1: in.ShipTo.Address1,
		ShipToCity:     in.ShipTo.City,
		ShipToState:    in.ShipTo.State,
		ShipToZip:      in.ShipTo.Zip,
		Status:         "open",
	}
	if err := Upsert(ctx, tx, so, lines); err != nil {
		return nil, err
	}
	out.SalesOrder = so

	if out.LinkedEntries, err = LinkOrderEntries(ctx, tx, so); err != nil {
		return nil, err
	}
	if out.Propagated, err = PropagateCustomer(ctx, tx, so); err != nil {
		return nil, err
	}

	if err := im.sink.Record(ctx, tx, audit.Event{
		Action:     audit.ActionSalesOrderImport,
		EntityType: "sales_order",
		EntityID:   strconv.FormatInt(so.ID, 10),
		Actor:      actor,
		Payload: map[string]interface{}{
			"order_number":   so.OrderNumber,
			"customer_key":   key,
			"customer_tier":  match.Tier,
			"lines":          len(lines),
			"linked_entries": out.LinkedEntries,
		},
	}); err != nil {
		return nil, err
	}

	im.log.WithFields(logrus.Fields{
		"order_number": so.OrderNumber,
		"customer_id":  match.Customer.ID,
		"linked":       out.LinkedEntries,
	}).Info("sales order imported")
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
