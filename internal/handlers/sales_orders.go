package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/middleware"
	"github.com/silq-qms/qmsgo/internal/salesorders"
	"gorm.io/gorm"
)

// importSalesOrder stores an order extracted from a sales-order document
func (r *Router) importSalesOrder(w http.ResponseWriter, req *http.Request) {
	var in salesorders.ExtractedOrder
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var res *salesorders.ImportResult
	err := r.DB.WithContext(req.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = r.SalesOrders.Import(req.Context(), tx, in, middleware.Actor(req.Context()))
		return err
	})
	var invalid validator.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		r.serverError(w, req, "Failed to import sales order", err)
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

// backfillSalesOrders links every unlinked entry to its sales order
func (r *Router) backfillSalesOrders(w http.ResponseWriter, req *http.Request) {
	actor := middleware.Actor(req.Context())
	var res *salesorders.BackfillResult
	err := r.DB.WithContext(req.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = salesorders.Backfill(req.Context(), tx, r.log)
		if err != nil {
			return err
		}
		return r.Audit.Record(req.Context(), tx, audit.Event{
			Action:     audit.ActionSalesOrderBackfill,
			EntityType: "sales_order",
			EntityID:   "*",
			Actor:      actor,
			Payload: map[string]interface{}{
				"scanned":              res.Scanned,
				"linked":               res.Linked,
				"customers_propagated": res.CustomersPropagated,
				"orders_with_customer": res.OrdersWithCustomer,
			},
		})
	})
	if err != nil {
		r.serverError(w, req, "Failed to backfill sales orders", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
