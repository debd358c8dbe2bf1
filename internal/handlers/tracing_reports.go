package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"

	"github.com/silq-qms/qmsgo/internal/middleware"
	"github.com/silq-qms/qmsgo/internal/reports"
	"gorm.io/gorm"
)

type tracingReportRequest struct {
	Month string `json:"month"`
	reports.Filters
}

func (r *Router) generateTracingReport(w http.ResponseWriter, req *http.Request) {
	var body tracingReportRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var res *reports.Result
	err := r.DB.WithContext(req.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = r.Reports.Generate(req.Context(), tx, body.Month, body.Filters, middleware.Actor(req.Context()))
		return err
	})
	if err != nil && res != nil {
		// generated but the commit failed
		r.Reports.Discard(req.Context(), res.Report.StorageKey)
	}
	switch {
	case errors.Is(err, reports.ErrInvalidMonth), errors.Is(err, reports.ErrInvalidFilter):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		r.serverError(w, req, "Failed to generate tracing report", err)
	default:
		respondJSON(w, http.StatusCreated, res.Report)
	}
}

func (r *Router) loadReport(w http.ResponseWriter, req *http.Request) (*reports.Result, bool) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid report ID")
		return nil, false
	}
	res, err := r.Reports.Load(req.Context(), r.DB, id)
	if errors.Is(err, reports.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Tracing report not found")
		return nil, false
	}
	if err != nil {
		r.serverError(w, req, "Failed to load tracing report", err)
		return nil, false
	}
	return res, true
}

func (r *Router) downloadTracingReport(w http.ResponseWriter, req *http.Request) {
	res, ok := r.loadReport(w, req)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(res.Report.StorageKey)))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.CSV)))
	w.Header().Set("X-Content-SHA256", res.Report.SHA256)
	w.Write(res.CSV)
}

func (r *Router) tracingReportPDF(w http.ResponseWriter, req *http.Request) {
	res, ok := r.loadReport(w, req)
	if !ok {
		return
	}
	pdfBytes, err := reports.RenderPDF(res.Report, res.CSV)
	if err != nil {
		r.serverError(w, req, "Failed to render tracing report", err)
		return
	}

	// Set headers for download
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"tracing_%s_%d.pdf\"", res.Report.Month, res.Report.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.Write(pdfBytes)
}
