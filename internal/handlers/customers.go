package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/silq-qms/qmsgo/internal/customers"
)

func (r *Router) customerStats(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}
	stats, err := customers.GetStats(req.Context(), r.DB, id)
	if errors.Is(err, customers.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Customer not found")
		return
	}
	if err != nil {
		r.serverError(w, req, "Failed to compute customer stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// customerCandidates lists weak matches for manual review
func (r *Router) customerCandidates(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimSpace(req.URL.Query().Get("facilityName"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "facilityName is required")
		return
	}
	found, err := customers.Candidates(req.Context(), r.DB, name, req.URL.Query().Get("state"))
	if err != nil {
		r.serverError(w, req, "Failed to search customers", err)
		return
	}
	respondJSON(w, http.StatusOK, found)
}
