package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/distribution"
	"github.com/silq-qms/qmsgo/internal/middleware"
	"gorm.io/gorm"
)

// createDistribution stores one manual entry. Validation errors are returned
// with 422 and nothing is written.
func (r *Router) createDistribution(w http.ResponseWriter, req *http.Request) {
	var in distribution.ManualInput
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var res *distribution.EntryResult
	err := r.DB.WithContext(req.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = r.Distributions.CreateManual(req.Context(), tx, in, middleware.Actor(req.Context()))
		return err
	})
	switch {
	case errors.Is(err, customers.ErrNoFacilityName):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		r.serverError(w, req, "Failed to create distribution entry", err)
	case len(res.Errors) > 0:
		respondJSON(w, http.StatusUnprocessableEntity, res)
	default:
		respondJSON(w, http.StatusCreated, res)
	}
}

type updateDistributionRequest struct {
	distribution.UpdateInput
	Reason string `json:"reason"`
}

func (r *Router) updateDistribution(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid entry ID")
		return
	}
	var body updateDistributionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var res *distribution.EntryResult
	err := r.DB.WithContext(req.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = r.Distributions.UpdateEntry(req.Context(), tx, id, body.UpdateInput, body.Reason, middleware.Actor(req.Context()))
		return err
	})
	switch {
	case errors.Is(err, distribution.ErrReasonRequired):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, distribution.ErrEntryNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		r.serverError(w, req, "Failed to update distribution entry", err)
	case len(res.Errors) > 0:
		respondJSON(w, http.StatusUnprocessableEntity, res)
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

func (r *Router) deleteDistribution(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid entry ID")
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}
	if body.Reason == "" {
		body.Reason = req.URL.Query().Get("reason")
	}

	err := r.DB.WithContext(req.Context()).Transaction(func(tx *gorm.DB) error {
		return r.Distributions.DeleteEntry(req.Context(), tx, id, body.Reason, middleware.Actor(req.Context()))
	})
	switch {
	case errors.Is(err, distribution.ErrReasonRequired):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, distribution.ErrEntryNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		r.serverError(w, req, "Failed to delete distribution entry", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// importDistributions accepts a multipart "file" field holding CSV or XLSX.
// force=true inserts rows flagged as soft duplicates.
func (r *Router) importDistributions(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Expected multipart upload")
		return
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	opts := distribution.ImportOptions{
		Force: req.FormValue("force") == "true",
		Actor: middleware.Actor(req.Context()),
	}
	var res *distribution.ImportResult
	err = r.DB.WithContext(req.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = r.Distributions.ImportFile(req.Context(), tx, header.Filename, file, opts)
		return err
	})
	if err != nil {
		r.serverError(w, req, "Failed to import distribution file", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
