package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/silq-qms/qmsgo/internal/distribution"
	"github.com/silq-qms/qmsgo/internal/middleware"
	"github.com/silq-qms/qmsgo/internal/services/shipstation"
)

type triggerSyncRequest struct {
	DateStart string `json:"dateStart"`
	DateEnd   string `json:"dateEnd"`
}

// triggerSync runs one fulfillment sync and waits for its summary
func (r *Router) triggerSync(w http.ResponseWriter, req *http.Request) {
	if r.Sync == nil {
		respondError(w, http.StatusServiceUnavailable, "ShipStation credentials are not configured")
		return
	}
	var body triggerSyncRequest
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	opts := shipstation.RunOptions{TriggeredBy: middleware.Actor(req.Context())}
	var err error
	if opts.Start, err = optionalDate(body.DateStart); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid dateStart")
		return
	}
	if opts.End, err = optionalDate(body.DateEnd); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid dateEnd")
		return
	}
	if !opts.End.IsZero() {
		// inclusive end day
		opts.End = opts.End.Add(24*time.Hour - time.Second)
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.End.Before(opts.Start) {
		respondError(w, http.StatusBadRequest, "dateEnd is before dateStart")
		return
	}

	summary, err := r.Sync.Run(req.Context(), opts)
	if err != nil {
		if summary == nil {
			r.serverError(w, req, "ShipStation sync failed", err)
			return
		}
		r.log.WithField("run_id", summary.RunUUID).WithError(err).Warn("sync run aborted")
		respondJSON(w, http.StatusBadGateway, summary)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := distribution.ParseShipDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return distribution.DateOf(t), nil
}

func (r *Router) listSyncRuns(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	runs, err := shipstation.ListRuns(req.Context(), r.DB, limit)
	if err != nil {
		r.serverError(w, req, "Failed to list sync runs", err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (r *Router) getSyncRun(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}
	run, err := shipstation.GetRun(req.Context(), r.DB, id)
	if errors.Is(err, shipstation.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "Sync run not found")
		return
	}
	if err != nil {
		r.serverError(w, req, "Failed to load sync run", err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}
