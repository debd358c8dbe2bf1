package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/buildinfo"
	"github.com/silq-qms/qmsgo/internal/distribution"
	"github.com/silq-qms/qmsgo/internal/middleware"
	"github.com/silq-qms/qmsgo/internal/ratelimit"
	"github.com/silq-qms/qmsgo/internal/reports"
	"github.com/silq-qms/qmsgo/internal/salesorders"
	"github.com/silq-qms/qmsgo/internal/services/shipstation"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxUploadBytes caps distribution spreadsheet uploads
const maxUploadBytes = 16 << 20

// Deps carries the services the HTTP layer delegates to
type Deps struct {
	DB            *gorm.DB
	Log           logrus.FieldLogger
	JWTSecret     string
	Audit         audit.Sink
	Distributions *distribution.Service
	SalesOrders   *salesorders.Importer
	// Sync is nil when fulfillment credentials are not configured
	Sync        *shipstation.SyncService
	Reports     *reports.Generator
	SyncLimiter *ratelimit.Limiter
}

// Router wraps the mux router and its services
type Router struct {
	*mux.Router
	Deps
	log logrus.FieldLogger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(d Deps) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		Deps:   d,
		log:    d.Log.WithField("module", "http"),
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(d.JWTSecret))

	// Distribution log
	api.HandleFunc("/distributions", r.createDistribution).Methods("POST")
	api.HandleFunc("/distributions/import", r.importDistributions).Methods("POST")
	api.HandleFunc("/distributions/{id:[0-9]+}", r.updateDistribution).Methods("PUT")
	api.HandleFunc("/distributions/{id:[0-9]+}", r.deleteDistribution).Methods("DELETE")

	// Customers
	api.HandleFunc("/customers/candidates", r.customerCandidates).Methods("GET")
	api.HandleFunc("/customers/{id:[0-9]+}/stats", r.customerStats).Methods("GET")

	// Sales orders
	api.HandleFunc("/sales-orders/import", r.importSalesOrder).Methods("POST")
	api.HandleFunc("/sales-orders/backfill", r.backfillSalesOrders).Methods("POST")

	// Fulfillment sync
	syncTrigger := http.Handler(http.HandlerFunc(r.triggerSync))
	if d.SyncLimiter != nil {
		syncTrigger = d.SyncLimiter.Middleware(func(req *http.Request) string {
			return middleware.Actor(req.Context())
		})(syncTrigger)
	}
	api.Handle("/shipstation/sync", syncTrigger).Methods("POST")
	api.HandleFunc("/shipstation/runs", r.listSyncRuns).Methods("GET")
	api.HandleFunc("/shipstation/runs/{id:[0-9]+}", r.getSyncRun).Methods("GET")

	// Tracing reports
	api.HandleFunc("/tracing-reports", r.generateTracingReport).Methods("POST")
	api.HandleFunc("/tracing-reports/{id:[0-9]+}/download", r.downloadTracingReport).Methods("GET")
	api.HandleFunc("/tracing-reports/{id:[0-9]+}/pdf", r.tracingReportPDF).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	status := "ok"
	if sqlDB, err := r.DB.DB(); err != nil || sqlDB.PingContext(req.Context()) != nil {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"syncEnabled": r.Sync != nil,
		"build":       buildinfo.Fields(),
	})
}

func pathID(req *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
	return id, err == nil && id > 0
}

// serverError logs the cause and hides it from the client
func (r *Router) serverError(w http.ResponseWriter, req *http.Request, msg string, err error) {
	r.log.WithFields(logrus.Fields{
		"path":   req.URL.Path,
		"method": req.Method,
		"error":  err,
	}).Error(msg)
	respondError(w, http.StatusInternalServerError, msg)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
