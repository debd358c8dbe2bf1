package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/silq-qms/qmsgo/internal/buildinfo"
	"github.com/silq-qms/qmsgo/internal/config"
	"github.com/silq-qms/qmsgo/internal/customers"
	"github.com/silq-qms/qmsgo/internal/database"
	"github.com/silq-qms/qmsgo/internal/distribution"
	"github.com/silq-qms/qmsgo/internal/handlers"
	"github.com/silq-qms/qmsgo/internal/lotlog"
	"github.com/silq-qms/qmsgo/internal/ratelimit"
	"github.com/silq-qms/qmsgo/internal/reports"
	"github.com/silq-qms/qmsgo/internal/salesorders"
	"github.com/silq-qms/qmsgo/internal/services/shipstation"
	"github.com/silq-qms/qmsgo/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := config.NewLogger(cfg)
	log.WithFields(logrus.Fields{"commit": buildinfo.CommitHash, "built": buildinfo.BuildTime}).Info("qmsgo starting")

	// 2. Initialize database (embedded vs external is detected from config)
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called in the shutdown path below

	// 3. Migrate schema
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	// 4. Wire services
	ctx := context.Background()
	store, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatalf("Failed to init artifact storage: %v", err)
	}
	lots, err := lotlog.LoadFile(cfg.LotLogPath)
	if err != nil {
		log.Fatalf("Failed to load lot log: %v", err)
	}
	for _, rej := range lots.Rejected {
		log.WithFields(logrus.Fields{"row": rej.Row, "lot": rej.Lot}).Warnf("Lot log row skipped: %s", rej.Reason)
	}

	sink := audit.NewDBSink(log)
	matcher := customers.NewMatcher(log)

	deps := handlers.Deps{
		DB:            db.DB,
		Log:           log,
		JWTSecret:     cfg.JWTSecret,
		Audit:         sink,
		Distributions: distribution.NewService(matcher, sink, log),
		SalesOrders:   salesorders.NewImporter(matcher, sink, log),
		Reports:       reports.NewGenerator(store, sink, log),
		SyncLimiter:   ratelimit.New(cfg.SyncRateLimitPerMin, 1, 0),
	}
	if cfg.ShipStation.Enabled() {
		client := shipstation.NewClient(cfg.ShipStation, log)
		deps.Sync = shipstation.NewSyncService(client, db.DB, matcher, lots, sink, cfg.ShipStation, log)
		log.Info("ShipStation sync enabled")
	} else {
		log.Warn("ShipStation credentials missing, sync endpoint disabled")
	}

	router := handlers.NewRouter(deps)

	// 5. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Infof("Received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Errorf("Storage close error: %v", err)
	}

	// Close database (this also stops embedded PostgreSQL)
	if err := db.Close(); err != nil {
		log.Errorf("Database close error: %v", err)
	}
	log.Info("Shutdown complete")
}
