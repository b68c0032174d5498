/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the entitlement ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment (.env honored)
  2. Initialize SQLite store
  3. Create the ledger engine
  4. Configure HTTP router and sweep scheduler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweep scheduler
  4. Close database connection
  5. Exit

ENVIRONMENT:
  PORT, DATABASE_PATH, RETENTION_YEARS, EXPIRY_WARNING_DAYS,
  COMPLIANCE_THRESHOLD, OBLIGATION_FLOOR, DEFAULT_POLICY,
  SWEEP_INTERVAL, SWEEP_ENABLED. See config/config.go for defaults.

EXAMPLES:
  # Run with file database
  DATABASE_PATH=./data/yukyu.db ./server

  # Run with in-memory database
  DATABASE_PATH=":memory:" ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jokken79/yukyu-ledger/api"
	"github.com/jokken79/yukyu-ledger/config"
	"github.com/jokken79/yukyu-ledger/ledger"
	"github.com/jokken79/yukyu-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	clock := ledger.SystemClock{}
	engine := ledger.NewEngine(store, clock, cfg.Ledger())

	handler := api.NewHandler(engine, clock)
	router := api.NewRouter(handler)

	scheduler := api.NewSweepScheduler(engine, clock)
	scheduler.CheckInterval = cfg.SweepInterval
	scheduler.Enabled = cfg.SweepEnabled
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.Port)
		log.Printf("API available at http://localhost:%s/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
