/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the investment ledger engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Load the plan/wallet catalog and upsert plans
  4. Create API handler with dependencies
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: ledger.db)
            Use ":memory:" for an in-memory database
  -catalog  Path to the plan/wallet catalog JSON (default: built-in)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with a custom catalog
  ./server -catalog="./catalog.json"

ENVIRONMENT:
  No environment variables currently. All config via flags.

SEE ALSO:
  - api/server.go: Router configuration
  - factory/catalog.go: Catalog format and loading
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/invest-ledger/api"
	"github.com/warp/invest-ledger/factory"
	"github.com/warp/invest-ledger/funding"
	"github.com/warp/invest-ledger/ledger"
	"github.com/warp/invest-ledger/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	catalogPath := flag.String("catalog", "", "plan/wallet catalog JSON (empty = built-in)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Load catalog and upsert plans
	var catalog *factory.Catalog
	if *catalogPath != "" {
		catalog, err = factory.LoadCatalogFile(*catalogPath)
		if err != nil {
			log.Fatalf("Failed to load catalog: %v", err)
		}
	} else {
		catalog = factory.DefaultCatalog()
	}
	clock := ledger.SystemClock{}
	if err := factory.ApplyPlans(context.Background(), store, catalog.Plans, clock); err != nil {
		log.Fatalf("Failed to apply plan catalog: %v", err)
	}

	// Pricing: static development rates behind a short-TTL cache. Swap
	// the source for a live feed in production.
	rates := funding.NewCachedRateProvider(funding.StaticRates{
		"BTC":  decimal.NewFromInt(65000),
		"ETH":  decimal.NewFromInt(3400),
		"USDT": decimal.NewFromInt(1),
	}, 5*time.Minute)

	// Initialize handler
	handler := api.NewHandler(store, store, rates, ledger.LogNotifier{}, clock)
	handler.PaymentMethods = catalog.PaymentMethods

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
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
