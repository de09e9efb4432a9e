/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Loyalty Engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Connect Redis cache (optional)
  4. Create API handler with engine, recorder, cache, metrics
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: loyalty.db)
           Use ":memory:" for in-memory database
  -redis   Redis URL for the customer list cache (default: $REDIS_URL)
           Empty disables caching; the service is fully functional
           without it

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close Redis and database connections
  4. Exit

EXAMPLES:
  # Run with file database and local Redis
  ./server -db="./data/loyalty.db" -redis="redis://localhost:6379/0"

  # Run without caching
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
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

	"github.com/warp/loyalty-engine/api"
	"github.com/warp/loyalty-engine/cache"
	"github.com/warp/loyalty-engine/metrics"
	"github.com/warp/loyalty-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "loyalty.db", "SQLite database path")
	redisURL := flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL for list caching (empty disables)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize cache. Failure to reach Redis at startup is fatal
	// only when a URL was explicitly configured.
	cacheClient, err := cache.New(*redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	if cacheClient != nil {
		defer cacheClient.Close()
		log.Printf("Customer list caching enabled")
	} else {
		log.Printf("Running without Redis cache")
	}

	// Initialize handler
	handler := api.NewHandler(store, store, store)
	handler.UseCache(cacheClient)
	handler.UseMetrics(metrics.New())
	handler.UseLogger(log.Default())

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
