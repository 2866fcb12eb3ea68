package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/library-service/cmd/api/book"
	"github.com/library-service/cmd/api/covers"
	"github.com/library-service/cmd/api/database"
	bookhttp "github.com/library-service/cmd/api/http"
	"github.com/library-service/cmd/api/inmemory"
	"github.com/library-service/cmd/api/notifications"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	_ "github.com/lib/pq"
)

func main() {
	err := run()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	repo, err := setupRepository()
	if err != nil {
		return err
	}

	coversDir := getEnv("COVERS_DIR", "uploads/covers")
	coverStore, err := covers.NewStore(coversDir)
	if err != nil {
		return fmt.Errorf("setting up covers store: %w", err)
	}

	ntfy := setupNotifications()

	bookService := book.NewService(repo, coverStore, ntfy)
	bookHandler := bookhttp.NewBookHandler(bookService, coverStore)

	if reqTimeoutStr := os.Getenv("HTTP_REQUEST_TIMEOUT"); reqTimeoutStr != "" {
		bookhttp.RequestTimeout, err = time.ParseDuration(reqTimeoutStr)
		if err != nil {
			return fmt.Errorf("parsing request timeout: %w", err)
		}
	}

	server := bookhttp.NewServer(bookhttp.ServerConfig{Port: 8080}, bookHandler)

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Println("unexpected http server error:", err)
		}
	}()
	log.Println("listening on", server.Addr)

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	ctx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	log.Println("Graceful shutdown complete.")
	return nil
}

/* Connects the postgres store and applies migrations. USE_INMEMORY_STORE=true
swaps in the memdb store for local runs without a database. */
func setupRepository() (book.Repository, error) {
	if os.Getenv("USE_INMEMORY_STORE") == "true" {
		log.Println("using in-memory store")
		return inmemory.NewInMemoryStore()
	}

	connStr := os.Getenv("DATABASE_URL")
	dbObject, err := database.ConnectDb(connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting with db: %w", err)
	}

	store := database.NewStore(dbObject)
	path := getEnv("DATABASE_MIGRATIONS_PATH", "cmd/api/database/migrations")
	err = database.MigrationUp(store, path)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrating: %w", err)
	}

	return store, nil
}

func setupNotifications() *notifications.Ntfy {
	enabled := os.Getenv("NOTIFICATIONS_ENABLED") == "true"
	baseURL := getEnv("NOTIFICATIONS_BASE_URL", "https://ntfy.sh/library_service")
	timeout := 5 * time.Second
	if timeoutStr := os.Getenv("NOTIFICATIONS_TIMEOUT"); timeoutStr != "" {
		parsed, err := time.ParseDuration(timeoutStr)
		if err != nil {
			log.Println("parsing notifications timeout, using default:", err)
		} else {
			timeout = parsed
		}
	}
	return notifications.NewNtfy(enabled, timeout, baseURL)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
