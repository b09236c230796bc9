package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/uminmay/collaborative-ai-editor/api/handlers"
	"github.com/uminmay/collaborative-ai-editor/internal/db"
	"github.com/uminmay/collaborative-ai-editor/internal/relay"
	"github.com/uminmay/collaborative-ai-editor/internal/repository"
	"github.com/uminmay/collaborative-ai-editor/internal/suggest"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var port, dbPath, filesDir string
	var verbose bool

	flagSet := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	flagSet.StringVar(&port, "port", getEnv("PORT", "8080"), "port to listen on")
	flagSet.StringVar(&dbPath, "db", getEnv("DB_PATH", "data/editor.db"), "sqlite database path")
	flagSet.StringVar(&filesDir, "files", getEnv("FILES_DIR", "data/files"), "directory holding the edited files")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		return fmt.Errorf("failed to create files directory: %w", err)
	}

	// Initialize database
	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	provider := newCompleter(logger)
	defer provider.Close()

	files := relay.NewFileStore(filesDir)
	relayHandler := relay.NewHandler(relay.Options{
		Files:     files,
		Users:     repository.NewUserRepository(database),
		Activity:  repository.NewActivityRepository(database),
		Completer: provider,
		Logger:    logger,
	})
	defer relayHandler.Close()

	// Initialize handlers
	fileHandler := handlers.NewFileHandler(files, relayHandler, logger)
	wsHandler := handlers.NewWebSocketHandler(relayHandler, logger)

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"editing": relayHandler.Hubs().Count(),
		})
	})

	wsHandler.RegisterRoutes(r)
	fileHandler.RegisterRoutes(r.Group("/api"))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting relay", "port", port, "files", filesDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down relay")
		relayHandler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// completer is a suggest.Completer that may hold background resources.
type completer interface {
	suggest.Completer
	Close()
}

type disabledCompleter struct{ suggest.Disabled }

func (disabledCompleter) Close() {}

// newCompleter builds the completion provider from the environment. Without
// COMPLETION_BASE_URL completions are disabled and always empty.
func newCompleter(logger *slog.Logger) completer {
	baseURL := getEnv("COMPLETION_BASE_URL", "")
	if baseURL == "" {
		logger.Warn("COMPLETION_BASE_URL not set, completions disabled")
		return disabledCompleter{}
	}
	backend := suggest.NewOpenAI(suggest.OpenAIConfig{
		BaseURL: baseURL,
		APIKey:  getEnv("COMPLETION_API_KEY", ""),
		Model:   getEnv("COMPLETION_MODEL", "llama-3.1-8b-instant"),
	})
	return suggest.NewCached(backend, 0)
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
