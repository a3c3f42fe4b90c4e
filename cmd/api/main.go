package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapreel/clipstitch/internal/api"
	"github.com/snapreel/clipstitch/internal/config"
	"github.com/snapreel/clipstitch/internal/db"
	"github.com/snapreel/clipstitch/internal/intake"
	"github.com/snapreel/clipstitch/internal/queue"
	"github.com/snapreel/clipstitch/internal/render"
	"github.com/snapreel/clipstitch/internal/result"
	"github.com/snapreel/clipstitch/internal/storage"
	"github.com/snapreel/clipstitch/internal/worker"
)

func main() {
	log.Println("Starting Clipstitch API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize disk storage
	stor, err := storage.New(cfg.TempDir, cfg.OutputDir)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	retention := time.Duration(cfg.OutputRetentionMinutes) * time.Minute
	stor.SweepOutputs(retention)

	// Create API handler
	intakeSvc := intake.New(stor, render.NewProber())
	handler := api.NewHandler(database, q, intakeSvc, stor)
	router := api.NewRouter(handler, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.CaptionFontPath == "" {
		log.Println("WARNING: No CAPTION_FONT_PATH set — text overlays disabled")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		executor := render.NewExecutor(time.Duration(cfg.RenderTimeoutMinutes) * time.Minute)
		results := result.New(stor, cfg.WebhookURL, retention)

		w := worker.New(database, q, executor, results, cfg.CaptionFontPath)

		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
