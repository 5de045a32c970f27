package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ricevute/internal/amqp"
	"ricevute/internal/blob"
	"ricevute/internal/cleanup"
	"ricevute/internal/config"
	"ricevute/internal/extract"
	"ricevute/internal/ingest"
	applog "ricevute/internal/log"
	"ricevute/internal/storage"
	"ricevute/internal/thumbnail"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("Starting ricevute-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var blobs blob.Store
	switch cfg.BlobBackend {
	case "s3":
		s3Store, err := blob.NewS3Store(ctx, blob.S3Config{
			Endpoint:  cfg.BlobEndpoint,
			Region:    cfg.BlobRegion,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
		})
		if err != nil {
			logger.Error("Failed to initialize blob store", applog.FieldError, err)
			os.Exit(1)
		}
		blobs = s3Store
		logger.Info("Initialized S3 blob backend", "endpoint", cfg.BlobEndpoint)
	default:
		blobs = blob.NewMemoryStore()
		logger.Warn("Memory blob backend in the worker: objects uploaded by the API process are not visible here")
	}

	if cfg.ExtractorURL == "" {
		logger.Warn("No extractor backend configured, records will carry default fields")
	}
	extractor := extract.NewClient(cfg.ExtractorURL, cfg.ExtractorTimeout)
	thumbnails := thumbnail.NewGenerator(blobs)
	orchestrator := ingest.NewOrchestrator(blobs, repo, extractor, thumbnails, repo)
	remover := cleanup.NewRemover(blobs)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPObjectQueue, cfg.AMQPDeletedQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Consume both queues; on broken connections back off and reconnect.
	go func() {
		for {
			err := amqpClient.Consume(ctx, orchestrator.HandleObjectFinalizedMessage, remover.HandleExpenseDeleted)
			if ctx.Err() != nil {
				return
			}
			logger.Error("Message consumption stopped", applog.FieldError, err)
			if !amqp.IsConnectionError(err) {
				// re-dialing cannot fix a protocol or setup problem
				logger.Error("Non-connection consume failure, shutting down", applog.FieldError, err)
				cancel()
				return
			}
			if err := amqpClient.Reconnect(ctx); err != nil {
				logger.Error("Reconnect failed, shutting down", applog.FieldError, err)
				cancel()
				return
			}
			logger.Info("Reconnected to broker")
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give in-flight handlers a moment to settle before the process exits.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
