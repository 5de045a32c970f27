package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ricevute/internal/amqp"
	"ricevute/internal/auth"
	"ricevute/internal/blob"
	"ricevute/internal/config"
	"ricevute/internal/feed"
	apphttp "ricevute/internal/http"
	applog "ricevute/internal/log"
	"ricevute/internal/services"
	"ricevute/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentApp)
	applog.SetDefault(logger)

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
		logger.Info("Initialized S3 blob backend", "endpoint", cfg.BlobEndpoint, applog.FieldBucket, cfg.BlobBucket)
	default:
		blobs = blob.NewMemoryStore()
		logger.Info("Initialized memory blob backend")
	}

	// The broker is optional for the API process: without it uploads and
	// deletions still work, they just go unannounced until the worker's
	// periodic refresh picks the records up.
	var publisher services.Publisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPObjectQueue, cfg.AMQPDeletedQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without a publisher", applog.FieldError, err)
	} else {
		defer amqpClient.Close()
		publisher = amqpClient
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authSvc := auth.NewService(repo, tokens, cfg.AllowedEmailDomain)
	expenses := services.NewExpenseService(repo, blobs, publisher, cfg.BlobBucket, cfg.PageSize)

	fd := feed.New(repo, cfg.PageSize)
	if err := fd.Start(ctx); err != nil {
		logger.Error("Failed to load expense feed", applog.FieldError, err)
		os.Exit(1)
	}
	defer fd.Close()

	// Records written by the worker process surface through periodic refresh.
	go func() {
		ticker := time.NewTicker(cfg.FeedRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fd.Refresh(ctx); err != nil {
					logger.Error("Feed refresh failed", applog.FieldError, err)
				}
			}
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, authSvc, tokens, expenses, fd)

	// Configure server timeouts and limits
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 0 // SSE stream stays open
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting ricevute server", "port", cfg.Port, "blob_backend", cfg.BlobBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
