package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"speza/internal/cli"
	apphttp "speza/internal/http"
	"speza/internal/log"
	"speza/internal/services"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Error("Failed to load .env file", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := cli.OpenStore(startCtx, logger, cfg)
	cancelStart()
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	opts := services.Options{
		MoodThreshold: &cfg.MoodThreshold,
		CacheTTL:      cfg.ReportCacheTTL,
		Cleanup:       store.Close,
		Logger:        logger,
	}
	publisher, err := cli.NewPublisher(logger, cfg)
	if err != nil {
		// the ledger keeps working without events
		logger.Warn("AMQP unavailable, continuing without events", log.FieldError, err)
	} else if publisher != nil {
		opts.Publisher = publisher
	}
	svc := services.NewLedgerService(store.Store, opts)

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := svc.Close(); err != nil {
			logger.Error("Ledger close error", log.FieldError, err)
		}
	})

	logger.Info("Starting speza server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", cfg.EventsEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
