package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"speza/internal/amqp"
	"speza/internal/cli"
	"speza/internal/log"
	"speza/internal/storage"
	"speza/internal/worker"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Error("Failed to load .env file", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting speza-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.EventsEnabled() {
		logger.Error("AMQP_URL is required for the replica worker")
		os.Exit(1)
	}

	mirror, err := storage.NewSQLiteRepository(cfg.MirrorDBPath)
	if err != nil {
		logger.Error("Failed to open mirror database", log.FieldError, err, "path", cfg.MirrorDBPath)
		os.Exit(1)
	}
	defer mirror.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	replica := worker.NewReplicaWorker(mirror, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := &http.Server{
		Addr:              ":" + cfg.WorkerPort,
		Handler:           healthHandler(mirror),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Consume(gctx, replica.Handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Info("Health endpoint listening", "port", cfg.WorkerPort)
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return health.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

// healthHandler reports ok while the mirror database answers pings.
func healthHandler(mirror *storage.SQLiteRepository) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := mirror.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("mirror unavailable"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
