package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/metro-catalog-scraper/internal/api"
	"github.com/maltedev/metro-catalog-scraper/internal/app"
	"github.com/maltedev/metro-catalog-scraper/internal/config"
	"github.com/maltedev/metro-catalog-scraper/internal/jobs"
	"github.com/maltedev/metro-catalog-scraper/internal/metrics"
	"github.com/maltedev/metro-catalog-scraper/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	s, err := app.NewScraper(cfg, m, logger)
	if err != nil {
		logger.Error("failed to create scraper", "error", err)
		os.Exit(1)
	}

	sinks, err := app.NewSinks(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open sinks", "error", err)
		os.Exit(1)
	}
	defer sinks.Close()

	q := queue.NewInMemoryQueue(cfg.Queue.MaxSize)
	jobManager := jobs.NewManager(q, s, logger, sinks.List...)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := jobManager.StartWorker(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("job worker stopped with error", "error", err)
		}
	}()

	handlers := api.NewHandlers(jobManager, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handlers, m.Registry),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		q.Close()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		stopWorker(q, cancel, workerDone)
		sinks.Close()
		os.Exit(1)
	}

	<-workerDone
	logger.Info("server stopped")
}

// stopWorker refuses new jobs, cancels the running one and waits for the worker to exit.
func stopWorker(q queue.Queue, cancel context.CancelFunc, workerDone <-chan struct{}) {
	q.Close()
	cancel()
	<-workerDone
}
