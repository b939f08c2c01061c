// Package app wires configuration into the scraper and its sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/metro-catalog-scraper/internal/browser"
	"github.com/maltedev/metro-catalog-scraper/internal/config"
	"github.com/maltedev/metro-catalog-scraper/internal/database"
	"github.com/maltedev/metro-catalog-scraper/internal/events"
	"github.com/maltedev/metro-catalog-scraper/internal/export"
	"github.com/maltedev/metro-catalog-scraper/internal/jobs"
	"github.com/maltedev/metro-catalog-scraper/internal/metrics"
	"github.com/maltedev/metro-catalog-scraper/internal/ratelimit"
	"github.com/maltedev/metro-catalog-scraper/internal/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// NewScraper builds a category scraper that starts a fresh browser per run.
func NewScraper(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*scraper.CategoryScraper, error) {
	browserCfg, err := cfg.Browser.ToBrowser()
	if err != nil {
		return nil, err
	}

	acquire := func(ctx context.Context) (browser.Session, error) {
		session, err := browser.Acquire(ctx, browserCfg, logger)
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	opts := []scraper.Option{scraper.WithMetrics(m)}
	if cfg.Scraper.ItemDelayMax > 0 {
		opts = append(opts, scraper.WithRateLimiter(
			ratelimit.NewSimpleRateLimiter(cfg.Scraper.ItemDelayMin, cfg.Scraper.ItemDelayMax)))
	}

	return scraper.NewCategoryScraper(cfg.Scraper.ToScraper(), acquire, logger, opts...), nil
}

// Sinks holds the enabled run consumers and the connections behind them.
type Sinks struct {
	List    []jobs.Sink
	closers []func()
}

func (s *Sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// NewSinks opens the CSV directory and, when enabled, Postgres and Redis.
func NewSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Sinks, error) {
	sinks := &Sinks{List: []jobs.Sink{export.NewCSVDir(cfg.Output.Dir)}}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			DSN:      cfg.Database.DSN(),
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks.closers = append(sinks.closers, db.Close)

		if err := db.Migrate(ctx); err != nil {
			sinks.Close()
			return nil, err
		}
		sinks.List = append(sinks.List, database.NewProductRepository(db))
		logger.Info("database sink enabled", "host", cfg.Database.Host, "database", cfg.Database.Name)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			sinks.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		publisher := events.NewPublisher(client, cfg.Redis.Stream, logger)
		sinks.closers = append(sinks.closers, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		})
		sinks.List = append(sinks.List, publisher)
		logger.Info("redis sink enabled", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	return sinks, nil
}

// ServeMetrics exposes the registry on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server starting", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
