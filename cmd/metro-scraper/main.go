package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/metro-catalog-scraper/internal/app"
	"github.com/maltedev/metro-catalog-scraper/internal/config"
	"github.com/maltedev/metro-catalog-scraper/internal/jobs"
	"github.com/maltedev/metro-catalog-scraper/internal/metrics"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
)

func main() {
	var (
		cities      = flag.String("cities", "", "Comma-separated cities to scrape (overrides SCRAPER_CITIES)")
		output      = flag.String("output", "", "Directory for <city>.csv files (overrides OUTPUT_DIR)")
		useDB       = flag.Bool("db", false, "Also store runs in Postgres")
		useRedis    = flag.Bool("redis", false, "Also publish runs to a Redis stream")
		metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if *cities != "" {
		cfg.Scraper.Cities = splitList(*cities)
	}
	if *output != "" {
		cfg.Output.Dir = *output
	}
	if *useDB {
		cfg.Database.Enabled = true
	}
	if *useRedis {
		cfg.Redis.Enabled = true
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go app.ServeMetrics(ctx, cfg.Metrics.Addr, m, logger)
	}

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

	failed := 0
	for _, locality := range cfg.Scraper.Localities() {
		if err := scrapeCity(ctx, s, sinks, locality, logger); err != nil {
			logger.Error("city failed", "city", locality.Name, "error", err)
			failed++
		}
		if ctx.Err() != nil {
			break
		}
	}

	if failed > 0 || ctx.Err() != nil {
		sinks.Close()
		os.Exit(1)
	}
	logger.Info("all cities scraped", "cities", len(cfg.Scraper.Cities))
}

func scrapeCity(ctx context.Context, s jobs.Runner, sinks *app.Sinks, locality models.Locality, logger *slog.Logger) error {
	logger.Info("scraping city", "city", locality.Name)

	run, err := s.Scrape(ctx, locality)
	if err != nil {
		return err
	}

	var saveErr error
	for _, sink := range sinks.List {
		if err := sink.Save(ctx, run); err != nil {
			logger.Error("failed to save run", "city", locality.Name, "error", err)
			saveErr = err
		}
	}
	if saveErr != nil {
		return saveErr
	}

	logger.Info("city scraped",
		"city", locality.Name,
		"products", len(run.Products),
		"duration", run.FinishedAt.Sub(run.StartedAt))
	return nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
