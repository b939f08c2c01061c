package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/metro-catalog-scraper/internal/browser"
	"github.com/maltedev/metro-catalog-scraper/internal/metrics"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
	"github.com/maltedev/metro-catalog-scraper/internal/ratelimit"
	"github.com/maltedev/metro-catalog-scraper/internal/retry"
)

type Config struct {
	CategoryURL      string
	SoldOutMarker    string
	RunAttempts      int
	ItemAttempts     int
	RetryDelay       time.Duration
	PaginationSettle time.Duration
	Locality         LocalitySettle
	// FailOnItemError aborts the run when a product keeps failing after
	// its retries. Otherwise the product is logged and skipped.
	FailOnItemError bool
}

func DefaultConfig() Config {
	return Config{
		CategoryURL:      DefaultCategoryURL,
		SoldOutMarker:    SoldOutMarker,
		RunAttempts:      10,
		ItemAttempts:     10,
		PaginationSettle: 3 * time.Second,
		Locality: LocalitySettle{
			CityTyped:          2 * time.Second,
			SuggestionChosen:   time.Second,
			SelectionConfirmed: 3 * time.Second,
		},
	}
}

// SessionFactory starts a fresh browser session for one run attempt.
type SessionFactory func(ctx context.Context) (browser.Session, error)

// CategoryScraper collects every in-stock product of a category for a locality.
type CategoryScraper struct {
	cfg     Config
	acquire SessionFactory
	limiter ratelimit.RateLimiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*CategoryScraper)

func WithRateLimiter(l ratelimit.RateLimiter) Option {
	return func(s *CategoryScraper) { s.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CategoryScraper) { s.metrics = m }
}

func NewCategoryScraper(cfg Config, acquire SessionFactory, logger *slog.Logger, opts ...Option) *CategoryScraper {
	s := &CategoryScraper{
		cfg:     cfg,
		acquire: acquire,
		logger:  logger.With("component", "category_scraper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape runs ScrapeCategory and wraps the outcome in a timed Run.
func (s *CategoryScraper) Scrape(ctx context.Context, locality models.Locality) (*models.Run, error) {
	run := models.NewRun(locality)

	products, err := s.ScrapeCategory(ctx, locality)
	run.FinishedAt = time.Now()
	s.metrics.ObserveRun(err, run.FinishedAt.Sub(run.StartedAt))
	if err != nil {
		return nil, err
	}

	run.Products = products
	return run, nil
}

// ScrapeCategory returns the in-stock products of the category in listing
// order. A failed run is retried from scratch with a new browser session.
func (s *CategoryScraper) ScrapeCategory(ctx context.Context, locality models.Locality) ([]models.ProductDetail, error) {
	if strings.TrimSpace(locality.Name) == "" {
		return nil, ErrEmptyLocality
	}

	policy := retry.Policy{
		Name:        "scrape_category",
		MaxAttempts: s.cfg.RunAttempts,
		Delay:       s.cfg.RetryDelay,
		Retryable:   retryableRunError,
		Logger:      s.logger,
		OnRetry:     func(int, error) { s.metrics.IncRetry("scrape_category") },
	}

	products, err := retry.Value(ctx, policy, func(ctx context.Context) ([]models.ProductDetail, error) {
		return s.scrapeOnce(ctx, locality)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scrape category for %s: %w", locality, err)
	}

	s.logger.Info("category scraped", "city", locality.Name, "products", len(products))
	return products, nil
}

func (s *CategoryScraper) scrapeOnce(ctx context.Context, locality models.Locality) ([]models.ProductDetail, error) {
	session, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("failed to close browser session", "error", err)
		}
	}()

	page := session.Page()

	s.logger.Info("opening category", "url", s.cfg.CategoryURL, "city", locality.Name)
	if err := page.Goto(ctx, s.cfg.CategoryURL); err != nil {
		return nil, err
	}

	if err := NewLocalitySelector(s.cfg.Locality, s.logger).Select(ctx, page, locality); err != nil {
		return nil, err
	}

	if _, err := NewPaginator(s.cfg.PaginationSettle, s.metrics, s.logger).ExpandAll(ctx, page); err != nil {
		return nil, err
	}

	html, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}

	catalog, err := ParseListing(html, s.cfg.CategoryURL)
	if err != nil {
		return nil, err
	}
	s.logger.Info("listing enumerated", "entries", len(catalog.Entries))

	return s.collect(ctx, session, catalog)
}

func (s *CategoryScraper) collect(ctx context.Context, session browser.Session, catalog *models.CatalogPage) ([]models.ProductDetail, error) {
	itemPolicy := retry.Policy{
		Name:        "fetch_item",
		MaxAttempts: s.cfg.ItemAttempts,
		Delay:       s.cfg.RetryDelay,
		Retryable:   retryableItemError,
		Logger:      s.logger,
		OnRetry:     func(int, error) { s.metrics.IncRetry("fetch_item") },
	}
	fetcher := NewItemFetcher(session, NewFetchCache(len(catalog.Entries)), itemPolicy, s.logger).
		WithRateLimiter(s.limiter).
		WithMetrics(s.metrics)

	products := make([]models.ProductDetail, 0, len(catalog.Entries))
	for _, entry := range catalog.Entries {
		if entry.HasMarker(s.cfg.SoldOutMarker) {
			s.metrics.IncItem(metrics.ItemSoldOut)
			s.logger.Debug("skipping sold out product", "link", entry.Link)
			continue
		}

		detail, err := fetcher.Fetch(ctx, entry.Link)
		switch {
		case err == nil:
			products = append(products, detail)
		case errors.Is(err, ErrUnavailable):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case s.cfg.FailOnItemError:
			return nil, fmt.Errorf("failed to fetch product %s: %w", entry.Link, err)
		default:
			s.metrics.IncItem(metrics.ItemFailed)
			s.logger.Error("skipping product after retries", "link", entry.Link, "error", err)
		}
	}

	return products, nil
}

func retryableRunError(err error) bool {
	return !errors.Is(err, browser.ErrEngineUnavailable) &&
		!errors.Is(err, ErrEmptyLocality) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
