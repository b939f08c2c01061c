package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maltedev/metro-catalog-scraper/internal/browser"
	"github.com/maltedev/metro-catalog-scraper/internal/metrics"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
	"github.com/maltedev/metro-catalog-scraper/internal/price"
	"github.com/maltedev/metro-catalog-scraper/internal/ratelimit"
	"github.com/maltedev/metro-catalog-scraper/internal/retry"
)

// FetchResult is the settled outcome of fetching one product link.
type FetchResult struct {
	Detail      models.ProductDetail
	Unavailable bool
}

// FetchCache memoizes fetch outcomes by link for the lifetime of one run.
// Failed fetches are not stored.
type FetchCache struct {
	entries *lru.Cache[string, FetchResult]
}

// NewFetchCache sizes the cache to hold every link of a listing, so nothing
// is evicted within the run.
func NewFetchCache(capacity int) *FetchCache {
	if capacity < 1 {
		capacity = 1
	}
	// lru.New only fails on a non-positive size.
	entries, _ := lru.New[string, FetchResult](capacity)
	return &FetchCache{entries: entries}
}

func (c *FetchCache) Get(link string) (FetchResult, bool) {
	return c.entries.Get(link)
}

func (c *FetchCache) Put(link string, result FetchResult) {
	c.entries.Add(link, result)
}

func (c *FetchCache) Len() int {
	return c.entries.Len()
}

// ItemFetcher reads product details on an isolated page of the session.
type ItemFetcher struct {
	session browser.Session
	cache   *FetchCache
	policy  retry.Policy
	limiter ratelimit.RateLimiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewItemFetcher(session browser.Session, cache *FetchCache, policy retry.Policy, logger *slog.Logger) *ItemFetcher {
	return &ItemFetcher{
		session: session,
		cache:   cache,
		policy:  policy,
		logger:  logger.With("component", "item_fetcher"),
	}
}

// WithRateLimiter spaces uncached fetches through l.
func (f *ItemFetcher) WithRateLimiter(l ratelimit.RateLimiter) *ItemFetcher {
	f.limiter = l
	return f
}

func (f *ItemFetcher) WithMetrics(m *metrics.Metrics) *ItemFetcher {
	f.metrics = m
	return f
}

// Fetch returns the detail record for link. Out-of-stock products yield
// ErrUnavailable. Each link is visited at most once per cache.
func (f *ItemFetcher) Fetch(ctx context.Context, link string) (models.ProductDetail, error) {
	if result, ok := f.cache.Get(link); ok {
		f.metrics.IncCacheHit()
		f.logger.Debug("product served from cache", "link", link)
		return result.unwrap(link)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return models.ProductDetail{}, err
		}
	}

	detail, err := retry.Value(ctx, f.policy, func(ctx context.Context) (models.ProductDetail, error) {
		return f.fetchOnce(ctx, link)
	})

	var result FetchResult
	switch {
	case err == nil:
		result = FetchResult{Detail: detail}
		f.metrics.IncItem(metrics.ItemFetched)
		f.logger.Info("product fetched", "id", detail.ID, "name", detail.Name, "link", link)
	case errors.Is(err, ErrUnavailable):
		result = FetchResult{Unavailable: true}
		f.metrics.IncItem(metrics.ItemUnavailable)
		f.logger.Info("product out of stock", "link", link)
	default:
		return models.ProductDetail{}, err
	}

	f.cache.Put(link, result)
	return result.unwrap(link)
}

func (r FetchResult) unwrap(link string) (models.ProductDetail, error) {
	if r.Unavailable {
		return models.ProductDetail{}, fmt.Errorf("%w: %s", ErrUnavailable, link)
	}
	return r.Detail, nil
}

func (f *ItemFetcher) fetchOnce(ctx context.Context, link string) (models.ProductDetail, error) {
	var detail models.ProductDetail
	err := f.session.Isolated(ctx, func(page browser.Page) error {
		if err := page.Goto(ctx, link); err != nil {
			return err
		}

		d, err := extractDetail(ctx, page, link)
		if err != nil {
			return err
		}
		detail = d
		return nil
	})
	return detail, err
}

func extractDetail(ctx context.Context, page browser.Page, link string) (models.ProductDetail, error) {
	name, err := page.Text(ctx, ProductName)
	if err != nil {
		return models.ProductDetail{}, unavailableIfMissing(err)
	}

	promo, err := page.Text(ctx, PromoPrice)
	if err != nil {
		return models.ProductDetail{}, unavailableIfMissing(err)
	}

	// No old price means the item is not discounted; NewProductDetail fills it from promo.
	regular, err := page.Text(ctx, RegularPrice)
	if err != nil && !errors.Is(err, browser.ErrElementNotFound) {
		return models.ProductDetail{}, err
	}

	article, err := page.Text(ctx, ProductArticle)
	if err != nil {
		return models.ProductDetail{}, err
	}

	brand, err := page.Text(ctx, BrandItem)
	if err != nil {
		return models.ProductDetail{}, err
	}

	return models.NewProductDetail(
		articleID(article),
		strings.TrimSpace(name),
		link,
		price.Normalize(regular),
		price.Normalize(promo),
		strings.TrimSpace(brand),
	), nil
}

func unavailableIfMissing(err error) error {
	if errors.Is(err, browser.ErrElementNotFound) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// articleID takes the value of an "Артикул: 123" style label.
func articleID(text string) string {
	if i := strings.LastIndex(text, ":"); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSpace(text)
}

// retryableItemError rejects outcomes that another attempt cannot change.
func retryableItemError(err error) bool {
	return !errors.Is(err, ErrUnavailable) &&
		!errors.Is(err, browser.ErrEngineUnavailable) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
