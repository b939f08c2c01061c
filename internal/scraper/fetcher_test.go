package scraper

import (
	"context"
	"testing"

	"github.com/maltedev/metro-catalog-scraper/internal/browser"
	"github.com/maltedev/metro-catalog-scraper/internal/metrics"
	"github.com/maltedev/metro-catalog-scraper/internal/retry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alpenLink    = "https://shop.test/products/alpen-gold"
	snickersLink = "https://shop.test/products/snickers"
)

func newTestFetcher(site *fakeSite, attempts int) (*ItemFetcher, *fakeSession) {
	session := site.newSession()
	policy := retry.Policy{
		Name:        "fetch_item",
		MaxAttempts: attempts,
		Retryable:   retryableItemError,
	}
	return NewItemFetcher(session, NewFetchCache(8), policy, discardLogger()), session
}

func TestItemFetcher_Fetch(t *testing.T) {
	site := newFakeSite()
	site.pages[alpenLink] = productFixture{
		article: "Артикул: 123456 ",
		name:    "  Шоколад Alpen Gold молочный ",
		promo:   "89,90 руб.",
		regular: "1 299 руб.",
		brand:   " Alpen Gold ",
	}.html()

	fetcher, session := newTestFetcher(site, 3)

	detail, err := fetcher.Fetch(context.Background(), alpenLink)
	require.NoError(t, err)

	assert.Equal(t, "123456", detail.ID)
	assert.Equal(t, "Шоколад Alpen Gold молочный", detail.Name)
	assert.Equal(t, alpenLink, detail.Link)
	assert.Equal(t, "1299", detail.RegularPrice)
	assert.Equal(t, "89,90", detail.PromoPrice)
	assert.Equal(t, "Alpen Gold", detail.BrandName)

	assert.Equal(t, 1, session.isolatedOpened)
	assert.Equal(t, 1, session.isolatedClosed)
	assert.Same(t, session.primary, session.active)
}

func TestItemFetcher_RegularPriceFallsBackToPromo(t *testing.T) {
	site := newFakeSite()
	site.pages[alpenLink] = inStock("42", "Alpen Gold", "Alpen Gold", "119 руб.").html()

	fetcher, _ := newTestFetcher(site, 3)

	detail, err := fetcher.Fetch(context.Background(), alpenLink)
	require.NoError(t, err)
	assert.Equal(t, "119", detail.PromoPrice)
	assert.Equal(t, detail.PromoPrice, detail.RegularPrice)
}

func TestItemFetcher_Memoizes(t *testing.T) {
	site := newFakeSite()
	site.pages[alpenLink] = inStock("42", "Alpen Gold", "Alpen Gold", "119").html()

	fetcher, session := newTestFetcher(site, 3)
	m := metrics.New()
	fetcher.WithMetrics(m)

	first, err := fetcher.Fetch(context.Background(), alpenLink)
	require.NoError(t, err)
	second, err := fetcher.Fetch(context.Background(), alpenLink)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, site.visits[alpenLink])
	assert.Equal(t, 1, session.isolatedOpened)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestItemFetcher_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		fixture productFixture
	}{
		{"no promo price", productFixture{article: "Артикул: 1", name: "Snickers", brand: "Mars"}},
		{"no name", productFixture{article: "Артикул: 1", promo: "59", brand: "Mars"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newFakeSite()
			site.pages[snickersLink] = tt.fixture.html()
			fetcher, session := newTestFetcher(site, 3)

			_, err := fetcher.Fetch(context.Background(), snickersLink)
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.Equal(t, 1, site.visits[snickersLink], "unavailable products are not retried")

			_, err = fetcher.Fetch(context.Background(), snickersLink)
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.Equal(t, 1, site.visits[snickersLink], "unavailable outcome is cached")
			assert.Same(t, session.primary, session.active)
		})
	}
}

func TestItemFetcher_RetriesNavigation(t *testing.T) {
	site := newFakeSite()
	site.pages[alpenLink] = inStock("42", "Alpen Gold", "Alpen Gold", "119").html()
	site.gotoFailures[alpenLink] = 2

	fetcher, session := newTestFetcher(site, 3)

	detail, err := fetcher.Fetch(context.Background(), alpenLink)
	require.NoError(t, err)
	assert.Equal(t, "42", detail.ID)

	assert.Equal(t, 3, site.visits[alpenLink])
	assert.Equal(t, 3, session.isolatedOpened)
	assert.Equal(t, 3, session.isolatedClosed)
	assert.Same(t, session.primary, session.active)
}

func TestItemFetcher_MarkupDriftExhaustsRetries(t *testing.T) {
	site := newFakeSite()
	fixture := inStock("42", "Alpen Gold", "", "119")
	site.pages[alpenLink] = fixture.html()

	fetcher, session := newTestFetcher(site, 3)

	_, err := fetcher.Fetch(context.Background(), alpenLink)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, 3, site.visits[alpenLink])
	assert.Zero(t, fetcher.cache.Len(), "failures are not cached")
	assert.Same(t, session.primary, session.active)
}

func TestArticleID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Артикул: 123456", "123456"},
		{"Артикул:987", "987"},
		{"a:b: 55 ", "55"},
		{" 777 ", "777"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := articleID(tt.input); got != tt.expected {
			t.Errorf("articleID(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFetchCache(t *testing.T) {
	cache := NewFetchCache(0)

	_, ok := cache.Get(alpenLink)
	assert.False(t, ok)

	cache.Put(alpenLink, FetchResult{Unavailable: true})
	result, ok := cache.Get(alpenLink)
	require.True(t, ok)
	assert.True(t, result.Unavailable)
	assert.Equal(t, 1, cache.Len())
}
