package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
)

// ParseListing extracts the product tiles of an expanded category page in
// display order. Relative links are resolved against pageURL and tiles
// without a link are skipped.
func ParseListing(html, pageURL string) (*models.CatalogPage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid category url %q: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse category page: %w", err)
	}

	page := &models.CatalogPage{URL: pageURL}
	doc.Find(ListingTile.CSS).Each(func(_ int, tile *goquery.Selection) {
		href, ok := tile.Find(TileLink.CSS).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}

		page.Entries = append(page.Entries, models.ListingEntry{
			Text: renderedText(tile),
			Link: base.ResolveReference(ref).String(),
		})
	})

	return page, nil
}

// nonRendered matches nodes whose text a browser does not display.
const nonRendered = "script, style, noscript, template, [hidden]"

// renderedText is the tile's visible text with whitespace collapsed.
func renderedText(tile *goquery.Selection) string {
	visible := tile.Clone()
	visible.Find(nonRendered).Remove()
	return cleanText(visible.Text())
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
