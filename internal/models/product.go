package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Locality is a delivery city selectable on the catalog.
type Locality struct {
	Name string `json:"name"`
}

func (l Locality) String() string {
	return l.Name
}

// ListingEntry is one product tile of the category grid.
type ListingEntry struct {
	Text string `json:"text"`
	Link string `json:"link"`
}

// HasMarker reports whether the tile text contains marker, e.g. the sold-out label.
func (e ListingEntry) HasMarker(marker string) bool {
	return marker != "" && strings.Contains(e.Text, marker)
}

// CatalogPage is the fully expanded category grid in display order.
type CatalogPage struct {
	URL     string
	Entries []ListingEntry
}

// ProductDetail holds the fields read from a product page.
type ProductDetail struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Link         string `json:"link"`
	RegularPrice string `json:"regular_price"`
	PromoPrice   string `json:"promo_price"`
	BrandName    string `json:"brand_name"`
}

// NewProductDetail builds a detail record. A listing with a single sale price has
// no regular price, so the promo price stands in for both.
func NewProductDetail(id, name, link, regular, promo, brand string) ProductDetail {
	if regular == "" {
		regular = promo
	}
	return ProductDetail{
		ID:           id,
		Name:         name,
		Link:         link,
		RegularPrice: regular,
		PromoPrice:   promo,
		BrandName:    brand,
	}
}

// CSVHeader is the column order used by tabular exports.
func CSVHeader() []string {
	return []string{"id", "name", "link", "regular_price", "promo_price", "brand_name"}
}

// Record returns the detail as a row matching CSVHeader.
func (p ProductDetail) Record() []string {
	return []string{p.ID, p.Name, p.Link, p.RegularPrice, p.PromoPrice, p.BrandName}
}

// Run is the outcome of one category scrape.
type Run struct {
	ID         uuid.UUID       `json:"id"`
	Locality   Locality        `json:"locality"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Products   []ProductDetail `json:"products"`
}

func NewRun(locality Locality) *Run {
	return &Run{
		ID:        uuid.New(),
		Locality:  locality,
		StartedAt: time.Now(),
		Products:  make([]ProductDetail, 0),
	}
}
