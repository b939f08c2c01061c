package scraper

import "github.com/maltedev/metro-catalog-scraper/internal/browser"

const (
	DefaultCategoryURL = "https://online.metro-cc.ru/category/sladosti-chipsy-sneki/shokolad-batonchiki"
	// SoldOutMarker is the label the catalog puts on tiles of products that ran out.
	SoldOutMarker = "Раскупили"
)

// Delivery locality controls.
var (
	AddressPanelButton  = browser.Locator{CSS: `button[class*="header-address__receive-button"]`}
	PickupTab           = browser.Locator{CSS: `div[class*="delivery__tab"]`, Nth: 2}
	ResetSelectionLink  = browser.Locator{CSS: `span[class*="reset-link"]`}
	CityInput           = browser.Locator{CSS: `input[label*="Введите название города"]`}
	FirstCitySuggestion = browser.Locator{CSS: `div[class*="city-item"]`}
	ConfirmButton       = browser.Locator{CSS: `button[type="button"] > span`, HasText: "Выбрать"}
)

// Category grid.
var (
	LoadMoreButton = browser.Locator{CSS: `button[class*="subcategory-or-type__load-more"]`}
	ListingTile    = browser.Locator{CSS: `div[class*="subcategory-or-type__products-item"]`}
	TileLink       = browser.Locator{CSS: `a[class*="product-card-photo__link"]`}
)

// Product page.
var (
	ProductArticle = browser.Locator{CSS: `p[itemprop*="productID"]`}
	ProductName    = browser.Locator{CSS: `h1[class*="product-page-content__product-name"]`}
	PromoPrice     = browser.Locator{CSS: `div[class*="product-unit-prices__actual-wrapper"]`}
	RegularPrice   = browser.Locator{CSS: `div[class*="product-unit-prices__old-wrapper"]`}
	BrandItem      = browser.Locator{CSS: `a[class*="product-attributes__list-item"]`, Nth: 3}
)
