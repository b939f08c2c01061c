package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/metro-catalog-scraper/internal/browser"
)

const testCategoryURL = "https://shop.test/category/chocolate"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CategoryURL = testCategoryURL
	cfg.RunAttempts = 3
	cfg.ItemAttempts = 3
	cfg.PaginationSettle = 0
	cfg.Locality = LocalitySettle{}
	return cfg
}

// fakeSite serves static HTML documents and records every interaction.
type fakeSite struct {
	pages        map[string]string
	gotoFailures map[string]int
	visits       map[string]int

	// loadMore is how many more times the load more control can be pressed.
	loadMore        int
	loadMoreLookups int

	actions []string

	acquireErrs  []error
	acquireCalls int
	sessions     []*fakeSession
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:        make(map[string]string),
		gotoFailures: make(map[string]int),
		visits:       make(map[string]int),
	}
}

func (site *fakeSite) acquire(ctx context.Context) (browser.Session, error) {
	site.acquireCalls++
	if len(site.acquireErrs) > 0 {
		err := site.acquireErrs[0]
		site.acquireErrs = site.acquireErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	session := site.newSession()
	site.sessions = append(site.sessions, session)
	return session, nil
}

func (site *fakeSite) newSession() *fakeSession {
	primary := &fakePage{site: site}
	return &fakeSession{site: site, primary: primary, active: primary}
}

type fakePage struct {
	site *fakeSite
	url  string
	doc  *goquery.Document
}

func (p *fakePage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.site.visits[url]++
	if p.site.gotoFailures[url] > 0 {
		p.site.gotoFailures[url]--
		return fmt.Errorf("navigation to %s timed out", url)
	}

	html, ok := p.site.pages[url]
	if !ok {
		return fmt.Errorf("no page at %s", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}

	p.url, p.doc = url, doc
	return nil
}

func (p *fakePage) lookup(loc browser.Locator) (*goquery.Selection, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, loc)
	}

	sel := p.doc.Find(loc.CSS)
	if loc.HasText != "" {
		sel = sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), loc.HasText)
		})
	}
	if sel.Length() <= loc.Nth {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, loc)
	}
	return sel.Eq(loc.Nth), nil
}

func (p *fakePage) Click(ctx context.Context, loc browser.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.site.actions = append(p.site.actions, "click "+loc.String())

	if loc == LoadMoreButton {
		p.site.loadMoreLookups++
		if p.site.loadMore == 0 {
			return fmt.Errorf("%w: %s", browser.ErrElementNotFound, loc)
		}
		p.site.loadMore--
		return nil
	}

	_, err := p.lookup(loc)
	return err
}

func (p *fakePage) Type(ctx context.Context, loc browser.Locator, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.site.actions = append(p.site.actions, "type "+loc.String()+" "+text)

	_, err := p.lookup(loc)
	return err
}

func (p *fakePage) Text(ctx context.Context, loc browser.Locator) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sel, err := p.lookup(loc)
	if err != nil {
		return "", err
	}
	return sel.Text(), nil
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.doc == nil {
		return "", fmt.Errorf("no document loaded")
	}
	return p.site.pages[p.url], nil
}

type fakeSession struct {
	site    *fakeSite
	primary *fakePage
	active  *fakePage

	isolatedOpened int
	isolatedClosed int
	closed         bool
}

func (s *fakeSession) Page() browser.Page {
	return s.active
}

func (s *fakeSession) Isolated(ctx context.Context, fn func(browser.Page) error) error {
	if s.active != s.primary {
		return browser.ErrNestedIsolation
	}

	page := &fakePage{site: s.site}
	s.active = page
	s.isolatedOpened++
	defer func() {
		s.isolatedClosed++
		s.active = s.primary
	}()

	return fn(page)
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

const localityControls = `
<button class="header-address__receive-button">Самовывоз из ТЦ</button>
<div class="delivery__tabs">
  <div class="delivery__tab">Доставка</div>
  <div class="delivery__tab">Экспресс</div>
  <div class="delivery__tab">Самовывоз</div>
</div>
<span class="reset-link">Сбросить</span>
<input class="city-input" label="Введите название города" />
<div class="city-item">Москва</div>
<button type="button"><span>Отмена</span></button>
<button type="button"><span>Выбрать</span></button>
`

func categoryHTML(tiles ...string) string {
	return "<html><body>" + localityControls +
		`<div class="subcategory-or-type__products">` + strings.Join(tiles, "") + `</div>` +
		`<button class="subcategory-or-type__load-more">Показать ещё</button>` +
		"</body></html>"
}

func tile(text, href string) string {
	link := ""
	if href != "" {
		link = fmt.Sprintf(`<a class="product-card-photo__link" href="%s"><img/></a>`, href)
	}
	return fmt.Sprintf(`<div class="subcategory-or-type__products-item">%s<span class="product-card-name">%s</span></div>`, link, text)
}

type productFixture struct {
	article string
	name    string
	promo   string
	regular string
	brand   string
}

func (f productFixture) html() string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if f.article != "" {
		fmt.Fprintf(&b, `<p itemprop="productID" class="product-page-content__article">%s</p>`, f.article)
	}
	if f.name != "" {
		fmt.Fprintf(&b, `<h1 class="product-page-content__product-name">%s</h1>`, f.name)
	}
	if f.promo != "" {
		fmt.Fprintf(&b, `<div class="product-unit-prices__actual-wrapper">%s</div>`, f.promo)
	}
	if f.regular != "" {
		fmt.Fprintf(&b, `<div class="product-unit-prices__old-wrapper">%s</div>`, f.regular)
	}
	if f.brand != "" {
		b.WriteString(`<ul>`)
		for _, item := range []string{"Россия", "Шоколад", "Молочный", f.brand} {
			fmt.Fprintf(&b, `<a class="product-attributes__list-item">%s</a>`, item)
		}
		b.WriteString(`</ul>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func inStock(article, name, brand, promo string) productFixture {
	return productFixture{article: "Артикул: " + article, name: name, promo: promo, brand: brand}
}
