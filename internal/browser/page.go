package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Locator addresses an element by CSS selector, optionally narrowed to
// matches containing HasText, and picks the Nth match in document order.
type Locator struct {
	CSS     string
	HasText string
	Nth     int
}

func (l Locator) String() string {
	s := l.CSS
	if l.HasText != "" {
		s += fmt.Sprintf(" :has-text(%q)", l.HasText)
	}
	if l.Nth > 0 {
		s += fmt.Sprintf(" >> nth=%d", l.Nth)
	}
	return s
}

// Page is the set of interactions the scraper performs on a browsing context.
// Lookups wait up to the implicit wait and fail with ErrElementNotFound.
type Page interface {
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, loc Locator) error
	Type(ctx context.Context, loc Locator, text string) error
	Text(ctx context.Context, loc Locator) (string, error)
	Content(ctx context.Context) (string, error)
}

// Session is a live browser owned by a single scrape run.
type Session interface {
	// Page returns the active page.
	Page() Page
	// Isolated runs fn on a secondary page that is closed afterwards.
	Isolated(ctx context.Context, fn func(Page) error) error
	Close() error
}

type playwrightPage struct {
	page         playwright.Page
	waitUntil    *playwright.WaitUntilState
	implicitWait time.Duration
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: p.waitUntil,
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) find(ctx context.Context, loc Locator) (playwright.Locator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := p.page.Locator(loc.CSS)
	if loc.HasText != "" {
		l = l.Filter(playwright.LocatorFilterOptions{HasText: loc.HasText})
	}
	l = l.Nth(loc.Nth)

	err := l.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(p.implicitWait.Milliseconds())),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to locate %s: %w", loc, err)
	}
	return l, nil
}

func (p *playwrightPage) Click(ctx context.Context, loc Locator) error {
	l, err := p.find(ctx, loc)
	if err != nil {
		return err
	}
	if err := l.Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", loc, err)
	}
	return nil
}

func (p *playwrightPage) Type(ctx context.Context, loc Locator, text string) error {
	l, err := p.find(ctx, loc)
	if err != nil {
		return err
	}
	// Key by key, so the page sees input events and renders suggestions.
	if err := l.PressSequentially(text); err != nil {
		return fmt.Errorf("failed to type into %s: %w", loc, err)
	}
	return nil
}

func (p *playwrightPage) Text(ctx context.Context, loc Locator) (string, error) {
	l, err := p.find(ctx, loc)
	if err != nil {
		return "", err
	}
	text, err := l.InnerText()
	if err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", loc, err)
	}
	return text, nil
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}
