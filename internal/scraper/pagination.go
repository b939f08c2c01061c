package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/metro-catalog-scraper/internal/browser"
	"github.com/maltedev/metro-catalog-scraper/internal/metrics"
)

// Paginator expands an incrementally loaded grid by pressing its load more
// control until the control is gone.
type Paginator struct {
	settle  time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewPaginator(settle time.Duration, m *metrics.Metrics, logger *slog.Logger) *Paginator {
	return &Paginator{
		settle:  settle,
		metrics: m,
		logger:  logger.With("component", "paginator"),
	}
}

// ExpandAll returns the number of successful load more triggers. There is no
// upper bound; a grid that never stops offering more is only stopped by ctx.
func (p *Paginator) ExpandAll(ctx context.Context, page browser.Page) (int, error) {
	clicks := 0
	for {
		err := page.Click(ctx, LoadMoreButton)
		if errors.Is(err, browser.ErrElementNotFound) {
			break
		}
		if err != nil {
			return clicks, fmt.Errorf("failed to load more products: %w", err)
		}

		clicks++
		p.metrics.IncPaginationClick()
		p.logger.Debug("loaded more products", "clicks", clicks)

		if err := settle(ctx, p.settle); err != nil {
			return clicks, err
		}
	}

	p.logger.Info("catalog grid fully expanded", "clicks", clicks)
	return clicks, nil
}
