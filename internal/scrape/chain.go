package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	PathMatcher *PathMatcher
	scrapers    []Scraper
}

// NewChain creates a Chain with the given path matcher and scrapers.
// Scrapers are tried in order; the first successful result is returned.
func NewChain(matcher *PathMatcher, scrapers ...Scraper) *Chain {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	return &Chain{
		PathMatcher: matcher,
		scrapers:    scrapers,
	}
}

// ErrExcluded is returned for URLs rejected by the path matcher.
var ErrExcluded = eris.New("scrape: url excluded by path matcher")

// Scrape tries each scraper in order for a single URL.
// Returns the first successful result, or the last scraper error if all fail.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if c.PathMatcher.IsExcluded(targetURL) {
		return nil, eris.Wrapf(ErrExcluded, "url %s", targetURL)
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			return result, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

// Outcome is the per-URL result of ScrapeAll.
type Outcome struct {
	URL    string
	Result *Result
	Err    error
}

// ScrapeAll fetches multiple URLs in parallel using the chain. Outcomes are
// returned in the order of urls so callers can prefer earlier candidates.
func (c *Chain) ScrapeAll(ctx context.Context, urls []string, maxConcurrent int) []Outcome {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	out := make([]Outcome, len(urls))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, u := range urls {
		g.Go(func() error {
			res, err := c.Scrape(ctx, u)
			out[i] = Outcome{URL: u, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return out
}
