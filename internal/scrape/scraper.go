// Package scrape fetches restaurant web pages as markdown through a chain of
// reader services.
package scrape

import (
	"context"
)

// PageChromeSelector matches site chrome that readers should drop before a
// page is parsed for menu items.
const PageChromeSelector = "nav, footer, [role=dialog], #cookie-banner"

// Page is a fetched web page rendered as markdown.
type Page struct {
	URL        string
	Title      string
	Markdown   string
	StatusCode int
}

// Result holds a scraped page with its source.
type Result struct {
	Page   Page
	Source string // e.g. "jina", "firecrawl"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
