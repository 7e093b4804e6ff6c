package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/pkg/firecrawl"
)

// menuRenderWaitMs gives script-rendered menu widgets time to load.
const menuRenderWaitMs = 2000

// FirecrawlReader renders pages in Firecrawl's browser. It is the fallback
// for pages Jina cannot read.
type FirecrawlReader struct {
	client firecrawl.Client
}

// NewFirecrawlReader creates a FirecrawlReader.
func NewFirecrawlReader(client firecrawl.Client) *FirecrawlReader {
	return &FirecrawlReader{client: client}
}

func (f *FirecrawlReader) Name() string { return "firecrawl" }

func (f *FirecrawlReader) Supports(_ string) bool { return true }

func (f *FirecrawlReader) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         []firecrawl.Format{firecrawl.Markdown},
		OnlyMainContent: true,
		WaitFor:         menuRenderWaitMs,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.Errorf("firecrawl: scrape of %s not successful", targetURL)
	}
	if strings.TrimSpace(resp.Data.Markdown) == "" {
		return nil, eris.Wrapf(ErrThinPage, "firecrawl: %s", targetURL)
	}
	return &Result{
		Page: Page{
			URL:        firstNonEmpty(resp.Data.Metadata.SourceURL, targetURL),
			Title:      resp.Data.Metadata.Title,
			Markdown:   resp.Data.Markdown,
			StatusCode: resp.Data.Metadata.StatusCode,
		},
		Source: "firecrawl",
	}, nil
}
