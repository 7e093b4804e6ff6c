package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reel-cli/pkg/firecrawl"
	firecrawlmocks "github.com/sells-group/reel-cli/pkg/firecrawl/mocks"
)

func menuScrapeRequest(u string) firecrawl.ScrapeRequest {
	return firecrawl.ScrapeRequest{
		URL:             u,
		Formats:         []firecrawl.Format{firecrawl.Markdown},
		OnlyMainContent: true,
		WaitFor:         menuRenderWaitMs,
	}
}

func TestFirecrawlReader_Scrape(t *testing.T) {
	t.Parallel()
	client := firecrawlmocks.NewMockClient(t)
	reader := NewFirecrawlReader(client)

	client.On("Scrape", context.Background(), menuScrapeRequest("https://joes.example/menu")).Return(&firecrawl.ScrapeResponse{
		Success: true,
		Data: firecrawl.PageData{
			Markdown: joesMenuPage,
			Metadata: firecrawl.PageMetadata{
				SourceURL:  "https://joes.example/menu/",
				Title:      "Menu | Joe's Pizza",
				StatusCode: 200,
			},
		},
	}, nil)

	result, err := reader.Scrape(context.Background(), "https://joes.example/menu")
	require.NoError(t, err)
	assert.Equal(t, "firecrawl", reader.Name())
	assert.True(t, reader.Supports(""))
	assert.Equal(t, "firecrawl", result.Source)
	assert.Equal(t, "https://joes.example/menu/", result.Page.URL)
	assert.Equal(t, joesMenuPage, result.Page.Markdown)
	assert.Equal(t, 200, result.Page.StatusCode)
}

func TestFirecrawlReader_Errors(t *testing.T) {
	t.Parallel()

	t.Run("client error", func(t *testing.T) {
		client := firecrawlmocks.NewMockClient(t)
		client.On("Scrape", context.Background(), menuScrapeRequest("https://joes.example")).
			Return(nil, errors.New("api error: rate limited"))

		_, err := NewFirecrawlReader(client).Scrape(context.Background(), "https://joes.example")
		assert.ErrorContains(t, err, "rate limited")
	})

	t.Run("not successful", func(t *testing.T) {
		client := firecrawlmocks.NewMockClient(t)
		client.On("Scrape", context.Background(), menuScrapeRequest("https://joes.example")).
			Return(&firecrawl.ScrapeResponse{Success: false}, nil)

		_, err := NewFirecrawlReader(client).Scrape(context.Background(), "https://joes.example")
		assert.ErrorContains(t, err, "not successful")
	})

	t.Run("blank page", func(t *testing.T) {
		client := firecrawlmocks.NewMockClient(t)
		client.On("Scrape", context.Background(), menuScrapeRequest("https://joes.example")).
			Return(&firecrawl.ScrapeResponse{Success: true, Data: firecrawl.PageData{Markdown: "  \n"}}, nil)

		_, err := NewFirecrawlReader(client).Scrape(context.Background(), "https://joes.example")
		assert.ErrorIs(t, err, ErrThinPage)
	})
}
