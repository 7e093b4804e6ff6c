package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/resilience"
	"github.com/sells-group/reel-cli/pkg/jina"
)

// ErrThinPage is returned when a reader produced nothing worth parsing for a
// menu, so the chain should try the next reader.
var ErrThinPage = eris.New("scrape: page has no usable menu content")

// minPageChars is the shortest page accepted when it shows no prices.
const minPageChars = 100

var (
	// Bot walls served instead of the page.
	challengeSignatures = []string{
		"checking your browser",
		"please enable cookies",
		"access denied",
		"403 forbidden",
		"just a moment",
		"attention required",
	}
	// Ordering and menu widgets that only render with JavaScript. Jina
	// returns the placeholder; Firecrawl waits for the widget.
	widgetSignatures = []string{
		"enable javascript",
		"loading menu",
		"menu is loading",
		"loading...",
	}
)

// JinaReader reads pages through Jina Reader. Its own breaker opens after
// three consecutive failures for a minute so the chain falls through to the
// next reader without waiting on a dead service.
type JinaReader struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaReader creates a JinaReader.
func NewJinaReader(client jina.Client) *JinaReader {
	return &JinaReader{
		client: client,
		breaker: resilience.NewCircuitBreaker("jina", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
			ShouldTrip:       func(err error) bool { return err != nil },
		}),
	}
}

func (j *JinaReader) Name() string { return "jina" }

// Supports is false while the breaker is open.
func (j *JinaReader) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

func (j *JinaReader) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	return resilience.Guard(ctx, j.breaker, func(ctx context.Context) (*Result, error) {
		resp, err := j.client.Read(ctx, targetURL)
		if err != nil {
			return nil, err
		}
		if resp == nil || (resp.Code != 0 && resp.Code != 200) {
			return nil, eris.Wrapf(ErrThinPage, "jina: %s", targetURL)
		}
		if !usablePage(resp.Data.Content) {
			return nil, eris.Wrapf(ErrThinPage, "jina: %s", targetURL)
		}
		return &Result{
			Page: Page{
				URL:        firstNonEmpty(resp.Data.URL, targetURL),
				Title:      resp.Data.Title,
				Markdown:   resp.Data.Content,
				StatusCode: resp.Code,
			},
			Source: "jina",
		}, nil
	})
}

// usablePage reports whether markdown could hold a menu. Short pages pass
// only when they show a price. Bot walls and widget placeholders fail unless
// the page is long enough that the phrase is incidental.
func usablePage(markdown string) bool {
	content := strings.TrimSpace(markdown)
	if len(content) < minPageChars && !strings.ContainsAny(content, "$€£") {
		return false
	}
	if len(content) >= 1000 {
		return true
	}
	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return false
		}
	}
	for _, sig := range widgetSignatures {
		if strings.Contains(lower, sig) {
			return false
		}
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
