package adapter

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/resilience"
	"github.com/sells-group/reel-cli/internal/scrape"
	"github.com/sells-group/reel-cli/pkg/firecrawl"
)

// MenuStrategy selects how menus are extracted.
type MenuStrategy string

const (
	// MenuStrategyAuto runs structured extraction and page scraping together
	// and merges what they find.
	MenuStrategyAuto MenuStrategy = "auto"
	// MenuStrategyAPI uses only Firecrawl structured extraction.
	MenuStrategyAPI MenuStrategy = "api"
	// MenuStrategyScrape uses only the scrape chain and markdown parser.
	MenuStrategyScrape MenuStrategy = "scrape"
)

const menuPrompt = "Extract the restaurant's food and drink menu. Group items under the " +
	"menu's own section headings in the order they appear. Include the price exactly as " +
	"written and a short description when the page has one. Return an empty list when " +
	"the page has no menu. Do not invent items."

var menuSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"categories": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
					"items": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name":        map[string]any{"type": "string"},
								"price":       map[string]any{"type": "string"},
								"description": map[string]any{"type": "string"},
							},
							"required": []string{"name"},
						},
					},
				},
				"required": []string{"name", "items"},
			},
		},
	},
	"required": []string{"categories"},
}

// MenuService extracts menus with Firecrawl structured extraction and the
// website scrape chain.
type MenuService struct {
	firecrawl firecrawl.Client
	chain     *scrape.Chain
	strategy  MenuStrategy
	limits    *Limiters
}

// NewMenuService creates a MenuService. Either source may be nil, in which
// case the strategy needing it is skipped.
func NewMenuService(fc firecrawl.Client, chain *scrape.Chain, strategy MenuStrategy, limits *Limiters) *MenuService {
	if strategy == "" {
		strategy = MenuStrategyAuto
	}
	return &MenuService{firecrawl: fc, chain: chain, strategy: strategy, limits: limits}
}

type menuAttempt struct {
	categories []model.MenuCategory
	sourceURL  string
	err        error
	ran        bool
}

// Extract implements MenuExtractor. A site without a readable menu yields an
// empty MenuModel; an error is returned only when every strategy failed.
func (s *MenuService) Extract(ctx context.Context, websiteURL string) (*model.MenuModel, error) {
	site, err := normalizeSite(websiteURL)
	if err != nil {
		return nil, resilience.NewAdapterError(ServiceScrape, resilience.KindInvalid, err)
	}

	var api, scraped menuAttempt
	g, gctx := errgroup.WithContext(ctx)
	if s.firecrawl != nil && s.strategy != MenuStrategyScrape {
		g.Go(func() error {
			api = s.extractAPI(gctx, site)
			return nil
		})
	}
	if s.chain != nil && s.strategy != MenuStrategyAPI {
		g.Go(func() error {
			scraped = s.extractScrape(gctx, site)
			return nil
		})
	}
	_ = g.Wait()

	for name, a := range map[string]menuAttempt{"api": api, "scrape": scraped} {
		if a.err != nil {
			zap.L().Warn("adapter: menu strategy failed",
				zap.String("site", site),
				zap.String("strategy", name),
				zap.Error(a.err),
			)
		}
	}

	if !api.ran && !scraped.ran {
		return nil, resilience.NewAdapterError(ServiceScrape, resilience.KindUnavailable,
			eris.Errorf("no menu source configured for strategy %q", s.strategy))
	}

	apiItems, scrapeItems := countItems(api.categories), countItems(scraped.categories)
	menu := &model.MenuModel{Categories: []model.MenuCategory{}}
	switch {
	case apiItems > 0 && scrapeItems > 0:
		menu.Categories = MergeMenus(api.categories, scraped.categories)
		menu.ExtractionMethod = model.ExtractionHybrid
		menu.SourceURL = api.sourceURL
	case apiItems > 0:
		menu.Categories = api.categories
		menu.ExtractionMethod = model.ExtractionAPI
		menu.SourceURL = api.sourceURL
	case scrapeItems > 0:
		menu.Categories = scraped.categories
		menu.ExtractionMethod = model.ExtractionScrape
		menu.SourceURL = scraped.sourceURL
	default:
		if failed(api) && failed(scraped) {
			return nil, firstErr(api.err, scraped.err)
		}
		// A transient failure outranks an empty result.
		for _, err := range []error{api.err, scraped.err} {
			if resilience.IsRetryable(err) {
				return nil, err
			}
		}
		menu.ExtractionMethod = model.ExtractionAPI
		if !api.ran || api.err != nil {
			menu.ExtractionMethod = model.ExtractionScrape
		}
		menu.SourceURL = site
	}

	zap.L().Info("adapter: menu extracted",
		zap.String("site", site),
		zap.String("method", string(menu.ExtractionMethod)),
		zap.Int("api_items", apiItems),
		zap.Int("scrape_items", scrapeItems),
		zap.Int("items", menu.ItemCount()),
	)
	return menu, nil
}

func failed(a menuAttempt) bool { return !a.ran || a.err != nil }

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

type extractedMenu struct {
	Categories []struct {
		Name  string `json:"name"`
		Items []struct {
			Name        string `json:"name"`
			Price       string `json:"price"`
			Description string `json:"description"`
		} `json:"items"`
	} `json:"categories"`
}

func (s *MenuService) extractAPI(ctx context.Context, site string) menuAttempt {
	a := menuAttempt{ran: true, sourceURL: site}
	resp, err := call(ctx, s.limits, ServiceFirecrawl, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		return s.firecrawl.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:             site,
			Formats:         []firecrawl.Format{firecrawl.JSONFormat(menuPrompt, menuSchema)},
			OnlyMainContent: true,
		})
	})
	if err != nil {
		a.err = err
		return a
	}
	if len(resp.Data.JSON) == 0 {
		return a
	}

	var parsed extractedMenu
	if err := json.Unmarshal(resp.Data.JSON, &parsed); err != nil {
		a.err = resilience.NewAdapterError(ServiceFirecrawl, resilience.KindInvalid, eris.Wrap(err, "decode menu json"))
		return a
	}
	for _, c := range parsed.Categories {
		cat := model.MenuCategory{Name: firstNonBlank(c.Name, defaultCategory)}
		for _, it := range c.Items {
			name := strings.TrimSpace(it.Name)
			if name == "" {
				continue
			}
			cat.Items = append(cat.Items, model.MenuItem{
				Name:        name,
				Price:       strings.TrimSpace(it.Price),
				Description: strings.TrimSpace(it.Description),
			})
		}
		if len(cat.Items) > 0 {
			a.categories = append(a.categories, cat)
		}
	}
	if src := resp.Data.Metadata.SourceURL; src != "" {
		a.sourceURL = src
	}
	return a
}

func (s *MenuService) extractScrape(ctx context.Context, site string) menuAttempt {
	a := menuAttempt{ran: true}
	candidates := s.chain.PathMatcher.MenuCandidates(site, scrape.DefaultMenuPaths)
	if len(candidates) == 0 {
		a.err = resilience.NewAdapterError(ServiceScrape, resilience.KindInvalid, eris.Errorf("no scrapeable menu pages for %s", site))
		return a
	}

	if err := s.limits.Wait(ctx, ServiceScrape); err != nil {
		a.err = err
		return a
	}
	outcomes := s.chain.ScrapeAll(ctx, candidates, len(candidates))

	var lastErr error
	for _, o := range outcomes {
		if o.Err != nil {
			lastErr = o.Err
			continue
		}
		cats := ParseMenuMarkdown(o.Result.Page.Markdown)
		if len(cats) > 0 {
			a.categories = cats
			a.sourceURL = firstNonBlank(o.Result.Page.URL, o.URL)
			s.limits.Observe(ServiceScrape, nil)
			return a
		}
	}
	if lastErr != nil && allFailed(outcomes) {
		a.err = resilience.Classify(ServiceScrape, lastErr)
	}
	s.limits.Observe(ServiceScrape, a.err)
	return a
}

func allFailed(outcomes []scrape.Outcome) bool {
	for _, o := range outcomes {
		if o.Err == nil {
			return false
		}
	}
	return true
}

func normalizeSite(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("website url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrap(err, "parse website url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", eris.Errorf("website url is not http(s): %s", u.Redacted())
	}
	u.Fragment = ""
	return u.String(), nil
}
