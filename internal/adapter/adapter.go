// Package adapter implements the external capabilities a video run depends
// on: resolving a restaurant from a map URL, extracting its menu, writing a
// narrated script and planning production assets.
//
// Adapters make a single attempt per call and return failures classified as
// *resilience.AdapterError. Retries, per-call timeouts and circuit breaking
// are applied by the pipeline steps that call them.
package adapter

import (
	"context"

	"github.com/sells-group/reel-cli/internal/model"
)

// Service names used for error classification, rate limits and breakers.
const (
	ServicePlaces    = "google_places"
	ServiceShortLink = "map_shortlink"
	ServiceFirecrawl = "firecrawl"
	ServiceScrape    = "scrape"
	ServiceAnthropic = "anthropic"
	ServiceGemini    = "gemini"
	ServicePexels    = "pexels"
)

// RestaurantResolver turns a map-provider place URL into a profile.
type RestaurantResolver interface {
	Resolve(ctx context.Context, sourceURL string) (*model.RestaurantProfile, error)
}

// MenuExtractor reads a restaurant's menu from its website.
type MenuExtractor interface {
	Extract(ctx context.Context, websiteURL string) (*model.MenuModel, error)
}

// ScriptWriter writes the narrated scene script.
type ScriptWriter interface {
	Generate(ctx context.Context, profile *model.RestaurantProfile, menu *model.MenuModel, style model.Style, durationSeconds int) (*model.ScriptModel, error)
}

// ProductionPlanner derives footage, voiceover and technical requirements
// from a script.
type ProductionPlanner interface {
	Plan(ctx context.Context, script *model.ScriptModel) (*model.ProductionPlan, error)
}
