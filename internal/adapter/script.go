package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/resilience"
	"github.com/sells-group/reel-cli/pkg/anthropic"
	"github.com/sells-group/reel-cli/pkg/gemini"
)

// DefaultWordsPerSecond is the narration pace used to budget script length.
const DefaultWordsPerSecond = 2.5

// durationTolerance is how far scene durations may drift from the target
// total, in seconds.
const durationTolerance = 1.0

const scriptSystem = "You are a professional marketing copywriter specializing in short " +
	"restaurant promotional videos. You only mention dishes that appear in the menu you " +
	"are given. Respond with a single JSON object and nothing else."

const scriptPrompt = `Write a %d-second vertical promotional video script for %s.

Tone: %s (%s).

Restaurant:
%s
Menu highlights:
%s

Requirements:
- Split the video into %d scenes.
- Keep the total narration under %d words so it can be read aloud in %d seconds.
- Highlight the best menu items and end with a clear call to action.
- on_screen_text is a short caption of at most 6 words.
- visual_prompt describes the footage to show, suitable as a stock footage search.
- duration_seconds of all scenes must add up to %d.

Return JSON of the form:
{"scenes":[{"narration_text":"...","on_screen_text":"...","visual_prompt":"...","duration_seconds":7.5}]}`

// LLM produces a JSON document from a system and user prompt.
type LLM interface {
	Name() string
	CompleteJSON(ctx context.Context, system, prompt string) (string, error)
}

// AnthropicLLM generates scripts with Claude.
type AnthropicLLM struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicLLM wraps an Anthropic client.
func NewAnthropicLLM(client anthropic.Client, model string, maxTokens int64) *AnthropicLLM {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicLLM{client: client, model: model, maxTokens: maxTokens}
}

// Name implements LLM.
func (a *AnthropicLLM) Name() string { return ServiceAnthropic }

// CompleteJSON implements LLM. The assistant turn is prefilled with "{" so
// the reply starts inside the JSON object.
func (a *AnthropicLLM) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	temp := 0.7
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:          a.model,
		MaxTokens:      a.maxTokens,
		System:         system,
		SystemCacheTTL: "5m",
		Messages:       anthropic.Prefill(prompt, "{"),
		Temperature:    &temp,
	})
	if err != nil {
		return "", err
	}
	zap.L().Debug("script completion", append(resp.Usage.Fields(), zap.String("model", a.model))...)
	if resp.Truncated() {
		return "", resilience.NewAdapterError(ServiceAnthropic, resilience.KindInvalid,
			eris.Errorf("script cut off at %d output tokens", a.maxTokens))
	}
	return "{" + resp.Text, nil
}

// GeminiLLM generates scripts with Gemini.
type GeminiLLM struct {
	client gemini.Client
}

// NewGeminiLLM wraps a Gemini client.
func NewGeminiLLM(client gemini.Client) *GeminiLLM {
	return &GeminiLLM{client: client}
}

// Name implements LLM.
func (g *GeminiLLM) Name() string { return ServiceGemini }

// CompleteJSON implements LLM.
func (g *GeminiLLM) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	return g.client.GenerateJSON(ctx, system, prompt)
}

// ScriptService writes scene scripts with an LLM.
type ScriptService struct {
	llm            LLM
	guides         map[model.Style]StyleGuide
	wordsPerSecond float64
	limits         *Limiters
}

// NewScriptService creates a ScriptService. A nil guides map uses
// DefaultStyleGuides.
func NewScriptService(llm LLM, guides map[model.Style]StyleGuide, wordsPerSecond float64, limits *Limiters) *ScriptService {
	if guides == nil {
		guides = DefaultStyleGuides()
	}
	if wordsPerSecond <= 0 {
		wordsPerSecond = DefaultWordsPerSecond
	}
	return &ScriptService{llm: llm, guides: guides, wordsPerSecond: wordsPerSecond, limits: limits}
}

// Generate implements ScriptWriter.
func (s *ScriptService) Generate(ctx context.Context, profile *model.RestaurantProfile, menu *model.MenuModel, style model.Style, durationSeconds int) (*model.ScriptModel, error) {
	service := s.llm.Name()
	if profile == nil || menu.ItemCount() == 0 {
		return nil, resilience.NewAdapterError(service, resilience.KindInvalid,
			eris.New("script needs a restaurant profile and at least one menu item"))
	}
	if durationSeconds <= 0 {
		return nil, resilience.NewAdapterError(service, resilience.KindInvalid,
			eris.Errorf("invalid duration %d", durationSeconds))
	}

	prompt := s.buildPrompt(profile, menu, style, durationSeconds)
	text, err := call(ctx, s.limits, service, func(ctx context.Context) (string, error) {
		return s.llm.CompleteJSON(ctx, scriptSystem, prompt)
	})
	if err != nil {
		return nil, err
	}

	script, err := ParseScript(text, style, durationSeconds)
	if err != nil {
		return nil, resilience.NewAdapterError(service, resilience.KindInvalid, err)
	}
	zap.L().Debug("adapter: script generated",
		zap.String("provider", service),
		zap.Int("scenes", len(script.Scenes)),
		zap.Float64("seconds", script.TotalSeconds()),
	)
	return script, nil
}

func (s *ScriptService) buildPrompt(p *model.RestaurantProfile, menu *model.MenuModel, style model.Style, duration int) string {
	guide, ok := s.guides[style]
	if !ok {
		guide = StyleGuide{Tone: "Friendly and engaging", Description: "welcoming and appetizing"}
	}
	return fmt.Sprintf(scriptPrompt,
		duration, p.Name,
		guide.Tone, guide.Description,
		describeRestaurant(p),
		menuHighlights(menu, 2, 8),
		sceneCount(duration),
		int(math.Round(float64(duration)*s.wordsPerSecond)), duration,
		duration,
	)
}

func describeRestaurant(p *model.RestaurantProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	if p.Address != "" {
		fmt.Fprintf(&b, "- Address: %s\n", p.Address)
	}
	if p.Rating != nil {
		fmt.Fprintf(&b, "- Rating: %.1f", *p.Rating)
		if p.ReviewCount != nil {
			fmt.Fprintf(&b, " from %d reviews", *p.ReviewCount)
		}
		b.WriteString("\n")
	}
	if p.PriceLevel != nil {
		fmt.Fprintf(&b, "- Price level: %s\n", strings.Repeat("$", max(*p.PriceLevel, 1)))
	}
	return b.String()
}

// menuHighlights lists up to perCategory items from each category, capped at
// limit lines overall.
func menuHighlights(menu *model.MenuModel, perCategory, limit int) string {
	var lines []string
	for _, c := range menu.Categories {
		for i, it := range c.Items {
			if i >= perCategory || len(lines) >= limit {
				break
			}
			line := fmt.Sprintf("- %s (%s)", it.Name, c.Name)
			if it.Description != "" {
				line += ": " + it.Description
			}
			if it.Price != "" {
				line += " " + it.Price
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// sceneCount suggests roughly one scene per 7.5 seconds, between 2 and 8.
func sceneCount(duration int) int {
	n := int(math.Round(float64(duration) / 7.5))
	return min(max(n, 2), 8)
}

type rawScript struct {
	Scenes []struct {
		NarrationText   string  `json:"narration_text"`
		OnScreenText    string  `json:"on_screen_text"`
		VisualPrompt    string  `json:"visual_prompt"`
		DurationSeconds float64 `json:"duration_seconds"`
	} `json:"scenes"`
}

// ParseScript decodes a model response into a ScriptModel whose scene
// durations sum to durationSeconds. Scripts without scenes or with a scene
// lacking narration are rejected.
func ParseScript(text string, style model.Style, durationSeconds int) (*model.ScriptModel, error) {
	var raw rawScript
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "script: decode response")
	}
	if len(raw.Scenes) == 0 {
		return nil, eris.New("script: response has no scenes")
	}

	script := &model.ScriptModel{Style: style, Scenes: make([]model.Scene, len(raw.Scenes))}
	for i, rs := range raw.Scenes {
		narration := strings.TrimSpace(rs.NarrationText)
		if narration == "" {
			return nil, eris.Errorf("script: scene %d has no narration", i+1)
		}
		script.Scenes[i] = model.Scene{
			NarrationText:   narration,
			OnScreenText:    strings.TrimSpace(rs.OnScreenText),
			VisualPrompt:    strings.TrimSpace(rs.VisualPrompt),
			DurationSeconds: rs.DurationSeconds,
		}
	}
	NormalizeDurations(script.Scenes, float64(durationSeconds))
	return script, nil
}

// NormalizeDurations rescales scene durations in place so they sum to total.
// Durations are rounded to tenths and the last scene absorbs rounding.
// Missing or non-positive durations are replaced by an equal share.
func NormalizeDurations(scenes []model.Scene, total float64) {
	if len(scenes) == 0 || total <= 0 {
		return
	}
	share := total / float64(len(scenes))

	var sum float64
	for i := range scenes {
		if scenes[i].DurationSeconds <= 0 || math.IsNaN(scenes[i].DurationSeconds) || math.IsInf(scenes[i].DurationSeconds, 0) {
			scenes[i].DurationSeconds = share
		}
		sum += scenes[i].DurationSeconds
	}
	if math.Abs(sum-total) <= durationTolerance/10 {
		return
	}

	scale := total / sum
	var acc float64
	for i := range scenes[:len(scenes)-1] {
		d := math.Round(scenes[i].DurationSeconds*scale*10) / 10
		scenes[i].DurationSeconds = d
		acc += d
	}
	last := math.Round((total-acc)*10) / 10
	if last <= 0 {
		for i := range scenes {
			scenes[i].DurationSeconds = share
		}
		return
	}
	scenes[len(scenes)-1].DurationSeconds = last
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
