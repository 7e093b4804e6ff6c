package adapter

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reel-cli/internal/model"
)

// StyleGuide is the creative direction given to the script model for a style.
type StyleGuide struct {
	Tone        string `yaml:"tone"`
	Description string `yaml:"description"`
}

// DefaultStyleGuides returns the built-in tone for every known style.
func DefaultStyleGuides() map[model.Style]StyleGuide {
	return map[model.Style]StyleGuide{
		model.StyleCasual:       {Tone: "Friendly, approachable, conversational", Description: "welcoming comfort food atmosphere"},
		model.StyleProfessional: {Tone: "Polished, trustworthy, authoritative", Description: "quality and consistency for discerning diners"},
		model.StyleTrendy:       {Tone: "Hip, modern, energetic", Description: "the place everyone is talking about"},
		model.StyleElegant:      {Tone: "Sophisticated, refined, upscale", Description: "an evening worth dressing up for"},
		model.StyleFun:          {Tone: "Playful, exciting, enthusiastic", Description: "good times and big flavors"},
		model.StyleFamily:       {Tone: "Warm, welcoming, inclusive", Description: "a table with room for everyone"},
		model.StyleLuxury:       {Tone: "Elegant, sophisticated, exclusive", Description: "a premium dining experience"},
		model.StyleStreetFood:   {Tone: "Authentic, vibrant, bold", Description: "big flavors served fast"},
	}
}

// LoadStyleGuides reads style overrides from a YAML file keyed by style name
// and layers them over the defaults. Unknown style names are rejected.
//
//	casual:
//	  tone: "Laid back, neighbourly"
//	  description: "your local favourite"
func LoadStyleGuides(path string) (map[model.Style]StyleGuide, error) {
	guides := DefaultStyleGuides()
	if path == "" {
		return guides, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "style: read %s", path)
	}
	var overrides map[string]StyleGuide
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, eris.Wrapf(err, "style: parse %s", path)
	}
	for name, g := range overrides {
		style := model.Style(name)
		if !style.Valid() {
			return nil, eris.Errorf("style: unknown style %q in %s", name, path)
		}
		base := guides[style]
		if g.Tone != "" {
			base.Tone = g.Tone
		}
		if g.Description != "" {
			base.Description = g.Description
		}
		guides[style] = base
	}
	return guides, nil
}
