package model

import "strings"

// Scene is one shot of the video with its narration and visuals.
type Scene struct {
	NarrationText   string  `json:"narration_text"`
	OnScreenText    string  `json:"on_screen_text"`
	VisualPrompt    string  `json:"visual_prompt"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// ScriptModel is the output of script generation.
type ScriptModel struct {
	Style  Style   `json:"style"`
	Scenes []Scene `json:"scenes"`
}

func (*ScriptModel) stepOutput() StepName { return StepScriptGeneration }

// TotalSeconds sums scene durations.
func (s *ScriptModel) TotalSeconds() float64 {
	if s == nil {
		return 0
	}
	var total float64
	for _, sc := range s.Scenes {
		total += sc.DurationSeconds
	}
	return total
}

// Narration joins every scene's narration into the voiceover text.
func (s *ScriptModel) Narration() string {
	if s == nil {
		return ""
	}
	parts := make([]string, 0, len(s.Scenes))
	for _, sc := range s.Scenes {
		if t := strings.TrimSpace(sc.NarrationText); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy.
func (s *ScriptModel) Clone() *ScriptModel {
	if s == nil {
		return nil
	}
	c := *s
	c.Scenes = append([]Scene(nil), s.Scenes...)
	return &c
}
