package model

// FootageClip is a stock asset that could satisfy a footage requirement.
type FootageClip struct {
	Provider        string `json:"provider"`
	ID              int64  `json:"id"`
	Kind            string `json:"kind"` // "video" or "image"
	URL             string `json:"url"`
	PreviewURL      string `json:"preview_url,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Credit          string `json:"credit,omitempty"`
}

// FootageRequirement is one stock-footage search the renderer must satisfy.
type FootageRequirement struct {
	Query      string        `json:"query"`
	Scenes     []int         `json:"scenes,omitempty"`
	Candidates []FootageClip `json:"candidates,omitempty"`
}

// VoiceoverSpec describes the narration track.
type VoiceoverSpec struct {
	VoiceID          string  `json:"voice_id"`
	Style            Style   `json:"style"`
	Text             string  `json:"text"`
	WordCount        int     `json:"word_count"`
	TargetSeconds    int     `json:"target_seconds"`
	EstimatedSeconds float64 `json:"estimated_seconds"`
}

// TechnicalSpec describes the output video.
type TechnicalSpec struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	AspectRatio string `json:"aspect_ratio"`
	FPS         int    `json:"fps"`
	Container   string `json:"container"`
	Codec       string `json:"codec"`
}

// DefaultTechnicalSpec is a vertical 1080p short-form video.
func DefaultTechnicalSpec() TechnicalSpec {
	return TechnicalSpec{
		Width:       1080,
		Height:      1920,
		AspectRatio: "9:16",
		FPS:         30,
		Container:   "mp4",
		Codec:       "h264",
	}
}

// ProductionPlan is the terminal artifact of the pipeline. A renderer turns
// it plus the ScriptModel into a video file.
type ProductionPlan struct {
	Footage   []FootageRequirement `json:"footage"`
	Voiceover VoiceoverSpec        `json:"voiceover"`
	Technical TechnicalSpec        `json:"technical"`
}

func (*ProductionPlan) stepOutput() StepName { return StepProductionPlanning }

// Queries returns the footage search queries in plan order.
func (p *ProductionPlan) Queries() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.Footage))
	for i, f := range p.Footage {
		out[i] = f.Query
	}
	return out
}

// Clone returns a deep copy.
func (p *ProductionPlan) Clone() *ProductionPlan {
	if p == nil {
		return nil
	}
	c := *p
	c.Footage = make([]FootageRequirement, len(p.Footage))
	for i, f := range p.Footage {
		c.Footage[i] = FootageRequirement{
			Query:      f.Query,
			Scenes:     append([]int(nil), f.Scenes...),
			Candidates: append([]FootageClip(nil), f.Candidates...),
		}
	}
	return &c
}
