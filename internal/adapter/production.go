package adapter

import (
	"context"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/resilience"
	"github.com/sells-group/reel-cli/pkg/pexels"
)

const (
	// MaxFootageQueries caps the stock searches per plan.
	MaxFootageQueries = 5
	// DefaultVoiceID is the narration voice used when none is configured.
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

// PlannerConfig tunes a Planner.
type PlannerConfig struct {
	VoiceID        string
	WordsPerSecond float64
	// PerQuery is how many candidate clips to fetch for each footage query.
	PerQuery  int
	Technical model.TechnicalSpec
}

// Planner builds production plans and, when a Pexels client is configured,
// attaches candidate stock clips to each footage requirement.
type Planner struct {
	pexels pexels.Client
	cfg    PlannerConfig
	limits *Limiters
}

// NewPlanner creates a Planner. px may be nil to plan without candidates.
func NewPlanner(px pexels.Client, cfg PlannerConfig, limits *Limiters) *Planner {
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	if cfg.WordsPerSecond <= 0 {
		cfg.WordsPerSecond = DefaultWordsPerSecond
	}
	if cfg.PerQuery <= 0 {
		cfg.PerQuery = 5
	}
	if cfg.Technical.Width == 0 {
		cfg.Technical = model.DefaultTechnicalSpec()
	}
	return &Planner{pexels: px, cfg: cfg, limits: limits}
}

// Plan implements ProductionPlanner.
func (p *Planner) Plan(ctx context.Context, script *model.ScriptModel) (*model.ProductionPlan, error) {
	if script == nil || len(script.Scenes) == 0 {
		return nil, resilience.NewAdapterError(ServicePexels, resilience.KindInvalid,
			eris.New("production plan needs a script with scenes"))
	}

	footage := FootageRequirements(script.Scenes, MaxFootageQueries)
	if p.pexels != nil {
		if err := p.attachCandidates(ctx, footage); err != nil {
			return nil, err
		}
	}

	narration := script.Narration()
	words := len(strings.Fields(narration))
	return &model.ProductionPlan{
		Footage: footage,
		Voiceover: model.VoiceoverSpec{
			VoiceID:          p.cfg.VoiceID,
			Style:            script.Style,
			Text:             narration,
			WordCount:        words,
			TargetSeconds:    int(math.Round(script.TotalSeconds())),
			EstimatedSeconds: math.Round(float64(words)/p.cfg.WordsPerSecond*10) / 10,
		},
		Technical: p.cfg.Technical,
	}, nil
}

// FootageRequirements groups scenes by their visual prompt, falling back to
// on-screen text. At most limit distinct queries are kept, in scene order;
// scenes past the limit share the existing queries round-robin so every
// scene has footage.
func FootageRequirements(scenes []model.Scene, limit int) []model.FootageRequirement {
	var reqs []model.FootageRequirement
	index := map[string]int{}
	var overflow []int

	for i, sc := range scenes {
		q := firstNonBlank(sc.VisualPrompt, sc.OnScreenText)
		if q == "" {
			overflow = append(overflow, i)
			continue
		}
		key := strings.ToLower(q)
		if idx, ok := index[key]; ok {
			reqs[idx].Scenes = append(reqs[idx].Scenes, i)
			continue
		}
		if len(reqs) >= limit {
			overflow = append(overflow, i)
			continue
		}
		index[key] = len(reqs)
		reqs = append(reqs, model.FootageRequirement{Query: q, Scenes: []int{i}})
	}

	if len(reqs) == 0 {
		return []model.FootageRequirement{}
	}
	for n, i := range overflow {
		r := &reqs[n%len(reqs)]
		r.Scenes = append(r.Scenes, i)
	}
	return reqs
}

func (p *Planner) orientation() pexels.Orientation {
	t := p.cfg.Technical
	switch {
	case t.Height > t.Width:
		return pexels.Portrait
	case t.Height == t.Width:
		return pexels.Square
	default:
		return pexels.Landscape
	}
}

func (p *Planner) attachCandidates(ctx context.Context, reqs []model.FootageRequirement) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxFootageQueries)
	for i := range reqs {
		g.Go(func() error {
			clips, err := p.search(gctx, reqs[i].Query)
			if err != nil {
				return err
			}
			reqs[i].Candidates = clips
			return nil
		})
	}
	return g.Wait()
}

// search looks for videos first and falls back to photos when a query has
// no video results.
func (p *Planner) search(ctx context.Context, query string) ([]model.FootageClip, error) {
	sr := pexels.SearchRequest{Query: query, PerPage: p.cfg.PerQuery, Orientation: p.orientation()}

	videos, err := call(ctx, p.limits, ServicePexels, func(ctx context.Context) (*pexels.VideoResponse, error) {
		return p.pexels.SearchVideos(ctx, sr)
	})
	if err != nil {
		return nil, err
	}
	clips := make([]model.FootageClip, 0, len(videos.Videos))
	for _, v := range videos.Videos {
		f, ok := v.BestFile(p.cfg.Technical.Width)
		if !ok {
			continue
		}
		clips = append(clips, model.FootageClip{
			Provider:        "pexels",
			ID:              v.ID,
			Kind:            "video",
			URL:             f.Link,
			PreviewURL:      v.Image,
			DurationSeconds: v.Duration,
			Credit:          v.User.Name,
		})
	}
	if len(clips) > 0 {
		return clips, nil
	}

	photos, err := call(ctx, p.limits, ServicePexels, func(ctx context.Context) (*pexels.PhotoResponse, error) {
		return p.pexels.SearchPhotos(ctx, sr)
	})
	if err != nil {
		return nil, err
	}
	for _, ph := range photos.Photos {
		u := firstNonBlank(ph.Src.Portrait, ph.Src.Large, ph.Src.Original)
		if p.orientation() != pexels.Portrait {
			u = firstNonBlank(ph.Src.Large, ph.Src.Original)
		}
		clips = append(clips, model.FootageClip{
			Provider:   "pexels",
			ID:         ph.ID,
			Kind:       "image",
			URL:        u,
			PreviewURL: ph.Src.Medium,
			Credit:     ph.Photographer,
		})
	}
	return clips, nil
}
