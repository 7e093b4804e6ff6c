package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/resilience"
	"github.com/sells-group/reel-cli/pkg/pexels"
	pxmocks "github.com/sells-group/reel-cli/pkg/pexels/mocks"
)

func sampleScript() *model.ScriptModel {
	return &model.ScriptModel{
		Style: model.StyleCasual,
		Scenes: []model.Scene{
			{NarrationText: "Craving a real slice?", VisualPrompt: "pizza slice cheese pull", DurationSeconds: 7},
			{NarrationText: "Hot from the oven.", VisualPrompt: "Pizza Slice Cheese Pull", DurationSeconds: 8},
			{NarrationText: "Grab a pepperoni pie.", OnScreenText: "Pepperoni", DurationSeconds: 7},
			{NarrationText: "See you tonight!", VisualPrompt: "new york street night", DurationSeconds: 8},
		},
	}
}

func TestFootageRequirements(t *testing.T) {
	t.Parallel()

	reqs := FootageRequirements(sampleScript().Scenes, MaxFootageQueries)
	require.Len(t, reqs, 3)
	assert.Equal(t, "pizza slice cheese pull", reqs[0].Query)
	assert.Equal(t, []int{0, 1}, reqs[0].Scenes)
	assert.Equal(t, "Pepperoni", reqs[1].Query)
	assert.Equal(t, []int{3}, reqs[2].Scenes)
}

func TestFootageRequirements_Limit(t *testing.T) {
	t.Parallel()

	scenes := make([]model.Scene, 8)
	for i := range scenes {
		scenes[i] = model.Scene{NarrationText: "x", VisualPrompt: string(rune('a' + i))}
	}
	reqs := FootageRequirements(scenes, 5)
	require.Len(t, reqs, 5)

	covered := map[int]bool{}
	for _, r := range reqs {
		for _, s := range r.Scenes {
			covered[s] = true
		}
	}
	assert.Len(t, covered, 8, "every scene is assigned footage")
}

func TestPlanner_PlanWithoutPexels(t *testing.T) {
	t.Parallel()

	p := NewPlanner(nil, PlannerConfig{}, nil)
	plan, err := p.Plan(context.Background(), sampleScript())
	require.NoError(t, err)

	assert.Equal(t, DefaultVoiceID, plan.Voiceover.VoiceID)
	assert.Equal(t, model.StyleCasual, plan.Voiceover.Style)
	assert.Equal(t, 30, plan.Voiceover.TargetSeconds)
	assert.Equal(t, 15, plan.Voiceover.WordCount)
	assert.InDelta(t, 6.0, plan.Voiceover.EstimatedSeconds, 0.001)
	assert.Equal(t, model.DefaultTechnicalSpec(), plan.Technical)
	assert.Len(t, plan.Footage, 3)
	for _, f := range plan.Footage {
		assert.Empty(t, f.Candidates)
	}
}

func TestPlanner_AttachesCandidates(t *testing.T) {
	t.Parallel()

	px := pxmocks.NewMockClient(t)
	px.On("SearchVideos", mock.Anything, mock.MatchedBy(func(r pexels.SearchRequest) bool {
		return r.Query == "pizza slice cheese pull" && r.Orientation == pexels.Portrait && r.PerPage == 3
	})).Return(&pexels.VideoResponse{Videos: []pexels.Video{{
		ID: 11, Duration: 12, Image: "https://img/11.jpg", User: pexels.User{Name: "Ann"},
		VideoFiles: []pexels.VideoFile{
			{Width: 3840, Link: "https://v/4k.mp4"},
			{Width: 1080, Link: "https://v/1080.mp4"},
		},
	}}}, nil)
	px.On("SearchVideos", mock.Anything, mock.Anything).Return(&pexels.VideoResponse{}, nil)
	px.On("SearchPhotos", mock.Anything, mock.Anything).Return(&pexels.PhotoResponse{Photos: []pexels.Photo{{
		ID: 22, Photographer: "Bo", Src: pexels.PhotoSrcs{Portrait: "https://p/portrait.jpg", Large: "https://p/large.jpg", Medium: "https://p/m.jpg"},
	}}}, nil)

	p := NewPlanner(px, PlannerConfig{PerQuery: 3}, nil)
	plan, err := p.Plan(context.Background(), sampleScript())
	require.NoError(t, err)

	require.Len(t, plan.Footage[0].Candidates, 1)
	v := plan.Footage[0].Candidates[0]
	assert.Equal(t, "video", v.Kind)
	assert.Equal(t, "https://v/1080.mp4", v.URL)
	assert.Equal(t, "Ann", v.Credit)

	require.Len(t, plan.Footage[1].Candidates, 1)
	ph := plan.Footage[1].Candidates[0]
	assert.Equal(t, "image", ph.Kind)
	assert.Equal(t, "https://p/portrait.jpg", ph.URL)
}

func TestPlanner_SearchFailure(t *testing.T) {
	t.Parallel()

	px := pxmocks.NewMockClient(t)
	px.On("SearchVideos", mock.Anything, mock.Anything).Return(nil, &pexels.APIError{StatusCode: 429})

	p := NewPlanner(px, PlannerConfig{}, nil)
	_, err := p.Plan(context.Background(), sampleScript())
	kind, ok := resilience.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, resilience.KindRateLimited, kind)
}

func TestPlanner_EmptyScript(t *testing.T) {
	t.Parallel()

	p := NewPlanner(nil, PlannerConfig{}, nil)
	_, err := p.Plan(context.Background(), &model.ScriptModel{})
	kind, _ := resilience.KindOf(err)
	assert.Equal(t, resilience.KindInvalid, kind)
}
