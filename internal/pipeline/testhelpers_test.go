package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/resilience"
	"github.com/sells-group/reel-cli/internal/store"
)

const testMapHost = "maps.example"

func scenarioRequest() model.SourceRequest {
	return model.SourceRequest{
		SourceURL:       "https://maps.example/place/X",
		Style:           model.StyleCasual,
		DurationSeconds: 30,
	}
}

func joesPizza() *model.RestaurantProfile {
	rating := 4.6
	return &model.RestaurantProfile{
		Name:    "Joe's Pizza",
		Address: "7 Carmine St, New York, NY",
		Website: "https://joespizza.example",
		Rating:  &rating,
		PlaceID: "place-x",
	}
}

func twoCategoryMenu() *model.MenuModel {
	return &model.MenuModel{
		Categories: []model.MenuCategory{
			{Name: "Pizza", Items: []model.MenuItem{
				{Name: "Plain Slice", Price: "$3.50"},
				{Name: "Pepperoni Slice", Price: "$4.00"},
			}},
			{Name: "Drinks", Items: []model.MenuItem{{Name: "Soda", Price: "$2.00"}}},
		},
		ExtractionMethod: model.ExtractionScrape,
		SourceURL:        "https://joespizza.example",
	}
}

func fourSceneScript() *model.ScriptModel {
	return &model.ScriptModel{
		Style: model.StyleCasual,
		Scenes: []model.Scene{
			{NarrationText: "Hungry in the Village?", VisualPrompt: "street corner pizzeria", DurationSeconds: 7},
			{NarrationText: "Joe's has you covered.", VisualPrompt: "pizza slice cheese pull", DurationSeconds: 8},
			{NarrationText: "Grab a pepperoni slice.", VisualPrompt: "pepperoni pizza", DurationSeconds: 8},
			{NarrationText: "See you soon!", VisualPrompt: "neon sign at night", DurationSeconds: 7},
		},
	}
}

func samplePlan() *model.ProductionPlan {
	return &model.ProductionPlan{
		Footage: []model.FootageRequirement{{Query: "pizza slice cheese pull", Scenes: []int{0, 1, 2, 3}}},
		Voiceover: model.VoiceoverSpec{
			VoiceID:       "voice",
			Style:         model.StyleCasual,
			TargetSeconds: 30,
		},
		Technical: model.DefaultTechnicalSpec(),
	}
}

// stubResolver returns fixed responses. fn, when set, overrides them.
type stubResolver struct {
	profile *model.RestaurantProfile
	err     error
	fn      func(ctx context.Context, call int) (*model.RestaurantProfile, error)
	calls   atomic.Int32
}

func (s *stubResolver) Resolve(ctx context.Context, _ string) (*model.RestaurantProfile, error) {
	n := int(s.calls.Add(1))
	if s.fn != nil {
		return s.fn(ctx, n)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.profile.Clone(), nil
}

type stubMenu struct {
	menu  *model.MenuModel
	err   error
	calls atomic.Int32
}

func (s *stubMenu) Extract(context.Context, string) (*model.MenuModel, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.menu.Clone(), nil
}

type stubWriter struct {
	script *model.ScriptModel
	err    error
	calls  atomic.Int32
}

func (s *stubWriter) Generate(context.Context, *model.RestaurantProfile, *model.MenuModel, model.Style, int) (*model.ScriptModel, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.script.Clone(), nil
}

type stubPlanner struct {
	plan  *model.ProductionPlan
	err   error
	calls atomic.Int32
}

func (s *stubPlanner) Plan(context.Context, *model.ScriptModel) (*model.ProductionPlan, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.plan.Clone(), nil
}

type stubs struct {
	resolver *stubResolver
	menu     *stubMenu
	writer   *stubWriter
	planner  *stubPlanner
}

func happyStubs() *stubs {
	return &stubs{
		resolver: &stubResolver{profile: joesPizza()},
		menu:     &stubMenu{menu: twoCategoryMenu()},
		writer:   &stubWriter{script: fourSceneScript()},
		planner:  &stubPlanner{plan: samplePlan()},
	}
}

func fastPolicy() CallPolicy {
	return CallPolicy{
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		CallTimeout: time.Second,
	}
}

func (s *stubs) stepSet(p CallPolicy) StepSet {
	return StepSet{
		Restaurant: RestaurantStep{Resolver: s.resolver, Policy: p},
		Menu:       MenuStep{Extractor: s.menu, Policy: p},
		Script:     ScriptStep{Writer: s.writer, Policy: p},
		Production: ProductionStep{Planner: s.planner, Policy: p},
	}
}

func (s *stubs) pipeline(t testing.TB, variant string) *Pipeline {
	t.Helper()
	return s.pipelineWith(t, variant, fastPolicy())
}

func (s *stubs) pipelineWith(t testing.TB, variant string, policy CallPolicy) *Pipeline {
	t.Helper()
	p, err := s.stepSet(policy).Build(variant)
	require.NoError(t, err)
	return p
}

func testOptions() Options {
	return Options{
		RunTimeout: 5 * time.Second,
		Policy:     model.RequestPolicy{MapHosts: []string{testMapHost}},
	}
}

func newTestOrchestrator(t testing.TB, reg store.Registry, opts Options) *Orchestrator {
	t.Helper()
	if reg == nil {
		reg = store.NewMemory()
	}
	o := NewOrchestrator(reg, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

// recordingRegistry keeps every snapshot written for each run.
type recordingRegistry struct {
	store.Registry
	mu        sync.Mutex
	snapshots map[string][]*model.RunState
}

func newRecordingRegistry() *recordingRegistry {
	return &recordingRegistry{Registry: store.NewMemory(), snapshots: map[string][]*model.RunState{}}
}

func (r *recordingRegistry) Put(ctx context.Context, run *model.RunState) error {
	if err := r.Registry.Put(ctx, run); err != nil {
		return err
	}
	r.record(run)
	return nil
}

func (r *recordingRegistry) Update(ctx context.Context, id string, fn store.Mutator) (*model.RunState, error) {
	out, err := r.Registry.Update(ctx, id, fn)
	if err == nil {
		r.record(out)
	}
	return out, err
}

func (r *recordingRegistry) record(run *model.RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[run.ID] = append(r.snapshots[run.ID], run.Clone())
}

func (r *recordingRegistry) history(id string) []*model.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.RunState(nil), r.snapshots[id]...)
}
