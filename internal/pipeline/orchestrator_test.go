package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reel-cli/internal/metrics"
	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/resilience"
	"github.com/sells-group/reel-cli/internal/store"
)

func TestScenarioA_FullRunCompletes(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	o := newTestOrchestrator(t, nil, testOptions())

	run, err := o.RunSync(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 4, run.Results.Len())
	assert.Equal(t, "Joe's Pizza", run.Results.Restaurant.Name)
	assert.Len(t, run.Results.Menu.Categories, 2)
	assert.InDelta(t, 30, run.Results.Script.TotalSeconds(), 1)
	assert.NotNil(t, run.Results.Production)
	assert.Nil(t, run.Error)
	assert.Empty(t, run.CurrentStep)

	view := Project(run)
	assert.Equal(t, 100, view.ProgressPercent)
	assert.Nil(t, view.CurrentStepLabel)
}

func TestScenarioB_MenuUnavailableFailsRun(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	s.menu.err = resilience.NewAdapterError("firecrawl", resilience.KindUnavailable, errors.New("503"))
	o := newTestOrchestrator(t, nil, testOptions())

	run, err := o.RunSync(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, model.StepMenuExtraction, run.Error.StepName)
	assert.Equal(t, model.ErrorCategoryUnavailable, run.Error.Category)
	assert.Equal(t, []model.StepName{model.StepRestaurantExtraction}, run.CompletedSteps)
	assert.Equal(t, int32(3), s.menu.calls.Load(), "transient failures are retried up to three attempts")
	assert.Zero(t, s.writer.calls.Load())
	assert.False(t, run.Results.Has(model.StepMenuExtraction))
}

func TestScenarioC_ScriptOnlyWithoutMenuIsRejected(t *testing.T) {
	t.Parallel()

	set := happyStubs().stepSet(fastPolicy())
	_, err := New("script-only", set.Restaurant, set.Script)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPipeline))
	assert.Contains(t, err.Error(), "menu_extraction")
}

func TestFirstStepFailure(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	s.resolver.err = resilience.NewAdapterError("google_places", resilience.KindNotFound, errors.New("no place"))
	o := newTestOrchestrator(t, nil, testOptions())

	run, err := o.RunSync(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Zero(t, run.Results.Len())
	assert.Empty(t, run.CompletedSteps)
	require.NotNil(t, run.Error)
	assert.Equal(t, model.StepRestaurantExtraction, run.Error.StepName)
	assert.Equal(t, model.ErrorCategoryNotFound, run.Error.Category)
	assert.Equal(t, int32(1), s.resolver.calls.Load(), "not found is never retried")
	assert.Zero(t, s.menu.calls.Load())
}

func TestEmptyMenuFailsScriptPrecondition(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	s.menu.menu = &model.MenuModel{Categories: []model.MenuCategory{}, ExtractionMethod: model.ExtractionScrape}
	o := newTestOrchestrator(t, nil, testOptions())

	run, err := o.RunSync(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, model.ErrorCategoryPrecondition, run.Error.Category)
	assert.Equal(t, model.StepScriptGeneration, run.Error.StepName)
	assert.Zero(t, s.writer.calls.Load(), "no script is written without menu items")
	assert.Equal(t, []model.StepName{model.StepRestaurantExtraction, model.StepMenuExtraction}, run.CompletedSteps)
}

func TestMissingWebsiteFailsMenuPrecondition(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	s.resolver.profile.Website = ""
	o := newTestOrchestrator(t, nil, testOptions())

	run, err := o.RunSync(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)

	require.NotNil(t, run.Error)
	assert.Equal(t, model.ErrorCategoryPrecondition, run.Error.Category)
	assert.Equal(t, model.StepMenuExtraction, run.Error.StepName)
	assert.Zero(t, s.menu.calls.Load())
}

func TestDeterministicResults(t *testing.T) {
	t.Parallel()

	var results []model.Results
	for range 3 {
		s := happyStubs()
		o := newTestOrchestrator(t, nil, testOptions())
		run, err := o.RunSync(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
		require.NoError(t, err)
		results = append(results, run.Results)
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[1], results[2])
}

func TestVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		variant string
		steps   []model.StepName
		last    model.StepName
	}{
		{VariantFull, []model.StepName{model.StepRestaurantExtraction, model.StepMenuExtraction, model.StepScriptGeneration, model.StepProductionPlanning}, model.StepProductionPlanning},
		{VariantScript, []model.StepName{model.StepRestaurantExtraction, model.StepMenuExtraction, model.StepScriptGeneration}, model.StepScriptGeneration},
		{VariantAnalysis, []model.StepName{model.StepRestaurantExtraction}, model.StepRestaurantExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			s := happyStubs()
			o := newTestOrchestrator(t, nil, testOptions())
			run, err := o.RunSync(context.Background(), scenarioRequest(), s.pipeline(t, tt.variant))
			require.NoError(t, err)

			assert.Equal(t, model.RunStatusCompleted, run.Status)
			assert.Equal(t, tt.steps, run.Steps)
			assert.Equal(t, tt.steps, run.CompletedSteps)
			assert.Equal(t, tt.variant, run.Variant)

			art, err := o.Artifact(context.Background(), run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.last, art.Step)
		})
	}

	_, err := happyStubs().stepSet(fastPolicy()).Build("teaser")
	assert.Error(t, err)
}

func TestStartRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	reg := store.NewMemory()
	o := newTestOrchestrator(t, reg, testOptions())
	p := happyStubs().pipeline(t, VariantFull)

	bad := []model.SourceRequest{
		{SourceURL: "https://example.com/not-a-map", Style: model.StyleCasual, DurationSeconds: 30},
		{SourceURL: "https://maps.example/place/X", Style: "noir", DurationSeconds: 30},
		{SourceURL: "https://maps.example/place/X", Style: model.StyleCasual, DurationSeconds: 5},
	}
	for _, req := range bad {
		_, err := o.Start(context.Background(), req, p)
		var ve *model.ValidationError
		assert.ErrorAs(t, err, &ve, "%+v", req)
	}

	runs, err := reg.List(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs, "invalid requests never create runs")
}

func TestStartReturnsBeforeCompletion(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	s := happyStubs()
	s.resolver.fn = func(ctx context.Context, _ int) (*model.RestaurantProfile, error) {
		select {
		case <-release:
			return joesPizza(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	o := newTestOrchestrator(t, nil, testOptions())

	id, err := o.Start(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	view, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, view.Status.Terminal())
	assert.Equal(t, 0, view.ProgressPercent)

	_, err = o.Artifact(context.Background(), id)
	assert.True(t, errors.Is(err, ErrNotReady))

	close(release)
	run, err := o.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
}

func TestStatusUnknownRun(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, nil, testOptions())
	_, err := o.Status(context.Background(), "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = o.Artifact(context.Background(), "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	s.resolver.fn = func(ctx context.Context, _ int) (*model.RestaurantProfile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	opts := testOptions()
	opts.RunTimeout = 50 * time.Millisecond
	o := newTestOrchestrator(t, nil, opts)

	p, err := s.stepSet(CallPolicy{Retry: fastPolicy().Retry}).Build(VariantFull)
	require.NoError(t, err)
	run, err := o.RunSync(context.Background(), scenarioRequest(), p)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, model.ErrorCategoryRunTimeout, run.Error.Category)
	assert.Equal(t, model.StepRestaurantExtraction, run.Error.StepName)
}

func TestCallTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	s.resolver.fn = func(ctx context.Context, call int) (*model.RestaurantProfile, error) {
		if call == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return joesPizza(), nil
	}
	policy := fastPolicy()
	policy.CallTimeout = 20 * time.Millisecond
	p, err := s.stepSet(policy).Build(VariantAnalysis)
	require.NoError(t, err)

	o := newTestOrchestrator(t, nil, testOptions())
	run, err := o.RunSync(context.Background(), scenarioRequest(), p)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, int32(2), s.resolver.calls.Load())
}

func TestCancelDiscardsLateResult(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	s := happyStubs()
	s.resolver.fn = func(context.Context, int) (*model.RestaurantProfile, error) {
		close(started)
		<-release
		return joesPizza(), nil
	}
	reg := newRecordingRegistry()
	o := newTestOrchestrator(t, reg, testOptions())

	id, err := o.Start(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)
	<-started

	cancelled, err := o.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, cancelled.Status)
	require.NotNil(t, cancelled.Error)
	assert.Equal(t, model.ErrorCategoryCancelled, cancelled.Error.Category)
	assert.Equal(t, model.StepRestaurantExtraction, cancelled.Error.StepName)

	close(release)
	run, err := o.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Empty(t, run.CompletedSteps)
	assert.Zero(t, run.Results.Len())
	assert.Zero(t, s.menu.calls.Load())

	_, err = o.Cancel(context.Background(), id)
	assert.True(t, errors.Is(err, ErrAlreadyTerminal))

	_, err = o.Artifact(context.Background(), id)
	assert.True(t, errors.Is(err, ErrRunFailed))

	terminal := 0
	for _, snap := range reg.history(id) {
		if snap.Status.Terminal() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal, "a run becomes terminal exactly once")
}

func TestCancelUnknownRun(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, nil, testOptions())
	_, err := o.Cancel(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestWaitContextCancelsRun(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	s.resolver.fn = func(ctx context.Context, _ int) (*model.RestaurantProfile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	o := newTestOrchestrator(t, nil, testOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	run, err := o.RunSync(ctx, scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ErrorCategoryCancelled, run.Error.Category)
}

func TestPanickingStepFailsRun(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	s.resolver.fn = func(context.Context, int) (*model.RestaurantProfile, error) {
		panic("boom")
	}
	o := newTestOrchestrator(t, nil, testOptions())

	run, err := o.RunSync(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ErrorCategoryInternal, run.Error.Category)
	assert.Equal(t, "internal error", run.Error.Message)
}

func TestConcurrentRuns(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	p := s.pipeline(t, VariantFull)
	o := newTestOrchestrator(t, nil, testOptions())

	const runs = 25
	ids := make([]string, runs)
	var wg sync.WaitGroup
	for i := range runs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := o.Start(context.Background(), scenarioRequest(), p)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true

		run, err := o.Wait(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompleted, run.Status)
	}
	assert.Equal(t, int32(runs), s.planner.calls.Load())
	assert.Zero(t, o.Active())
}

func TestShutdownFailsRemainingRuns(t *testing.T) {
	t.Parallel()

	s := happyStubs()
	s.resolver.fn = func(ctx context.Context, _ int) (*model.RestaurantProfile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	reg := store.NewMemory()
	o := NewOrchestrator(reg, testOptions())

	id, err := o.Start(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.Shutdown(ctx), context.DeadlineExceeded)

	run, err := reg.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ErrorCategoryCancelled, run.Error.Category)
	assert.Equal(t, ErrShutdown.Error(), run.Error.Message)

	_, err = o.Start(context.Background(), scenarioRequest(), s.pipeline(t, VariantFull))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestFailOrphaned(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := store.NewMemory()
	ctx := context.Background()
	mk := func(id string, status model.RunStatus, updated time.Time) {
		require.NoError(t, reg.Put(ctx, &model.RunState{
			ID: id, Status: status, Steps: []model.StepName{model.StepRestaurantExtraction},
			CurrentStep: model.StepRestaurantExtraction, CompletedSteps: []model.StepName{},
			CreatedAt: updated, UpdatedAt: updated,
		}))
	}
	mk("stale-running", model.RunStatusRunning, now.Add(-time.Hour))
	mk("stale-pending", model.RunStatusPending, now.Add(-time.Hour))
	mk("fresh-running", model.RunStatusRunning, now.Add(-time.Second))
	mk("old-done", model.RunStatusCompleted, now.Add(-time.Hour))

	opts := testOptions()
	opts.Now = func() time.Time { return now }
	o := newTestOrchestrator(t, reg, opts)

	n, err := o.FailOrphaned(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	run, err := reg.Get(ctx, "stale-running")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ErrorCategoryRunTimeout, run.Error.Category)
	assert.Equal(t, model.StepRestaurantExtraction, run.Error.StepName)

	fresh, err := reg.Get(ctx, "fresh-running")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, fresh.Status)
}

func TestJanitorSweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := store.NewMemory()
	ctx := context.Background()
	for i, status := range []model.RunStatus{model.RunStatusCompleted, model.RunStatusFailed, model.RunStatusRunning} {
		require.NoError(t, reg.Put(ctx, &model.RunState{
			ID: fmt.Sprintf("r%d", i), Status: status, CompletedSteps: []model.StepName{},
			CreatedAt: now.Add(-48 * time.Hour), UpdatedAt: now.Add(-48 * time.Hour),
		}))
	}

	opts := testOptions()
	opts.Now = func() time.Time { return now }
	o := newTestOrchestrator(t, reg, opts)
	j := &Janitor{Orchestrator: o, Registry: reg, TTL: 24 * time.Hour, StaleAfter: time.Hour, Now: func() time.Time { return now }}

	res, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Orphaned)
	assert.Equal(t, 2, res.Evicted)

	left, err := reg.List(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, model.RunStatusFailed, left[0].Status, "orphan is failed now and evicted on a later sweep")
}

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()

	m := metrics.NewCollector("test")
	opts := testOptions()
	opts.Metrics = m
	o := newTestOrchestrator(t, nil, opts)

	policy := fastPolicy()
	policy.Metrics = m

	s := happyStubs()
	_, err := o.RunSync(context.Background(), scenarioRequest(), s.pipelineWith(t, VariantFull, policy))
	require.NoError(t, err)

	s.menu.err = resilience.NewAdapterError("firecrawl", resilience.KindTimeout, errors.New("slow"))
	run, err := o.RunSync(context.Background(), scenarioRequest(), s.pipelineWith(t, VariantFull, policy))
	require.NoError(t, err)
	require.Equal(t, model.RunStatusFailed, run.Status)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	var retries float64
	for _, f := range families {
		names[f.GetName()] = true
		if f.GetName() != "test_adapter_retries_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetValue() == string(model.StepMenuExtraction) {
					retries += metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.True(t, names["test_runs_started_total"])
	assert.True(t, names["test_runs_finished_total"])
	assert.True(t, names["test_step_duration_seconds"])
	assert.Equal(t, float64(policy.Retry.MaxAttempts-1), retries)
}
