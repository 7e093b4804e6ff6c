package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reel-cli/internal/model"
)

func TestProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		completed, total, want int
	}{
		{0, 4, 0},
		{1, 4, 25},
		{2, 3, 66},
		{3, 4, 75},
		{4, 4, 100},
		{1, 1, 100},
		{0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Progress(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestProject_Running(t *testing.T) {
	t.Parallel()

	run := &model.RunState{
		ID:             "r1",
		Variant:        VariantFull,
		Steps:          allSteps(),
		Status:         model.RunStatusRunning,
		CurrentStep:    model.StepMenuExtraction,
		CompletedSteps: []model.StepName{model.StepRestaurantExtraction},
		Results:        model.Results{Restaurant: joesPizza()},
	}
	v := Project(run)
	assert.Equal(t, 25, v.ProgressPercent)
	require.NotNil(t, v.CurrentStepLabel)
	assert.Equal(t, model.StepMenuExtraction.Label(), *v.CurrentStepLabel)
	assert.Nil(t, v.Error)

	v.Results.Restaurant.Name = "changed"
	v.CompletedSteps[0] = "x"
	assert.Equal(t, "Joe's Pizza", run.Results.Restaurant.Name)
	assert.Equal(t, model.StepRestaurantExtraction, run.CompletedSteps[0])
}

func TestProject_Failed(t *testing.T) {
	t.Parallel()

	run := &model.RunState{
		ID:     "r2",
		Steps:  allSteps(),
		Status: model.RunStatusFailed,
		Error: &model.RunError{
			Category: model.ErrorCategoryNotFound,
			StepName: model.StepRestaurantExtraction,
			Message:  "places: the requested resource was not found",
		},
	}
	v := Project(run)
	assert.Equal(t, 0, v.ProgressPercent)
	assert.Nil(t, v.CurrentStepLabel)
	require.NotNil(t, v.Error)
	assert.Equal(t, model.ErrorCategoryNotFound, v.Error.Category)
	assert.Equal(t, model.StepRestaurantExtraction.Label(), v.Error.StepLabel)
}

func TestArtifactOf(t *testing.T) {
	t.Parallel()

	completed := &model.RunState{
		ID:      "r3",
		Steps:   []model.StepName{model.StepRestaurantExtraction, model.StepMenuExtraction, model.StepScriptGeneration},
		Status:  model.RunStatusCompleted,
		Results: model.Results{Restaurant: joesPizza(), Menu: twoCategoryMenu(), Script: fourSceneScript()},
	}
	art, err := ArtifactOf(completed)
	require.NoError(t, err)
	assert.Equal(t, model.StepScriptGeneration, art.Step)
	assert.Equal(t, "reel://runs/r3/script_generation", art.Reference)
	assert.IsType(t, &model.ScriptModel{}, art.Output)

	_, err = ArtifactOf(&model.RunState{ID: "r4", Status: model.RunStatusRunning, Steps: allSteps()})
	assert.True(t, errors.Is(err, ErrNotReady))

	_, err = ArtifactOf(&model.RunState{ID: "r5", Status: model.RunStatusFailed, Steps: allSteps()})
	assert.True(t, errors.Is(err, ErrRunFailed))
}

func allSteps() []model.StepName {
	return []model.StepName{
		model.StepRestaurantExtraction,
		model.StepMenuExtraction,
		model.StepScriptGeneration,
		model.StepProductionPlanning,
	}
}
