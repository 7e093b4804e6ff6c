package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResults_SetRejectsMismatchedStep(t *testing.T) {
	t.Parallel()

	var r Results
	err := r.Set(StepMenuExtraction, &RestaurantProfile{Name: "Joe's"})
	require.Error(t, err)
	assert.False(t, r.Has(StepMenuExtraction))
	assert.False(t, r.Has(StepRestaurantExtraction))

	require.NoError(t, r.Set(StepRestaurantExtraction, &RestaurantProfile{Name: "Joe's"}))
	assert.True(t, r.Has(StepRestaurantExtraction))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, StepRestaurantExtraction, OutputStep(r.Get(StepRestaurantExtraction)))
}

func TestResults_JSONKeysAreStepNames(t *testing.T) {
	t.Parallel()

	r := Results{
		Restaurant: &RestaurantProfile{Name: "Joe's Pizza"},
		Menu:       &MenuModel{ExtractionMethod: ExtractionScrape},
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &keys))
	assert.Contains(t, keys, string(StepRestaurantExtraction))
	assert.Contains(t, keys, string(StepMenuExtraction))
	assert.NotContains(t, keys, string(StepScriptGeneration))
}

func TestRunState_CloneIsDeep(t *testing.T) {
	t.Parallel()

	rating := 4.5
	orig := &RunState{
		ID:             "run-1",
		Steps:          []StepName{StepRestaurantExtraction, StepMenuExtraction},
		Status:         RunStatusRunning,
		CompletedSteps: []StepName{StepRestaurantExtraction},
		Results: Results{
			Restaurant: &RestaurantProfile{Name: "Joe's", Rating: &rating},
			Menu: &MenuModel{Categories: []MenuCategory{
				{Name: "Pizza", Items: []MenuItem{{Name: "Margherita"}}},
			}},
		},
		Error:     &RunError{Category: ErrorCategoryInvalid},
		CreatedAt: time.Now(),
	}

	c := orig.Clone()
	c.CompletedSteps = append(c.CompletedSteps, StepMenuExtraction)
	*c.Results.Restaurant.Rating = 1.0
	c.Results.Menu.Categories[0].Items[0].Name = "Changed"
	c.Error.Category = ErrorCategoryTimeout

	assert.Len(t, orig.CompletedSteps, 1)
	assert.InDelta(t, 4.5, *orig.Results.Restaurant.Rating, 0.0001)
	assert.Equal(t, "Margherita", orig.Results.Menu.Categories[0].Items[0].Name)
	assert.Equal(t, ErrorCategoryInvalid, orig.Error.Category)
}

func TestRunStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, RunStatusPending.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
}

func TestScriptModel_TotalsAndNarration(t *testing.T) {
	t.Parallel()

	s := &ScriptModel{Scenes: []Scene{
		{NarrationText: " Hungry? ", DurationSeconds: 7.5},
		{NarrationText: "", DurationSeconds: 2.5},
		{NarrationText: "Visit Joe's.", DurationSeconds: 20},
	}}
	assert.InDelta(t, 30.0, s.TotalSeconds(), 0.0001)
	assert.Equal(t, "Hungry? Visit Joe's.", s.Narration())

	var nilScript *ScriptModel
	assert.Zero(t, nilScript.TotalSeconds())
}

func TestMenuModel_ItemCount(t *testing.T) {
	t.Parallel()

	m := &MenuModel{Categories: []MenuCategory{
		{Name: "Pizza", Items: []MenuItem{{Name: "A"}, {Name: "B"}}},
		{Name: "Drinks", Items: []MenuItem{{Name: "C"}}},
		{Name: "Empty"},
	}}
	assert.Equal(t, 3, m.ItemCount())
	assert.Equal(t, 0, (*MenuModel)(nil).ItemCount())
}

func TestStepName_Label(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Extracting menu", StepMenuExtraction.Label())
	assert.Equal(t, "custom_step", StepName("custom_step").Label())
}
