package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reel-cli/internal/model"
)

func completedRun() *model.RunState {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	return &model.RunState{
		ID:             "run-1",
		Request:        model.SourceRequest{SourceURL: "https://maps.example/place/joes", Style: model.StyleCasual, DurationSeconds: 30},
		Variant:        "analysis",
		Steps:          []model.StepName{model.StepRestaurantExtraction},
		Status:         model.RunStatusCompleted,
		CompletedSteps: []model.StepName{model.StepRestaurantExtraction},
		Results:        model.Results{Restaurant: &model.RestaurantProfile{Name: "Joe's Pizza"}},
		CreatedAt:      now,
		UpdatedAt:      now.Add(3 * time.Second),
	}
}

func TestPrintRun_Completed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRun(&buf, completedRun()))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "run-1", out["run_id"])
	assert.Equal(t, "completed", out["status"])
	assert.EqualValues(t, 100, out["progress_percent"])
}

func TestPrintRun_FailedReturnsError(t *testing.T) {
	run := completedRun()
	run.Status = model.RunStatusFailed
	run.CompletedSteps = []model.StepName{}
	run.Results = model.Results{}
	run.Error = &model.RunError{
		Category: model.ErrorCategoryNotFound,
		StepName: model.StepRestaurantExtraction,
		Message:  "google_places: the requested resource was not found",
	}

	var buf bytes.Buffer
	err := printRun(&buf, run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restaurant_extraction")
	assert.Contains(t, err.Error(), "not_found")
	assert.Contains(t, buf.String(), `"category": "not_found"`, "status is printed before the error")
}
