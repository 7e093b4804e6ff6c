package pipeline

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/model"
)

// StatusView is the client-facing projection of a run.
type StatusView struct {
	RunID            string           `json:"run_id"`
	Variant          string           `json:"variant"`
	Status           model.RunStatus  `json:"status"`
	ProgressPercent  int              `json:"progress_percent"`
	CurrentStep      model.StepName   `json:"current_step,omitempty"`
	CurrentStepLabel *string          `json:"current_step_label"`
	Steps            []model.StepName `json:"steps"`
	CompletedSteps   []model.StepName `json:"completed_steps"`
	Results          model.Results    `json:"results"`
	Error            *ErrorView       `json:"error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ErrorView is the failure shown to clients: a category and the failing step,
// never adapter internals.
type ErrorView struct {
	Category  model.ErrorCategory `json:"category"`
	StepName  model.StepName      `json:"step_name,omitempty"`
	StepLabel string              `json:"step_label,omitempty"`
	Message   string              `json:"message"`
}

// Project derives a StatusView from a run snapshot. It never mutates run.
func Project(run *model.RunState) StatusView {
	v := StatusView{
		RunID:           run.ID,
		Variant:         run.Variant,
		Status:          run.Status,
		ProgressPercent: Progress(len(run.CompletedSteps), len(run.Steps)),
		CurrentStep:     run.CurrentStep,
		Steps:           append([]model.StepName{}, run.Steps...),
		CompletedSteps:  append([]model.StepName{}, run.CompletedSteps...),
		Results:         run.Results.Clone(),
		CreatedAt:       run.CreatedAt,
		UpdatedAt:       run.UpdatedAt,
	}
	if run.CurrentStep != "" {
		label := run.CurrentStep.Label()
		v.CurrentStepLabel = &label
	}
	if run.Error != nil {
		v.Error = &ErrorView{
			Category: run.Error.Category,
			StepName: run.Error.StepName,
			Message:  run.Error.Message,
		}
		if run.Error.StepName != "" {
			v.Error.StepLabel = run.Error.StepName.Label()
		}
	}
	return v
}

// Progress is the share of steps completed, in whole percent.
func Progress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return 100 * completed / total
}

// Artifact points at the final output of a completed run.
type Artifact struct {
	RunID     string         `json:"run_id"`
	Step      model.StepName `json:"step"`
	Reference string         `json:"reference"`
	Output    model.Output   `json:"output"`
}

// ArtifactOf returns the artifact of a completed run: the output of its last
// step. Runs still in progress yield ErrNotReady and failed runs ErrRunFailed.
func ArtifactOf(run *model.RunState) (*Artifact, error) {
	switch run.Status {
	case model.RunStatusCompleted:
	case model.RunStatusFailed:
		return nil, eris.Wrapf(ErrRunFailed, "run %s", run.ID)
	default:
		return nil, eris.Wrapf(ErrNotReady, "run %s is %s", run.ID, run.Status)
	}
	if len(run.Steps) == 0 {
		return nil, eris.Wrapf(ErrNotReady, "run %s has no steps", run.ID)
	}
	last := run.Steps[len(run.Steps)-1]
	out := run.Results.Clone().Get(last)
	if out == nil {
		return nil, eris.Errorf("run %s completed without %s output", run.ID, last)
	}
	return &Artifact{
		RunID:     run.ID,
		Step:      last,
		Reference: fmt.Sprintf("reel://runs/%s/%s", run.ID, last),
		Output:    out,
	}, nil
}
