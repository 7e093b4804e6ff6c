package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// StepName identifies a pipeline step.
type StepName string

const (
	StepRestaurantExtraction StepName = "restaurant_extraction"
	StepMenuExtraction       StepName = "menu_extraction"
	StepScriptGeneration     StepName = "script_generation"
	StepProductionPlanning   StepName = "production_planning"
)

var stepLabels = map[StepName]string{
	StepRestaurantExtraction: "Extracting restaurant details",
	StepMenuExtraction:       "Extracting menu",
	StepScriptGeneration:     "Writing video script",
	StepProductionPlanning:   "Planning production",
}

// Label returns a human-readable description of the step.
func (s StepName) Label() string {
	if l, ok := stepLabels[s]; ok {
		return l
	}
	return string(s)
}

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// ErrorCategory classifies why a run failed.
type ErrorCategory string

const (
	ErrorCategoryNotFound     ErrorCategory = "not_found"
	ErrorCategoryRateLimited  ErrorCategory = "rate_limited"
	ErrorCategoryTimeout      ErrorCategory = "timeout"
	ErrorCategoryUnavailable  ErrorCategory = "unavailable"
	ErrorCategoryInvalid      ErrorCategory = "invalid"
	ErrorCategoryPrecondition ErrorCategory = "precondition"
	ErrorCategoryRunTimeout   ErrorCategory = "run_timeout"
	ErrorCategoryCancelled    ErrorCategory = "cancelled"
	ErrorCategoryInternal     ErrorCategory = "internal"
)

// RunError is the structured failure stored on a failed run.
type RunError struct {
	Category ErrorCategory `json:"category"`
	StepName StepName      `json:"step_name,omitempty"`
	Message  string        `json:"message"`
}

// Output is implemented by the four step result types.
type Output interface {
	stepOutput() StepName
}

// OutputStep returns the step that produces o.
func OutputStep(o Output) StepName {
	return o.stepOutput()
}

// Results holds each step's typed output, keyed by step.
type Results struct {
	Restaurant *RestaurantProfile `json:"restaurant_extraction,omitempty"`
	Menu       *MenuModel         `json:"menu_extraction,omitempty"`
	Script     *ScriptModel       `json:"script_generation,omitempty"`
	Production *ProductionPlan    `json:"production_planning,omitempty"`
}

// Get returns the output recorded for step, or nil.
func (r Results) Get(step StepName) Output {
	switch step {
	case StepRestaurantExtraction:
		if r.Restaurant != nil {
			return r.Restaurant
		}
	case StepMenuExtraction:
		if r.Menu != nil {
			return r.Menu
		}
	case StepScriptGeneration:
		if r.Script != nil {
			return r.Script
		}
	case StepProductionPlanning:
		if r.Production != nil {
			return r.Production
		}
	}
	return nil
}

// Has reports whether step has a recorded output.
func (r Results) Has(step StepName) bool {
	return r.Get(step) != nil
}

// Set stores out under step. The output type must belong to step.
func (r *Results) Set(step StepName, out Output) error {
	if out == nil {
		return eris.Errorf("results: nil output for %s", step)
	}
	if got := out.stepOutput(); got != step {
		return eris.Errorf("results: %s output stored under %s", got, step)
	}
	switch v := out.(type) {
	case *RestaurantProfile:
		r.Restaurant = v
	case *MenuModel:
		r.Menu = v
	case *ScriptModel:
		r.Script = v
	case *ProductionPlan:
		r.Production = v
	}
	return nil
}

// Len returns how many steps have outputs.
func (r Results) Len() int {
	n := 0
	for _, s := range []StepName{StepRestaurantExtraction, StepMenuExtraction, StepScriptGeneration, StepProductionPlanning} {
		if r.Has(s) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (r Results) Clone() Results {
	return Results{
		Restaurant: r.Restaurant.Clone(),
		Menu:       r.Menu.Clone(),
		Script:     r.Script.Clone(),
		Production: r.Production.Clone(),
	}
}

// RunState is the accumulating record of one pipeline execution.
type RunState struct {
	ID             string        `json:"run_id"`
	Request        SourceRequest `json:"request"`
	Variant        string        `json:"variant"`
	Steps          []StepName    `json:"steps"`
	Status         RunStatus     `json:"status"`
	CurrentStep    StepName      `json:"current_step,omitempty"`
	CompletedSteps []StepName    `json:"completed_steps"`
	Results        Results       `json:"results"`
	Error          *RunError     `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so readers never share memory with the writer.
func (r *RunState) Clone() *RunState {
	if r == nil {
		return nil
	}
	c := *r
	c.Steps = append([]StepName(nil), r.Steps...)
	c.CompletedSteps = append([]StepName{}, r.CompletedSteps...)
	c.Results = r.Results.Clone()
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	return &c
}
