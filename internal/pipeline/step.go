// Package pipeline sequences the steps of a video run, records their outputs
// in the run registry and projects runs into client-facing status views.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/model"
)

// Inputs is what a step may read: the original request and the outputs of
// the steps it requires. Nothing else from the run is visible.
type Inputs struct {
	Request model.SourceRequest
	Results model.Results
}

// Step is one named unit of pipeline work. Execute must not touch shared
// state; it returns its output and the orchestrator records it.
type Step interface {
	Name() model.StepName
	Requires() []model.StepName
	Execute(ctx context.Context, in Inputs) (model.Output, error)
}

// Pipeline is a validated, ordered step list.
type Pipeline struct {
	name  string
	steps []Step
}

// New validates steps and returns a Pipeline. Every step must be unique and
// everything it requires must appear earlier in the list.
func New(name string, steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, eris.Wrapf(ErrInvalidPipeline, "pipeline %q has no steps", name)
	}
	seen := make(map[model.StepName]bool, len(steps))
	for i, s := range steps {
		if s == nil {
			return nil, eris.Wrapf(ErrInvalidPipeline, "pipeline %q: step %d is nil", name, i)
		}
		n := s.Name()
		if seen[n] {
			return nil, eris.Wrapf(ErrInvalidPipeline, "pipeline %q: step %s listed twice", name, n)
		}
		for _, req := range s.Requires() {
			if !seen[req] {
				return nil, eris.Wrapf(ErrInvalidPipeline,
					"pipeline %q: step %s requires %s, which does not run before it", name, n, req)
			}
		}
		seen[n] = true
	}
	return &Pipeline{name: name, steps: append([]Step(nil), steps...)}, nil
}

// Name returns the variant name the pipeline was built under.
func (p *Pipeline) Name() string { return p.name }

// StepNames returns the step order.
func (p *Pipeline) StepNames() []model.StepName {
	out := make([]model.StepName, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Name()
	}
	return out
}

// gather builds a step's inputs from the run, copying only what it requires.
func gather(run *model.RunState, s Step) (Inputs, error) {
	in := Inputs{Request: run.Request}
	for _, req := range s.Requires() {
		out := run.Results.Get(req)
		if out == nil {
			return Inputs{}, eris.Errorf("pipeline: %s output missing for %s", req, s.Name())
		}
		if err := in.Results.Set(req, out); err != nil {
			return Inputs{}, err
		}
	}
	in.Results = in.Results.Clone()
	return in, nil
}
