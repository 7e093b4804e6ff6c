package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/resilience"
)

var (
	// ErrRunTimeout is the cause attached to a run that exceeded its
	// wall-clock budget.
	ErrRunTimeout = eris.New("run exceeded its time budget")
	// ErrRunCancelled is the cause attached to a run cancelled by a client.
	ErrRunCancelled = eris.New("run was cancelled")
	// ErrShutdown is the cause attached to runs abandoned by a stopping server.
	ErrShutdown = eris.New("service shutting down")
	// ErrInvalidPipeline is returned by New for malformed step lists.
	ErrInvalidPipeline = eris.New("invalid pipeline")
	// ErrNotReady is returned for artifacts of runs that have not completed.
	ErrNotReady = eris.New("artifact not ready")
	// ErrRunFailed is returned for artifacts of failed runs.
	ErrRunFailed = eris.New("run failed")
	// ErrAlreadyTerminal is returned when cancelling a finished run.
	ErrAlreadyTerminal = eris.New("run already finished")
)

// PreconditionError reports upstream data that is missing or too thin for a
// step to proceed.
type PreconditionError struct {
	Step   model.StepName
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition failed: %s", e.Step, e.Reason)
}

// StepError is the failure a step surfaces to the orchestrator.
type StepError struct {
	Step model.StepName
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Categorize maps any failure to the category stored on a run.
func Categorize(err error) model.ErrorCategory {
	var pre *PreconditionError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRunTimeout):
		return model.ErrorCategoryRunTimeout
	case errors.Is(err, ErrRunCancelled), errors.Is(err, ErrShutdown):
		return model.ErrorCategoryCancelled
	case errors.As(err, &pre):
		return model.ErrorCategoryPrecondition
	}
	if kind, ok := resilience.KindOf(err); ok {
		return model.ErrorCategory(kind)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.ErrorCategoryTimeout
	case errors.Is(err, context.Canceled):
		return model.ErrorCategoryCancelled
	}
	return model.ErrorCategoryInternal
}

var kindMessages = map[resilience.Kind]string{
	resilience.KindNotFound:    "the requested resource was not found",
	resilience.KindRateLimited: "the service is rate limiting requests",
	resilience.KindTimeout:     "the service did not respond in time",
	resilience.KindUnavailable: "the service is unavailable",
	resilience.KindInvalid:     "the service returned unusable data",
}

// Describe returns a short human-readable message for err without adapter
// internals.
func Describe(err error) string {
	var (
		pre *PreconditionError
		ae  *resilience.AdapterError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRunTimeout):
		return ErrRunTimeout.Error()
	case errors.Is(err, ErrShutdown):
		return ErrShutdown.Error()
	case errors.Is(err, ErrRunCancelled):
		return ErrRunCancelled.Error()
	case errors.As(err, &pre):
		return pre.Reason
	case errors.As(err, &ae):
		if errors.Is(ae, resilience.ErrCircuitOpen) {
			return fmt.Sprintf("%s: temporarily disabled after repeated failures", ae.Service)
		}
		return fmt.Sprintf("%s: %s", ae.Service, kindMessages[ae.Kind])
	case errors.Is(err, context.DeadlineExceeded):
		return "the step did not finish in time"
	}
	return "internal error"
}

func toRunError(step model.StepName, err error) *model.RunError {
	return &model.RunError{
		Category: Categorize(err),
		StepName: step,
		Message:  Describe(err),
	}
}
