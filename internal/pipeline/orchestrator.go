package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/metrics"
	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/store"
)

// Defaults applied by NewOrchestrator.
const (
	DefaultRunTimeout   = 5 * time.Minute
	DefaultWriteTimeout = 10 * time.Second
)

var errTerminal = eris.New("run is terminal")

// ErrStopped is returned by Start after Shutdown.
var ErrStopped = eris.New("orchestrator is shut down")

// Options configures an Orchestrator.
type Options struct {
	// RunTimeout bounds each run's wall-clock time.
	RunTimeout time.Duration
	// WriteTimeout bounds each registry write. Writes are detached from the
	// run context so a cancelled run can still record its failure.
	WriteTimeout time.Duration
	Policy       model.RequestPolicy
	Metrics      *metrics.Collector
	Now          func() time.Time
	NewID        func() string
}

type activeRun struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Orchestrator starts runs and drives each one through its pipeline on its
// own goroutine. It is the only writer of the runs it executes.
type Orchestrator struct {
	reg  store.Registry
	opts Options

	base    context.Context
	stopAll context.CancelCauseFunc

	mu      sync.Mutex
	active  map[string]*activeRun
	stopped bool
	wg      sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator writing to reg.
func NewOrchestrator(reg store.Registry, opts Options) *Orchestrator {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	base, stop := context.WithCancelCause(context.Background())
	return &Orchestrator{
		reg:     reg,
		opts:    opts,
		base:    base,
		stopAll: stop,
		active:  make(map[string]*activeRun),
	}
}

// Start validates req, registers a pending run and executes p in the
// background. It returns as soon as the run is registered.
func (o *Orchestrator) Start(ctx context.Context, req model.SourceRequest, p *Pipeline) (string, error) {
	if p == nil {
		return "", eris.New("pipeline: nil pipeline")
	}
	if err := o.opts.Policy.Validate(req); err != nil {
		return "", err
	}
	if o.isStopped() {
		return "", ErrStopped
	}

	now := o.opts.Now()
	run := &model.RunState{
		ID:             o.opts.NewID(),
		Request:        req,
		Variant:        p.Name(),
		Steps:          p.StepNames(),
		Status:         model.RunStatusPending,
		CompletedSteps: []model.StepName{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.reg.Put(ctx, run); err != nil {
		return "", eris.Wrap(err, "pipeline: register run")
	}

	runCtx, cancel := context.WithCancelCause(o.base)
	ar := &activeRun{cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		cancel(ErrShutdown)
		o.fail(runCtx, run.ID, "", ErrShutdown)
		return "", ErrStopped
	}
	o.active[run.ID] = ar
	o.wg.Add(1)
	o.mu.Unlock()

	o.opts.Metrics.RunStarted()
	go func() {
		defer o.wg.Done()
		defer close(ar.done)
		defer cancel(nil)
		o.execute(runCtx, run.ID, p)
	}()
	return run.ID, nil
}

// RunSync starts a run and blocks until it is terminal. Cancelling ctx
// cancels the run.
func (o *Orchestrator) RunSync(ctx context.Context, req model.SourceRequest, p *Pipeline) (*model.RunState, error) {
	id, err := o.Start(ctx, req, p)
	if err != nil {
		return nil, err
	}
	return o.Wait(ctx, id)
}

// Wait blocks until the run executing in this process is terminal and
// returns its final state. If ctx ends first the run is cancelled.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*model.RunState, error) {
	o.mu.Lock()
	ar := o.active[id]
	o.mu.Unlock()

	if ar != nil {
		select {
		case <-ar.done:
		case <-ctx.Done():
			if _, err := o.Cancel(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, ErrAlreadyTerminal) {
				zap.L().Warn("pipeline: cancel on wait", zap.String("run_id", id), zap.Error(err))
			}
			<-ar.done
		}
	}
	return o.reg.Get(context.WithoutCancel(ctx), id)
}

// Cancel marks a run failed with a cancellation error and stops scheduling
// its remaining steps. A step already in flight is abandoned; its result is
// discarded.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*model.RunState, error) {
	run, err := o.reg.Update(ctx, id, func(r *model.RunState) error {
		if r.Status.Terminal() {
			return eris.Wrapf(ErrAlreadyTerminal, "run %s is %s", r.ID, r.Status)
		}
		r.Status = model.RunStatusFailed
		r.Error = toRunError(r.CurrentStep, ErrRunCancelled)
		r.CurrentStep = ""
		r.UpdatedAt = o.opts.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	ar := o.active[id]
	o.mu.Unlock()
	if ar != nil {
		ar.cancel(ErrRunCancelled)
	}
	zap.L().Info("pipeline: run cancelled", zap.String("run_id", id))
	return run, nil
}

// Status returns the projected status of a run, or store.ErrNotFound.
func (o *Orchestrator) Status(ctx context.Context, id string) (StatusView, error) {
	run, err := o.reg.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return Project(run), nil
}

// Artifact returns the final output reference of a completed run.
func (o *Orchestrator) Artifact(ctx context.Context, id string) (*Artifact, error) {
	run, err := o.reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return ArtifactOf(run)
}

// Active returns the number of runs executing in this process.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Shutdown stops accepting runs and waits for running ones. When ctx ends
// first, remaining runs are failed with ErrShutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.stopAll(ErrShutdown)
		<-done
		return ctx.Err()
	}
}

// FailOrphaned fails pending or running runs not executing in this process
// whose last update is older than cutoff. Such runs belong to a process that
// died before finishing them.
func (o *Orchestrator) FailOrphaned(ctx context.Context, cutoff time.Time) (int, error) {
	var candidates []*model.RunState
	for _, status := range []model.RunStatus{model.RunStatusPending, model.RunStatusRunning} {
		runs, err := o.reg.List(ctx, store.RunFilter{Status: status})
		if err != nil {
			return 0, eris.Wrap(err, "pipeline: list unfinished runs")
		}
		candidates = append(candidates, runs...)
	}

	n := 0
	for _, run := range candidates {
		if !run.UpdatedAt.Before(cutoff) || o.isActive(run.ID) {
			continue
		}
		_, err := o.reg.Update(ctx, run.ID, func(r *model.RunState) error {
			if r.Status.Terminal() || !r.UpdatedAt.Before(cutoff) {
				return errTerminal
			}
			r.Status = model.RunStatusFailed
			r.Error = toRunError(r.CurrentStep, ErrRunTimeout)
			r.CurrentStep = ""
			r.UpdatedAt = o.opts.Now()
			return nil
		})
		switch {
		case err == nil:
			n++
			zap.L().Warn("pipeline: failed orphaned run", zap.String("run_id", run.ID))
		case errors.Is(err, errTerminal), errors.Is(err, store.ErrNotFound):
		default:
			return n, eris.Wrapf(err, "pipeline: fail orphaned run %s", run.ID)
		}
	}
	return n, nil
}

func (o *Orchestrator) isStopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}

func (o *Orchestrator) isActive(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[id]
	return ok
}

type stepResult struct {
	out model.Output
	err error
}

func (o *Orchestrator) execute(ctx context.Context, id string, p *Pipeline) {
	ctx, cancel := context.WithTimeoutCause(ctx, o.opts.RunTimeout, ErrRunTimeout)
	defer cancel()

	log := zap.L().With(zap.String("run_id", id), zap.String("variant", p.Name()))
	log.Info("pipeline: run started", zap.Int("steps", len(p.steps)))
	started := time.Now()
	defer o.finish(id, log, started)

	for i, step := range p.steps {
		name := step.Name()
		slog := log.With(zap.String("step", string(name)))

		if ctx.Err() != nil {
			o.fail(ctx, id, name, context.Cause(ctx))
			return
		}

		run, err := o.update(ctx, id, func(r *model.RunState) error {
			r.Status = model.RunStatusRunning
			r.CurrentStep = name
			return nil
		})
		if err != nil {
			if !errors.Is(err, errTerminal) {
				slog.Error("pipeline: mark step running", zap.Error(err))
				o.fail(ctx, id, name, err)
			}
			return
		}

		in, err := gather(run, step)
		if err != nil {
			o.fail(ctx, id, name, err)
			return
		}

		stepStart := time.Now()
		out, err := o.runStep(ctx, step, in)
		elapsed := time.Since(stepStart)
		if err != nil {
			o.opts.Metrics.StepObserved(name, "error", elapsed)
			if ctx.Err() != nil {
				err = context.Cause(ctx)
			} else {
				err = &StepError{Step: name, Err: err}
			}
			slog.Warn("pipeline: step failed",
				zap.Duration("duration", elapsed),
				zap.String("category", string(Categorize(err))),
				zap.Error(err),
			)
			o.fail(ctx, id, name, err)
			return
		}
		o.opts.Metrics.StepObserved(name, "ok", elapsed)

		last := i == len(p.steps)-1
		_, err = o.update(ctx, id, func(r *model.RunState) error {
			if err := r.Results.Set(name, out); err != nil {
				return err
			}
			if !r.Results.Has(name) {
				return eris.Errorf("step %s returned no output", name)
			}
			r.CompletedSteps = append(r.CompletedSteps, name)
			if last {
				r.Status = model.RunStatusCompleted
				r.CurrentStep = ""
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, errTerminal) {
				slog.Info("pipeline: discarding late step result")
				return
			}
			o.fail(ctx, id, name, &StepError{Step: name, Err: err})
			return
		}
		slog.Info("pipeline: step complete", zap.Duration("duration", elapsed))
	}
}

// runStep executes step on its own goroutine so the run can give up on it
// when ctx ends. A result that arrives afterwards is dropped.
func (o *Orchestrator) runStep(ctx context.Context, step Step, in Inputs) (model.Output, error) {
	ch := make(chan stepResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- stepResult{err: eris.Errorf("step %s panicked: %v", step.Name(), r)}
			}
		}()
		out, err := step.Execute(ctx, in)
		ch <- stepResult{out: out, err: err}
	}()

	select {
	case res := <-ch:
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return res.out, res.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// update applies fn to a non-terminal run and stamps UpdatedAt.
func (o *Orchestrator) update(ctx context.Context, id string, fn store.Mutator) (*model.RunState, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.WriteTimeout)
	defer cancel()
	return o.reg.Update(wctx, id, func(r *model.RunState) error {
		if r.Status.Terminal() {
			return errTerminal
		}
		if err := fn(r); err != nil {
			return err
		}
		r.UpdatedAt = o.opts.Now()
		return nil
	})
}

func (o *Orchestrator) fail(ctx context.Context, id string, step model.StepName, cause error) {
	_, err := o.update(ctx, id, func(r *model.RunState) error {
		r.Status = model.RunStatusFailed
		r.Error = toRunError(step, cause)
		r.CurrentStep = ""
		return nil
	})
	if err != nil && !errors.Is(err, errTerminal) {
		zap.L().Error("pipeline: record run failure",
			zap.String("run_id", id),
			zap.String("step", string(step)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) finish(id string, log *zap.Logger, started time.Time) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.WriteTimeout)
	defer cancel()
	run, err := o.reg.Get(ctx, id)
	if err != nil {
		log.Error("pipeline: load finished run", zap.Error(err))
		o.opts.Metrics.RunFinished(model.RunStatusFailed, model.ErrorCategoryInternal)
		return
	}

	var category model.ErrorCategory
	if run.Error != nil {
		category = run.Error.Category
	}
	o.opts.Metrics.RunFinished(run.Status, category)

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("completed_steps", len(run.CompletedSteps)),
		zap.Duration("duration", time.Since(started)),
	}
	if run.Error != nil {
		fields = append(fields,
			zap.String("category", string(run.Error.Category)),
			zap.String("failed_step", string(run.Error.StepName)),
		)
		log.Warn("pipeline: run failed", fields...)
		return
	}
	log.Info("pipeline: run finished", fields...)
}
