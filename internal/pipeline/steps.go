package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/adapter"
	"github.com/sells-group/reel-cli/internal/metrics"
	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/resilience"
)

// CallPolicy bounds every adapter call a step makes: per-attempt timeout,
// retries for transient failures and a circuit breaker per step.
type CallPolicy struct {
	Retry       resilience.RetryConfig
	CallTimeout time.Duration
	Breakers    *resilience.ServiceBreakers
	Metrics     *metrics.Collector
}

// invoke runs fn under p. A per-attempt deadline that fires while the parent
// context is still live is reported as a Timeout adapter error so it can be
// retried.
func invoke[T any](ctx context.Context, p CallPolicy, step model.StepName, fn func(ctx context.Context) (T, error)) (T, error) {
	service := string(step)
	retry := p.Retry
	logRetry := resilience.RetryLogger(service, "execute")
	retry.OnRetry = func(attempt int, err error) {
		logRetry(attempt, err)
		p.Metrics.AdapterRetried(service)
	}

	attempt := func(ctx context.Context) (T, error) {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		}
		defer cancel()

		val, err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			if _, ok := resilience.KindOf(err); !ok {
				err = resilience.NewAdapterError(service, resilience.KindTimeout, err)
			}
		}
		return val, err
	}

	if p.Breakers == nil {
		return resilience.DoVal(ctx, retry, attempt)
	}
	cb := p.Breakers.Get(service)
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		val, err := resilience.Guard(ctx, cb, attempt)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			p.Metrics.BreakerRejected(service)
		}
		return val, err
	})
}

// RestaurantStep resolves the source URL into a RestaurantProfile.
type RestaurantStep struct {
	Resolver adapter.RestaurantResolver
	Policy   CallPolicy
}

func (RestaurantStep) Name() model.StepName { return model.StepRestaurantExtraction }

func (RestaurantStep) Requires() []model.StepName { return nil }

func (s RestaurantStep) Execute(ctx context.Context, in Inputs) (model.Output, error) {
	profile, err := invoke(ctx, s.Policy, s.Name(), func(ctx context.Context) (*model.RestaurantProfile, error) {
		return s.Resolver.Resolve(ctx, in.Request.SourceURL)
	})
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, resilience.NewAdapterError(string(s.Name()), resilience.KindInvalid, errors.New("empty restaurant profile"))
	}
	return profile, nil
}

// MenuStep extracts the menu from the restaurant's website.
type MenuStep struct {
	Extractor adapter.MenuExtractor
	Policy    CallPolicy
}

func (MenuStep) Name() model.StepName { return model.StepMenuExtraction }

func (MenuStep) Requires() []model.StepName {
	return []model.StepName{model.StepRestaurantExtraction}
}

func (s MenuStep) Execute(ctx context.Context, in Inputs) (model.Output, error) {
	profile := in.Results.Restaurant
	if profile == nil {
		return nil, &PreconditionError{Step: s.Name(), Reason: "restaurant profile is missing"}
	}
	website := strings.TrimSpace(profile.Website)
	if website == "" {
		return nil, &PreconditionError{Step: s.Name(), Reason: "restaurant has no website to read a menu from"}
	}

	menu, err := invoke(ctx, s.Policy, s.Name(), func(ctx context.Context) (*model.MenuModel, error) {
		return s.Extractor.Extract(ctx, website)
	})
	if err != nil {
		return nil, err
	}
	if menu == nil {
		return nil, resilience.NewAdapterError(string(s.Name()), resilience.KindInvalid, errors.New("empty menu result"))
	}
	if menu.ItemCount() == 0 {
		zap.L().Info("menu extraction found no items", zap.String("website", website))
	}
	return menu, nil
}

// ScriptStep writes the narrated script. It refuses to run without at least
// one menu item to ground the copy on.
type ScriptStep struct {
	Writer adapter.ScriptWriter
	Policy CallPolicy
}

func (ScriptStep) Name() model.StepName { return model.StepScriptGeneration }

func (ScriptStep) Requires() []model.StepName {
	return []model.StepName{model.StepRestaurantExtraction, model.StepMenuExtraction}
}

func (s ScriptStep) Execute(ctx context.Context, in Inputs) (model.Output, error) {
	profile, menu := in.Results.Restaurant, in.Results.Menu
	if profile == nil {
		return nil, &PreconditionError{Step: s.Name(), Reason: "restaurant profile is missing"}
	}
	if menu.ItemCount() == 0 {
		return nil, &PreconditionError{Step: s.Name(), Reason: "menu has no items to feature"}
	}

	script, err := invoke(ctx, s.Policy, s.Name(), func(ctx context.Context) (*model.ScriptModel, error) {
		return s.Writer.Generate(ctx, profile, menu, in.Request.Style, in.Request.DurationSeconds)
	})
	if err != nil {
		return nil, err
	}
	if script == nil || len(script.Scenes) == 0 {
		return nil, resilience.NewAdapterError(string(s.Name()), resilience.KindInvalid, errors.New("script has no scenes"))
	}
	return script, nil
}

// ProductionStep plans footage, voiceover and technical output from the script.
type ProductionStep struct {
	Planner adapter.ProductionPlanner
	Policy  CallPolicy
}

func (ProductionStep) Name() model.StepName { return model.StepProductionPlanning }

func (ProductionStep) Requires() []model.StepName {
	return []model.StepName{model.StepScriptGeneration}
}

func (s ProductionStep) Execute(ctx context.Context, in Inputs) (model.Output, error) {
	script := in.Results.Script
	if script == nil || len(script.Scenes) == 0 {
		return nil, &PreconditionError{Step: s.Name(), Reason: "script has no scenes"}
	}

	plan, err := invoke(ctx, s.Policy, s.Name(), func(ctx context.Context) (*model.ProductionPlan, error) {
		return s.Planner.Plan(ctx, script)
	})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, resilience.NewAdapterError(string(s.Name()), resilience.KindInvalid, errors.New("empty production plan"))
	}
	return plan, nil
}
