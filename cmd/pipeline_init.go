package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/adapter"
	"github.com/sells-group/reel-cli/internal/metrics"
	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/pipeline"
	"github.com/sells-group/reel-cli/internal/resilience"
	"github.com/sells-group/reel-cli/internal/scrape"
	"github.com/sells-group/reel-cli/internal/store"
	anthropicpkg "github.com/sells-group/reel-cli/pkg/anthropic"
	"github.com/sells-group/reel-cli/pkg/firecrawl"
	"github.com/sells-group/reel-cli/pkg/gemini"
	"github.com/sells-group/reel-cli/pkg/google"
	"github.com/sells-group/reel-cli/pkg/jina"
	"github.com/sells-group/reel-cli/pkg/pexels"
)

const metricsNamespace = "reel"

// pipelineEnv holds the registry, orchestrator and validated variants
// needed by the run and serve commands.
type pipelineEnv struct {
	Registry     store.Registry
	Orchestrator *pipeline.Orchestrator
	Pipelines    map[string]*pipeline.Pipeline
	Metrics      *metrics.Collector
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Registry != nil {
		_ = pe.Registry.Close()
	}
}

// initStore opens the configured run registry.
func initStore(ctx context.Context) (store.Registry, error) {
	reg, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open run registry")
	}
	return reg, nil
}

// initPipeline validates config for mode, opens the registry, builds every
// client and adapter, and returns the environment. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(metricsNamespace)
	steps, err := buildStepSet(ctx, callPolicy(collector))
	if err != nil {
		return nil, err
	}
	pipelines, err := steps.BuildAll()
	if err != nil {
		return nil, err
	}

	reg, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	orch := pipeline.NewOrchestrator(reg, pipeline.Options{
		RunTimeout: time.Duration(cfg.Pipeline.RunTimeoutSecs) * time.Second,
		Policy:     requestPolicy(),
		Metrics:    collector,
	})

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("script_provider", cfg.Script.Provider),
		zap.String("menu_strategy", cfg.Menu.Strategy),
		zap.Bool("pexels", cfg.Pexels.Key != ""),
	)

	return &pipelineEnv{
		Registry:     reg,
		Orchestrator: orch,
		Pipelines:    pipelines,
		Metrics:      collector,
	}, nil
}

func requestPolicy() model.RequestPolicy {
	return model.RequestPolicy{
		MapHosts:    cfg.Pipeline.MapHosts,
		MinDuration: cfg.Pipeline.MinDuration,
		MaxDuration: cfg.Pipeline.MaxDuration,
	}
}

func callPolicy(collector *metrics.Collector) pipeline.CallPolicy {
	p := cfg.Pipeline
	return pipeline.CallPolicy{
		Retry:       resilience.FromRetryConfig(p.RetryAttempts, p.RetryInitialMs, p.RetryMaxMs),
		CallTimeout: time.Duration(p.CallTimeoutSecs) * time.Second,
		Breakers:    resilience.NewServiceBreakers(resilience.FromCircuitConfig(p.BreakerThreshold, p.BreakerResetSecs)),
		Metrics:     collector,
	}
}

// buildStepSet wires the pkg clients into adapters and the adapters into
// pipeline steps sharing one call policy.
func buildStepSet(ctx context.Context, policy pipeline.CallPolicy) (pipeline.StepSet, error) {
	limits := adapter.NewLimiters(cfg.Pipeline.RateLimitPerSec)

	places := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
	resolver := adapter.NewPlacesResolver(places,
		adapter.WithMapHosts(cfg.Pipeline.MapHosts),
		adapter.WithResolverLimits(limits),
	)

	fc := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithRemoveSelector(scrape.PageChromeSelector),
	)
	chain := scrape.NewChain(nil, scrape.NewJinaReader(jinaClient), scrape.NewFirecrawlReader(fc))
	menus := adapter.NewMenuService(fc, chain, adapter.MenuStrategy(cfg.Menu.Strategy), limits)

	llm, err := buildLLM(ctx)
	if err != nil {
		return pipeline.StepSet{}, err
	}
	guides := adapter.DefaultStyleGuides()
	if cfg.Script.StyleFile != "" {
		guides, err = adapter.LoadStyleGuides(cfg.Script.StyleFile)
		if err != nil {
			return pipeline.StepSet{}, eris.Wrap(err, "load style guides")
		}
	}
	writer := adapter.NewScriptService(llm, guides, cfg.Voice.WordsPerSecond, limits)

	var px pexels.Client
	if cfg.Pexels.Key != "" {
		px = pexels.NewClient(cfg.Pexels.Key, pexels.WithBaseURL(cfg.Pexels.BaseURL))
	} else {
		zap.L().Debug("REEL_PEXELS_KEY not set, production plans will carry no candidate clips")
	}
	planner := adapter.NewPlanner(px, adapter.PlannerConfig{
		VoiceID:        cfg.Voice.VoiceID,
		WordsPerSecond: cfg.Voice.WordsPerSecond,
		PerQuery:       cfg.Pexels.PerQuery,
		Technical:      model.DefaultTechnicalSpec(),
	}, limits)

	return pipeline.StepSet{
		Restaurant: pipeline.RestaurantStep{Resolver: resolver, Policy: policy},
		Menu:       pipeline.MenuStep{Extractor: menus, Policy: policy},
		Script:     pipeline.ScriptStep{Writer: writer, Policy: policy},
		Production: pipeline.ProductionStep{Planner: planner, Policy: policy},
	}, nil
}

func buildLLM(ctx context.Context) (adapter.LLM, error) {
	switch cfg.Script.Provider {
	case "gemini":
		gc, err := gemini.NewClient(ctx, cfg.Gemini.Key, cfg.Gemini.Model)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini client")
		}
		return adapter.NewGeminiLLM(gc), nil
	case "", "anthropic":
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		return adapter.NewAnthropicLLM(client, cfg.Anthropic.Model, int64(cfg.Anthropic.MaxTokens)), nil
	default:
		return nil, eris.Errorf("unsupported script provider %q", cfg.Script.Provider)
	}
}
