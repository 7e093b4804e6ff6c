package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Menu      MenuConfig      `yaml:"menu" mapstructure:"menu"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Script    ScriptConfig    `yaml:"script" mapstructure:"script"`
	Pexels    PexelsConfig    `yaml:"pexels" mapstructure:"pexels"`
	Voice     VoiceConfig     `yaml:"voice" mapstructure:"voice"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run registry backend.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	TTLHours      int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MenuConfig selects how menus are extracted: "auto", "api" or "scrape".
type MenuConfig struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ScriptConfig selects the script generation provider.
type ScriptConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	StyleFile string `yaml:"style_file" mapstructure:"style_file"`
}

// PexelsConfig holds Pexels stock footage settings.
type PexelsConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PerQuery int    `yaml:"per_query" mapstructure:"per_query"`
}

// VoiceConfig configures the voiceover spec.
type VoiceConfig struct {
	VoiceID        string  `yaml:"voice_id" mapstructure:"voice_id"`
	WordsPerSecond float64 `yaml:"words_per_second" mapstructure:"words_per_second"`
}

// PipelineConfig configures run execution.
type PipelineConfig struct {
	RunTimeoutSecs   int      `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	CallTimeoutSecs  int      `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	RetryAttempts    int      `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryInitialMs   int      `yaml:"retry_initial_ms" mapstructure:"retry_initial_ms"`
	RetryMaxMs       int      `yaml:"retry_max_ms" mapstructure:"retry_max_ms"`
	BreakerThreshold int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	RateLimitPerSec  float64  `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	MapHosts         []string `yaml:"map_hosts" mapstructure:"map_hosts"`
	MinDuration      int      `yaml:"min_duration" mapstructure:"min_duration"`
	MaxDuration      int      `yaml:"max_duration" mapstructure:"max_duration"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envOnlyKeys are settings with no default that may still come from the
// environment or .env.
var envOnlyKeys = []string{
	"store.redis_password",
	"store.redis_db",
	"google.key",
	"firecrawl.key",
	"jina.key",
	"anthropic.key",
	"gemini.key",
	"script.style_file",
	"pexels.key",
	"pipeline.map_hosts",
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "reel.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.ttl_hours", 24)
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("menu.strategy", "auto")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("script.provider", "anthropic")
	v.SetDefault("pexels.base_url", "https://api.pexels.com")
	v.SetDefault("pexels.per_query", 5)
	v.SetDefault("voice.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("voice.words_per_second", 2.5)
	v.SetDefault("pipeline.run_timeout_secs", 300)
	v.SetDefault("pipeline.call_timeout_secs", 60)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_initial_ms", 500)
	v.SetDefault("pipeline.retry_max_ms", 10000)
	v.SetDefault("pipeline.breaker_threshold", 5)
	v.SetDefault("pipeline.breaker_reset_secs", 30)
	v.SetDefault("pipeline.rate_limit_per_sec", 5.0)
	v.SetDefault("pipeline.min_duration", 15)
	v.SetDefault("pipeline.max_duration", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings needed by mode ("serve", "run", "sweep")
// are present and consistent. All problems are reported together.
func (c *Config) Validate(mode string) error {
	var problems []string
	req := func(val, key string) {
		if strings.TrimSpace(val) == "" {
			problems = append(problems, key+" is required")
		}
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		req(c.Store.DatabaseURL, "store.database_url")
	case "redis":
		req(c.Store.RedisAddr, "store.redis_addr")
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "serve", "run":
		req(c.Google.Key, "google.key")
		req(c.Firecrawl.Key, "firecrawl.key")
		switch c.Script.Provider {
		case "anthropic":
			req(c.Anthropic.Key, "anthropic.key")
		case "gemini":
			req(c.Gemini.Key, "gemini.key")
		default:
			problems = append(problems, fmt.Sprintf("script.provider %q is not supported", c.Script.Provider))
		}
		switch c.Menu.Strategy {
		case "", "auto", "api", "scrape":
		default:
			problems = append(problems, fmt.Sprintf("menu.strategy %q is not supported", c.Menu.Strategy))
		}
		problems = append(problems, c.pipelineProblems()...)
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "sweep":
		if c.Store.TTLHours <= 0 {
			problems = append(problems, "store.ttl_hours must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) pipelineProblems() []string {
	var problems []string
	p := c.Pipeline
	if p.RunTimeoutSecs <= 0 {
		problems = append(problems, "pipeline.run_timeout_secs must be > 0")
	}
	if p.CallTimeoutSecs <= 0 || p.CallTimeoutSecs >= p.RunTimeoutSecs {
		problems = append(problems, "pipeline.call_timeout_secs must be > 0 and less than run_timeout_secs")
	}
	if p.RetryAttempts < 1 || p.RetryAttempts > 3 {
		problems = append(problems, "pipeline.retry_attempts must be between 1 and 3")
	}
	if p.MinDuration <= 0 || p.MaxDuration < p.MinDuration {
		problems = append(problems, "pipeline.min_duration and max_duration must form a positive range")
	}
	if c.Voice.WordsPerSecond <= 0 {
		problems = append(problems, "voice.words_per_second must be > 0")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
