package core

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/firebase/genkit/go/genkit"

	"rehearse/internal/llm"
)

// Config holds the application configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"` // debug, info, warn, error
	Debug    string `env:"DEBUG"`

	Provider          string `env:"REHEARSE_PROVIDER" envDefault:"openrouter"`
	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	AnthropicAPIKey   string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey      string `env:"GEMINI_API_KEY"`
	DefaultModel      string `env:"DEFAULT_MODEL"`

	LLMTimeout        time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	LLMMaxRetries     int           `env:"LLM_MAX_RETRIES" envDefault:"3"`
	RequestsPerMinute int           `env:"LLM_REQUESTS_PER_MINUTE" envDefault:"120"`

	DataDir    string `env:"REHEARSE_DATA_DIR" envDefault:".rehearse"`
	FixtureDir string `env:"REHEARSE_FIXTURE_DIR"` // when set, every generation is recorded here
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// DEBUG flag overrides log level
	if cfg.Debug == "1" {
		cfg.LogLevel = "debug"
	}

	// API keys are checked when a backend is built, so commands that never
	// call a model (show, list) work without them.
	return cfg, nil
}

// LLMConfig returns the backend configuration for the selected provider.
func (c *Config) LLMConfig() *llm.Config {
	cfg := &llm.Config{
		Provider:          llm.Provider(c.Provider),
		DefaultModel:      c.DefaultModel,
		Timeout:           c.LLMTimeout,
		MaxRetries:        c.LLMMaxRetries,
		RequestsPerMinute: c.RequestsPerMinute,
	}

	switch cfg.Provider {
	case llm.ProviderAnthropic:
		cfg.APIKey = c.AnthropicAPIKey
	case llm.ProviderGemini:
		cfg.APIKey = c.GeminiAPIKey
	default:
		cfg.APIKey = c.OpenRouterAPIKey
		cfg.BaseURL = c.OpenRouterBaseURL
	}

	cfg.SetDefaults()
	return cfg
}

// NewGenerator builds the generation backend for the selected provider,
// wrapped in the shared rate limiter. When g is non-nil the backend is also
// registered as a genkit model and calls go through it. When FixtureDir is
// set every successful generation is recorded as a fixture.
func (c *Config) NewGenerator(ctx context.Context, g *genkit.Genkit) (llm.Generator, error) {
	cfg := c.LLMConfig()
	if err := cfg.Validate(); err != nil {
		return nil, &ValidationError{Field: "provider " + string(cfg.Provider), Message: err.Error(), Err: err}
	}

	var (
		backend llm.Generator
		err     error
	)
	switch cfg.Provider {
	case llm.ProviderAnthropic:
		backend, err = llm.NewAnthropicFromConfig(cfg)
	case llm.ProviderGemini:
		backend, err = llm.NewGeminiFromConfig(ctx, cfg)
	default:
		backend, err = llm.NewClient(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", cfg.Provider, err)
	}

	gen := llm.Generator(llm.NewRateLimited(backend, cfg.RequestsPerMinute))

	if g != nil {
		name := fmt.Sprintf("rehearse/%s", cfg.Provider)
		gen = llm.NewGenkitGenerator(g, name, fmt.Sprintf("%s (%s)", cfg.Provider, cfg.DefaultModel), gen)
	}

	if c.FixtureDir != "" {
		gen = llm.NewRecorder(gen, c.FixtureDir, cfg.DefaultModel)
	}

	return gen, nil
}
