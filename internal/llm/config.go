package llm

import (
	"fmt"
	"time"
)

// Provider names a generation backend.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGemini     Provider = "gemini"
)

// Config contains configuration for a generation backend.
type Config struct {
	// Provider selects the backend
	// Default: openrouter
	Provider Provider

	// APIKey is the provider API key
	APIKey string

	// BaseURL is the API base URL (required for OpenRouter, optional override for Gemini)
	// Default: https://openrouter.ai/api/v1
	BaseURL string

	// DefaultModel is the model to use when not specified
	// Example: anthropic/claude-3.5-sonnet
	DefaultModel string

	// Timeout is the HTTP request timeout
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of attempts per generation when the
	// output fails to parse or validate
	// Default: 3
	MaxRetries int

	// RequestsPerMinute caps calls across every session sharing the backend
	// Default: 120
	RequestsPerMinute int

	// MaxTokens caps completion length where the provider requires it
	// Default: 2048
	MaxTokens int
}

// Validate checks that required config fields are set.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("APIKey is required")
	}

	switch c.Provider {
	case ProviderOpenRouter, "":
		if c.BaseURL == "" {
			return fmt.Errorf("BaseURL is required")
		}
	case ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("unknown provider: %s", c.Provider)
	}

	if c.DefaultModel == "" {
		return fmt.Errorf("DefaultModel is required")
	}

	return nil
}

// SetDefaults fills in default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenRouter
	}

	if c.BaseURL == "" && c.Provider == ProviderOpenRouter {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}

	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel(c.Provider)
	}

	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}

	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 120
	}

	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(p Provider) string {
	switch p {
	case ProviderAnthropic:
		return "claude-sonnet-4-5"
	case ProviderGemini:
		return "gemini-2.5-flash"
	default:
		return "anthropic/claude-3.5-sonnet"
	}
}
