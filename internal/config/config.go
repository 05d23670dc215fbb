package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

const environmentProduction = "production"

// Config holds the application configuration.
// Everything comes from the process environment; there are no config files.
type Config struct {
	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`

	// Upstream (OpenRouter)
	OpenRouterAPIKey  string        `env:"OPENROUTER_API_KEY"`
	OpenRouterSite    string        `env:"OPENROUTER_SITE" envDefault:"https://vercel.app"` // sent as HTTP-Referer
	OpenRouterBaseURL string        `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	UpstreamTimeout   time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"25s"`

	// Request handling
	PromptTemplate string `env:"PROMPT_TEMPLATE" envDefault:"guided"` // guided | gentle
	DebugEcho      bool   `env:"DEBUG_ECHO" envDefault:"false"`
	MaxBodyBytes   int64  `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	MaxInputChars  int    `env:"MAX_INPUT_CHARS" envDefault:"10000"`

	// Observability
	SentryDSN         string `env:"SENTRY_DSN"`
	LangfusePublicKey string `env:"LANGFUSE_PUBLIC_KEY"`
	LangfuseSecretKey string `env:"LANGFUSE_SECRET_KEY"`
	LangfuseHost      string `env:"LANGFUSE_HOST" envDefault:"https://cloud.langfuse.com"`
	LangfuseEnabled   bool   `env:"LANGFUSE_ENABLED" envDefault:"false"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
// A missing API key is not an error here: the handler reports it per request.
func (c *Config) Validate() error {
	switch c.PromptTemplate {
	case "guided", "gentle":
	default:
		return fmt.Errorf("invalid PROMPT_TEMPLATE %q (allowed: guided, gentle)", c.PromptTemplate)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	if c.MaxInputChars <= 0 {
		return fmt.Errorf("MAX_INPUT_CHARS must be positive, got %d", c.MaxInputChars)
	}
	return nil
}

// IsProduction returns true when running in the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == environmentProduction
}

// UpstreamConfigured reports whether the upstream credential is present.
func (c *Config) UpstreamConfigured() bool {
	return c.OpenRouterAPIKey != ""
}
