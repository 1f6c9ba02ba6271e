package llm

import (
	"fmt"
	"time"
)

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Config selects and configures a provider and its wrappers.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string

	RateLimitRPM int
	MaxRetries   int
	RetryBackoff time.Duration
	// RequestTimeout bounds each attempt. Zero leaves requests unbounded.
	RequestTimeout time.Duration

	Tracker  *TokenTracker
	Observer Observer
}

// New builds a client for cfg.Provider wrapped with per-attempt timeouts,
// rate limiting, retries, token tracking and observation. Each retry attempt passes through the
// rate limiter.
func New(cfg Config) (Client, error) {
	var (
		base Client
		err  error
	)
	switch cfg.Provider {
	case ProviderAnthropic, "":
		base, err = NewAnthropicClient(AnthropicConfig{
			Model:         cfg.Model,
			APIKey:        cfg.APIKey,
			UseAWSBedrock: cfg.UseAWSBedrock,
			AWSRegion:     cfg.AWSRegion,
			AWSProfile:    cfg.AWSProfile,
		})
	case ProviderOpenAI:
		base, err = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderOllama:
		base, err = NewOllamaClient(cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderAnthropic
	}

	c := WithObserver(WithTimeout(base, cfg.RequestTimeout), provider, cfg.Observer)
	if cfg.Tracker != nil {
		c = WithTracker(c, cfg.Tracker)
	}
	c = WithRateLimit(c, cfg.RateLimitRPM)
	c = WithRetry(c, RetryConfig{MaxRetries: cfg.MaxRetries, InitialInterval: cfg.RetryBackoff})
	return c, nil
}
