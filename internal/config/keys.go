package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ShayCichocki/autocoder/internal/llm"
)

// ErrNoAPIKey is returned when no API key is configured for the selected provider.
var ErrNoAPIKey = errors.New("no API key configured")

// envKey returns the environment variable holding the provider's key.
func envKey(provider string) string {
	if provider == llm.ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

func configuredKey(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	key := cfg.Anthropic.APIKey
	if cfg.Generation.Provider == llm.ProviderOpenAI {
		key = cfg.OpenAI.APIKey
	}
	key = os.ExpandEnv(key)
	if strings.HasPrefix(key, "${") {
		return ""
	}
	return key
}

func provider(cfg *Config) string {
	if cfg == nil || cfg.Generation.Provider == "" {
		return llm.ProviderAnthropic
	}
	return cfg.Generation.Provider
}

// GetAPIKey returns the API key for the configured provider.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config) (string, error) {
	p := provider(cfg)
	if key := os.Getenv(envKey(p)); key != "" {
		return key, nil
	}
	if key := configuredKey(cfg); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w for provider %s (set %s)", ErrNoAPIKey, p, envKey(p))
}

// ValidateAPIKey performs basic format validation on a provider key.
// It does not verify the key with the provider.
func ValidateAPIKey(provider, key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	prefix := "sk-ant-"
	if provider == llm.ProviderOpenAI {
		prefix = "sk-"
	}
	if !strings.HasPrefix(key, prefix) {
		return fmt.Errorf("invalid API key format: expected %q prefix", prefix)
	}
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	if os.Getenv(envKey(provider(cfg))) != "" {
		return KeySourceEnv
	}
	if configuredKey(cfg) != "" {
		return KeySourceConfig
	}
	return KeySourceNone
}
