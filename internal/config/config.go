// Package config handles configuration loading and management for autocoder.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/autocoder/internal/llm"
	"github.com/ShayCichocki/autocoder/internal/orchestrator/policy"
)

// ProjectConfigName is the per-project override file, searched upward from
// the working directory.
const ProjectConfigName = ".autocoder.yaml"

// Config holds all configuration for autocoder.
type Config struct {
	Generation GenerationConfig `mapstructure:"generation"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	AWS        AWSConfig        `mapstructure:"aws"`
	Build      BuildConfig      `mapstructure:"build"`
	Tests      TestsConfig      `mapstructure:"tests"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// GenerationConfig selects the model provider and bounds each request.
type GenerationConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	RateLimitRPM int           `mapstructure:"rate_limit_rpm"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// Timeout bounds a single model request.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxResponses is the number of tool-use turns a file writing call may take.
	MaxResponses int `mapstructure:"max_responses"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// AWSConfig routes Anthropic requests through Bedrock.
type AWSConfig struct {
	UseBedrock bool   `mapstructure:"use_bedrock"`
	Region     string `mapstructure:"region"`
	Profile    string `mapstructure:"profile"`
}

// BuildConfig holds the build loop bounds.
type BuildConfig struct {
	MaxIterations int      `mapstructure:"max_iterations"`
	MaxDepth      int      `mapstructure:"max_depth"`
	MaxPlanSteps  int      `mapstructure:"max_plan_steps"`
	FeedbackLimit int      `mapstructure:"feedback_limit"`
	TestsDir      string   `mapstructure:"tests_dir"`
	DefaultCoder  string   `mapstructure:"default_coder"`
	Coders        []string `mapstructure:"coders"`
}

// TestsConfig holds the test runner commands.
type TestsConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Python  string        `mapstructure:"python"`
	Go      string        `mapstructure:"go"`
}

// LoggingConfig controls the build debug log.
type LoggingConfig struct {
	Debug bool `mapstructure:"debug"`
	// File overrides the default <home>/.autocoder/logs/build.log.
	File string `mapstructure:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (AUTOCODER_*, ANTHROPIC_API_KEY, OPENAI_API_KEY)
// 2. Project config (.autocoder.yaml in current directory or parent)
// 3. User config (~/.config/autocoder/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return load(getUserConfigDir(), findProjectConfig(cwd))
}

func load(userConfigDir, projectConfig string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("AUTOCODER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("anthropic.api_key", "AUTOCODER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai.api_key", "AUTOCODER_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("aws.region", "AUTOCODER_AWS_REGION", "AWS_REGION")
	_ = v.BindEnv("aws.profile", "AUTOCODER_AWS_PROFILE", "AWS_PROFILE")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	return cfg, nil
}

// Validate rejects settings a build cannot run with.
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case llm.ProviderAnthropic, llm.ProviderOpenAI, llm.ProviderOllama:
	default:
		return fmt.Errorf("generation.provider: unknown provider %q", c.Generation.Provider)
	}
	if c.Build.DefaultCoder == "" {
		return errors.New("build.default_coder must not be empty")
	}
	if len(c.Build.Coders) > 0 {
		found := false
		for _, name := range c.Build.Coders {
			if name == c.Build.DefaultCoder {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("build.default_coder %q is not listed in build.coders", c.Build.DefaultCoder)
		}
	}
	return c.Policy().Validate()
}

// Policy converts the build settings into an orchestrator policy.
func (c *Config) Policy() *policy.Config {
	p := policy.Default()
	p.Loop.MaxIterations = c.Build.MaxIterations
	p.Loop.FeedbackLimit = c.Build.FeedbackLimit
	p.Decomposition.MaxDepth = c.Build.MaxDepth
	p.Decomposition.MaxSteps = c.Build.MaxPlanSteps
	p.Tests.Dir = c.Build.TestsDir
	p.Tests.Timeout = c.Tests.Timeout
	return p
}

// LLM converts the generation settings into a client configuration. The
// API key is resolved for the selected provider.
func (c *Config) LLM() (llm.Config, error) {
	out := llm.Config{
		Provider:      c.Generation.Provider,
		Model:         c.Generation.Model,
		BaseURL:       c.OpenAI.BaseURL,
		UseAWSBedrock: c.AWS.UseBedrock,
		AWSRegion:     c.AWS.Region,
		AWSProfile:    c.AWS.Profile,
		RateLimitRPM:  c.Generation.RateLimitRPM,
		MaxRetries:    c.Generation.MaxRetries,
		RetryBackoff:  c.Generation.RetryBackoff,
	}
	if c.Generation.Provider == llm.ProviderOllama || (c.Generation.Provider == llm.ProviderAnthropic && c.AWS.UseBedrock) {
		return out, nil
	}
	key, err := GetAPIKey(c)
	if err != nil {
		return out, err
	}
	out.APIKey = key
	return out, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return findProjectConfig(cwd)
}

// Keys returns every known configuration key, sorted.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

// Get returns the effective value of key as a string.
func Get(key string) (string, error) {
	if !isKnownKey(key) {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	all, err := Values()
	if err != nil {
		return "", err
	}
	return all[key], nil
}

// Values returns the effective value of every known key. API keys are
// masked.
func Values() (map[string]string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return values(getUserConfigDir(), findProjectConfig(cwd))
}

func values(userConfigDir, projectConfig string) (map[string]string, error) {
	cfg, err := load(userConfigDir, projectConfig)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	if err := v.MergeConfigMap(toMap(cfg)); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, key := range Keys() {
		out[key] = fmt.Sprint(v.Get(key))
	}
	return out, nil
}

// Set writes key=value into the user config file, creating it if needed.
func Set(key, value string) error {
	return set(getUserConfigDir(), key, value)
}

func set(userConfigDir, key, value string) error {
	if !isKnownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", configPath, err)
		}
	}
	v.Set(key, parseValue(value))

	// Decode into a fresh config so a bad value is caught before writing.
	check := viper.New()
	setDefaults(check)
	if err := check.MergeConfigMap(v.AllSettings()); err != nil {
		return err
	}
	if _, err := unmarshal(check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	return v.WriteConfigAs(configPath)
}

// parseValue decodes value as a YAML scalar so numbers and booleans are
// written with their type.
func parseValue(value string) any {
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		return value
	}
	switch parsed.(type) {
	case map[string]any, []any:
		return value
	}
	return parsed
}

func isKnownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

func toMap(cfg *Config) map[string]any {
	return map[string]any{
		"generation": map[string]any{
			"provider":       cfg.Generation.Provider,
			"model":          cfg.Generation.Model,
			"max_tokens":     cfg.Generation.MaxTokens,
			"temperature":    cfg.Generation.Temperature,
			"rate_limit_rpm": cfg.Generation.RateLimitRPM,
			"max_retries":    cfg.Generation.MaxRetries,
			"retry_backoff":  cfg.Generation.RetryBackoff.String(),
			"timeout":        cfg.Generation.Timeout.String(),
			"max_responses":  cfg.Generation.MaxResponses,
		},
		"anthropic": map[string]any{"api_key": MaskAPIKey(cfg.Anthropic.APIKey)},
		"openai":    map[string]any{"api_key": MaskAPIKey(cfg.OpenAI.APIKey), "base_url": cfg.OpenAI.BaseURL},
		"aws": map[string]any{
			"use_bedrock": cfg.AWS.UseBedrock,
			"region":      cfg.AWS.Region,
			"profile":     cfg.AWS.Profile,
		},
		"build": map[string]any{
			"max_iterations": cfg.Build.MaxIterations,
			"max_depth":      cfg.Build.MaxDepth,
			"max_plan_steps": cfg.Build.MaxPlanSteps,
			"feedback_limit": cfg.Build.FeedbackLimit,
			"tests_dir":      cfg.Build.TestsDir,
			"default_coder":  cfg.Build.DefaultCoder,
			"coders":         strings.Join(cfg.Build.Coders, ","),
		},
		"tests": map[string]any{
			"timeout": cfg.Tests.Timeout.String(),
			"python":  cfg.Tests.Python,
			"go":      cfg.Tests.Go,
		},
		"logging": map[string]any{"debug": cfg.Logging.Debug, "file": cfg.Logging.File},
		"metrics": map[string]any{"addr": cfg.Metrics.Addr},
	}
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("generation.provider", d.Generation.Provider)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.max_tokens", d.Generation.MaxTokens)
	v.SetDefault("generation.temperature", d.Generation.Temperature)
	v.SetDefault("generation.rate_limit_rpm", d.Generation.RateLimitRPM)
	v.SetDefault("generation.max_retries", d.Generation.MaxRetries)
	v.SetDefault("generation.retry_backoff", d.Generation.RetryBackoff.String())
	v.SetDefault("generation.timeout", d.Generation.Timeout.String())
	v.SetDefault("generation.max_responses", d.Generation.MaxResponses)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")

	v.SetDefault("aws.use_bedrock", false)
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")

	v.SetDefault("build.max_iterations", d.Build.MaxIterations)
	v.SetDefault("build.max_depth", d.Build.MaxDepth)
	v.SetDefault("build.max_plan_steps", d.Build.MaxPlanSteps)
	v.SetDefault("build.feedback_limit", d.Build.FeedbackLimit)
	v.SetDefault("build.tests_dir", d.Build.TestsDir)
	v.SetDefault("build.default_coder", d.Build.DefaultCoder)
	v.SetDefault("build.coders", d.Build.Coders)

	v.SetDefault("tests.timeout", d.Tests.Timeout.String())
	v.SetDefault("tests.python", d.Tests.Python)
	v.SetDefault("tests.go", d.Tests.Go)

	v.SetDefault("logging.debug", d.Logging.Debug)
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.addr", "")
}

// getUserConfigDir returns the XDG config directory for autocoder.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "autocoder")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "autocoder")
	}
	return filepath.Join(home, ".config", "autocoder")
}

// findProjectConfig searches for .autocoder.yaml in dir and its parents.
func findProjectConfig(dir string) string {
	for {
		configPath := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Generation: GenerationConfig{
			Provider:     llm.ProviderAnthropic,
			Model:        "claude-sonnet-4-20250514",
			MaxTokens:    8192,
			Temperature:  0,
			RateLimitRPM: 500,
			MaxRetries:   5,
			RetryBackoff: 2 * time.Second,
			Timeout:      5 * time.Minute,
			MaxResponses: 5,
		},
		Build: BuildConfig{
			MaxIterations: 10,
			MaxDepth:      3,
			MaxPlanSteps:  12,
			FeedbackLimit: 20000,
			TestsDir:      "tests",
			DefaultCoder:  "python",
			Coders:        []string{"python"},
		},
		Tests: TestsConfig{
			Timeout: 10 * time.Minute,
			Python:  "python -m pytest -q",
			Go:      "go test",
		},
		Logging: LoggingConfig{
			Debug: true,
		},
	}
}
