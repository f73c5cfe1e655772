package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cadence configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Session storage
	Storage StorageConfig `yaml:"storage"`

	// Phase time budgets
	Budgets BudgetsConfig `yaml:"budgets"`

	// Integration services
	Integrations IntegrationsConfig `yaml:"integrations"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures checkpoint and memory persistence.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`

	// How long an interrupted session can be resumed.
	ResumeWindow string `yaml:"resume_window"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "cadence",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:   "anthropic",
			Model:      "claude-sonnet-4-20250514",
			BaseURL:    "https://api.anthropic.com",
			Timeout:    "60s",
			MaxRetries: 3,
		},

		Storage: StorageConfig{
			DatabasePath: "data/cadence.db",
			ResumeWindow: "24h",
		},

		Budgets: DefaultBudgets(),

		Integrations: IntegrationsConfig{
			TimeTracking: TimeTrackingIntegration{
				Enabled: true,
				BaseURL: "http://localhost:8080",
				Timeout: "15s",
			},
			Inbox: InboxIntegration{
				Enabled: true,
				BaseURL: "http://localhost:8081",
				Timeout: "15s",
			},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "cadence.log",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; a present but invalid file is a hard error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Budgets.Validate(); err != nil {
		return nil, fmt.Errorf("invalid budgets: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}

	if url := os.Getenv("CADENCE_TIMETRACK_URL"); url != "" {
		c.Integrations.TimeTracking.BaseURL = url
	}
	if token := os.Getenv("CADENCE_TIMETRACK_TOKEN"); token != "" {
		c.Integrations.TimeTracking.Token = token
	}
	if url := os.Getenv("CADENCE_INBOX_URL"); url != "" {
		c.Integrations.Inbox.BaseURL = url
	}
	if token := os.Getenv("CADENCE_INBOX_TOKEN"); token != "" {
		c.Integrations.Inbox.Token = token
	}

	if path := os.Getenv("CADENCE_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
}

// GetResumeWindow returns the session resume window as a duration.
func (c *Config) GetResumeWindow() time.Duration {
	d, err := time.ParseDuration(c.Storage.ResumeWindow)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "openai"}

// Validate validates the configuration. The LLM key is checked lazily by
// the coach, not here: a session can run in offline mode without one.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	return c.Budgets.Validate()
}
