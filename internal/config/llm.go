package config

import "time"

// LLMConfig configures the coaching responder.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // anthropic, openai
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// GetTimeout returns the request timeout as a duration.
func (l LLMConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetMaxRetries clamps the retry budget to a sane range.
func (l LLMConfig) GetMaxRetries() int {
	if l.MaxRetries < 0 {
		return 0
	}
	if l.MaxRetries > 5 {
		return 5
	}
	return l.MaxRetries
}
