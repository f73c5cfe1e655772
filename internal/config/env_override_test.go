package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("ANTHROPIC_API_KEY sets key and provider", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")
		t.Setenv("OPENAI_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "ant-key", cfg.LLM.APIKey)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
	})

	t.Run("Precedence: OPENAI overrides ANTHROPIC", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})

	t.Run("Empty env leaves config untouched", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "")

		cfg := &Config{LLM: LLMConfig{Provider: "anthropic", APIKey: "file-key"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "file-key", cfg.LLM.APIKey)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
	})
}

func TestEnvOverrides_Integrations(t *testing.T) {
	t.Setenv("CADENCE_TIMETRACK_URL", "http://track:9090")
	t.Setenv("CADENCE_TIMETRACK_TOKEN", "track-token")
	t.Setenv("CADENCE_INBOX_URL", "http://inbox:9091")
	t.Setenv("CADENCE_DB", "/tmp/override.db")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "http://track:9090", cfg.Integrations.TimeTracking.BaseURL)
	assert.Equal(t, "track-token", cfg.Integrations.TimeTracking.Token)
	assert.Equal(t, "http://inbox:9091", cfg.Integrations.Inbox.BaseURL)
	assert.Equal(t, "/tmp/override.db", cfg.Storage.DatabasePath)
}
