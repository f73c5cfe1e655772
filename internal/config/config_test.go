package config

import (
	"os"
	"path/filepath"
	"testing"

	"cadence/internal/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "cadence" {
		t.Errorf("expected Name=cadence, got %s", cfg.Name)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected Provider=anthropic, got %s", cfg.LLM.Provider)
	}
	if got := cfg.Budgets.TotalSeconds(); got != session.TotalBudgetSeconds {
		t.Errorf("expected default budgets to total %d, got %d", session.TotalBudgetSeconds, got)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	// Ensure no env vars interfere
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.Budgets.ProjectReview = 540

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.LLM.APIKey != "sk-test" {
		t.Errorf("expected APIKey=sk-test, got %s", loaded.LLM.APIKey)
	}
	if got := loaded.Budgets.Seconds(session.PhaseProjectReview); got != 540 {
		t.Errorf("expected project_review budget 540, got %d", got)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "cadence" {
		t.Errorf("expected defaults, got Name=%s", cfg.Name)
	}
}

func TestLoad_RejectsBadBudget(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	bad := []byte("budgets:\n  startup: -5\n")
	if err := os.WriteFile(path, bad, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected load error for negative phase budget")
	}
}

func TestBudgets_Validate(t *testing.T) {
	b := DefaultBudgets()
	if err := b.Validate(); err != nil {
		t.Errorf("default budgets should validate: %v", err)
	}

	b.WrapUp = 5
	if err := b.Validate(); err == nil {
		t.Error("expected error for 5s budget")
	}

	b.WrapUp = 0
	if err := b.Validate(); err != nil {
		t.Errorf("zero means default, should validate: %v", err)
	}
	if got := b.Seconds(session.PhaseWrapUp); got != session.DefaultBudgetSeconds[session.PhaseWrapUp] {
		t.Errorf("zero override: Seconds=%d, want default", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg.LLM.Provider = "mystery"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown provider")
	}
}
