package config

import (
	"fmt"

	"cadence/internal/session"
)

// BudgetsConfig overrides per-phase time budgets, in seconds. Zero means
// use the built-in default for that phase. Overrides are validated at
// load time so a bad budget fails the run before a session starts.
type BudgetsConfig struct {
	Startup          int `yaml:"startup"`
	MindSweepCapture int `yaml:"mind_sweep_capture"`
	MindSweepProcess int `yaml:"mind_sweep_process"`
	ProjectReview    int `yaml:"project_review"`
	Prioritization   int `yaml:"prioritization"`
	WrapUp           int `yaml:"wrap_up"`
}

// DefaultBudgets mirrors the built-in phase budgets.
func DefaultBudgets() BudgetsConfig {
	return BudgetsConfig{
		Startup:          session.DefaultBudgetSeconds[session.PhaseStartup],
		MindSweepCapture: session.DefaultBudgetSeconds[session.PhaseMindSweepCapture],
		MindSweepProcess: session.DefaultBudgetSeconds[session.PhaseMindSweepProcess],
		ProjectReview:    session.DefaultBudgetSeconds[session.PhaseProjectReview],
		Prioritization:   session.DefaultBudgetSeconds[session.PhasePrioritization],
		WrapUp:           session.DefaultBudgetSeconds[session.PhaseWrapUp],
	}
}

// Validate rejects negative budgets and phase overrides that are absurdly
// small to run.
func (b BudgetsConfig) Validate() error {
	for phase, secs := range b.perPhase() {
		if secs < 0 {
			return fmt.Errorf("phase %s: budget %ds is negative", phase, secs)
		}
		if secs > 0 && secs < 10 {
			return fmt.Errorf("phase %s: budget %ds is too small (minimum 10s)", phase, secs)
		}
	}
	return nil
}

// Seconds returns the effective budget for a phase: the override when
// set, the built-in default otherwise.
func (b BudgetsConfig) Seconds(phase session.Phase) int {
	if secs := b.perPhase()[phase]; secs > 0 {
		return secs
	}
	return session.DefaultBudgetSeconds[phase]
}

// TotalSeconds sums the effective budgets across all phases.
func (b BudgetsConfig) TotalSeconds() int {
	total := 0
	for _, phase := range session.Phases() {
		total += b.Seconds(phase)
	}
	return total
}

func (b BudgetsConfig) perPhase() map[session.Phase]int {
	return map[session.Phase]int{
		session.PhaseStartup:          b.Startup,
		session.PhaseMindSweepCapture: b.MindSweepCapture,
		session.PhaseMindSweepProcess: b.MindSweepProcess,
		session.PhaseProjectReview:    b.ProjectReview,
		session.PhasePrioritization:   b.Prioritization,
		session.PhaseWrapUp:           b.WrapUp,
	}
}
