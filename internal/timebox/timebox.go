// Package timebox enforces per-phase time budgets. It is a pure function
// of time: given a budget and a start timestamp it reports remaining time
// and threshold crossings. Alert delivery belongs to the caller.
package timebox

import (
	"fmt"
	"time"
)

// Threshold identifies a budget fraction crossing.
type Threshold string

const (
	ThresholdNone    Threshold = "none"
	ThresholdFifty   Threshold = "fifty"   // 50% of budget remaining
	ThresholdTwenty  Threshold = "twenty"  // 20% remaining
	ThresholdTen     Threshold = "ten"     // 10% remaining
	ThresholdExpired Threshold = "expired" // budget exhausted
)

// thresholdFractions in descending order; a crossing fires when the
// remaining fraction drops to or below the bound.
var thresholdFractions = []struct {
	bound float64
	t     Threshold
}{
	{0.0, ThresholdExpired},
	{0.10, ThresholdTen},
	{0.20, ThresholdTwenty},
	{0.50, ThresholdFifty},
}

// Remaining returns whole seconds left of a budget started at startedAt,
// observed at now. It floors at exactly zero, never returning a negative.
func Remaining(budget time.Duration, startedAt, now time.Time) time.Duration {
	elapsed := now.Sub(startedAt)
	if elapsed >= budget {
		return 0
	}
	return budget - elapsed
}

// Tracker watches one phase's budget and reports each threshold crossing
// at most once. Fired state can be pre-seeded from a restored session so
// alerts never repeat after a resume or restart.
type Tracker struct {
	budget    time.Duration
	startedAt time.Time
	fired     map[Threshold]bool
}

// NewTracker creates a tracker for one phase. A zero or negative budget is
// a configuration error and is rejected immediately rather than surfacing
// mid-phase.
func NewTracker(budget time.Duration, startedAt time.Time) (*Tracker, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("timebox: budget must be positive, got %v", budget)
	}
	return &Tracker{
		budget:    budget,
		startedAt: startedAt,
		fired:     make(map[Threshold]bool),
	}, nil
}

// MarkFired pre-seeds a threshold as already fired (restored state).
func (t *Tracker) MarkFired(th Threshold) {
	if th != ThresholdNone {
		t.fired[th] = true
	}
}

// Fired reports whether a threshold has already fired.
func (t *Tracker) Fired(th Threshold) bool {
	return t.fired[th]
}

// Remaining returns the time left on this tracker's budget at now.
func (t *Tracker) Remaining(now time.Time) time.Duration {
	return Remaining(t.budget, t.startedAt, now)
}

// Expired reports whether the budget is exhausted at now.
func (t *Tracker) Expired(now time.Time) bool {
	return t.Remaining(now) == 0
}

// Check returns the most urgent threshold newly crossed at now, marking it
// (and every milder threshold it implies) as fired. Each threshold fires
// at most once per tracker. Returns ThresholdNone when nothing new fired.
func (t *Tracker) Check(now time.Time) Threshold {
	fraction := float64(t.Remaining(now)) / float64(t.budget)

	for _, tf := range thresholdFractions {
		if fraction > tf.bound {
			continue
		}
		if t.fired[tf.t] {
			return ThresholdNone
		}
		// Crossing a tighter bound implies the milder ones; swallow them
		// so a phase that jumps straight past 50% does not fire a stale
		// "half remaining" alert afterwards.
		for _, milder := range thresholdFractions {
			if milder.bound >= tf.bound {
				t.fired[milder.t] = true
			}
		}
		return tf.t
	}
	return ThresholdNone
}
