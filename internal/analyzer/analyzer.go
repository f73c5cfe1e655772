// Package analyzer derives behavioral signals from what the user said
// during a session and how they actually spent their time. Everything here
// is pure computation over two input streams: captured text items and
// external time-tracking entries. Both algorithms degrade to an
// insufficient-data result on empty input; neither is required for a
// session to complete.
package analyzer

import (
	"time"

	"cadence/internal/session"
	"cadence/internal/timetrack"
)

// Report bundles both analyses for wrap-up reporting.
type Report struct {
	Focus     FocusResult
	Alignment AlignmentResult
}

// Analyze runs both algorithms and assembles session metrics.
func Analyze(s *session.Session, entries []timetrack.TimeEntry, now time.Time) Report {
	duration := now.Sub(s.StartedAt)
	return Report{
		Focus:     AnalyzeFocus(s.CaptureItems, entries, duration),
		Alignment: AnalyzeAlignment(s.Priorities, entries, defaultTopBuckets),
	}
}

// Metrics converts a report into the session's persisted metrics shape.
func (r Report) Metrics(computedAt time.Time) *session.Metrics {
	return &session.Metrics{
		FocusScore:          r.Focus.FocusScore,
		SwitchesPerHour:     r.Focus.SwitchesPerHour,
		AlignmentPercentage: r.Alignment.Percentage,
		ScatterPeriods:      r.Focus.ScatterPeriods,
		HyperfocusPeriods:   r.Focus.HyperfocusPeriods,
		InsufficientData:    r.Focus.Insufficient && r.Alignment.Insufficient,
		ComputedAt:          computedAt,
	}
}
