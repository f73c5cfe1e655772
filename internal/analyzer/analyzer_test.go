package analyzer

import (
	"testing"
	"time"

	"cadence/internal/session"
	"cadence/internal/timetrack"
)

func TestAnalyzeAssemblesMetrics(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := session.New(start)
	s.CaptureItems = captureItems(start, "fix bug", "call mom", "fix bug again")
	s.Priorities = []session.Priority{{ActionText: "finish report", Rank: session.RankA}}

	entries := []timetrack.TimeEntry{
		entry("ProjectX", start, 60),
		entry("finish report", start.Add(time.Hour), 40),
	}
	now := start.Add(30 * time.Minute)

	report := Analyze(s, entries, now)
	if report.Focus.SwitchCount < 2 {
		t.Errorf("switch count = %d, want >= 2", report.Focus.SwitchCount)
	}

	computed := now.Add(time.Second)
	m := report.Metrics(computed)
	if m.FocusScore < 0 || m.FocusScore > 100 {
		t.Errorf("focus score out of bounds: %v", m.FocusScore)
	}
	if m.AlignmentPercentage != report.Alignment.Percentage {
		t.Errorf("alignment = %v, want %v", m.AlignmentPercentage, report.Alignment.Percentage)
	}
	if m.InsufficientData {
		t.Error("both analyses had data, metrics should not be insufficient")
	}
	if !m.ComputedAt.Equal(computed) {
		t.Errorf("computed at = %v, want %v", m.ComputedAt, computed)
	}
}

func TestMetricsInsufficientOnlyWhenBothStarve(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	empty := session.New(start)
	m := Analyze(empty, nil, start.Add(time.Minute)).Metrics(start)
	if !m.InsufficientData {
		t.Error("no captures, no entries, no priorities: want insufficient")
	}

	withCaptures := session.New(start)
	withCaptures.CaptureItems = captureItems(start, "one idea", "another idea")
	m = Analyze(withCaptures, nil, start.Add(time.Minute)).Metrics(start)
	if m.InsufficientData {
		t.Error("focus analysis had data, metrics should not be insufficient")
	}
}
