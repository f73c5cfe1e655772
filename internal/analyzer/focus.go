package analyzer

import (
	"math"
	"time"

	"cadence/internal/logging"
	"cadence/internal/session"
	"cadence/internal/timetrack"
)

const (
	// entrySwitchGap is the maximum gap between two time entries for a
	// project change to count as a context switch rather than a break.
	entrySwitchGap = 5 * time.Minute

	// hyperfocusMin is the minimum single-project run length that counts
	// as a hyperfocus period.
	hyperfocusMin = 30 * time.Minute

	// scatterWindow / scatterMinSwitches define a scatter period: a
	// sliding window of this length containing at least this many
	// switches.
	scatterWindow      = 15 * time.Minute
	scatterMinSwitches = 3

	// Focus score policy coefficients. Tunable; the invariant is only
	// that the penalty grows monotonically with both inputs.
	perSwitchHourPenalty = 2.0
	perScatterPenalty    = 10.0
)

// FocusResult summarizes context-switching behavior for one session.
type FocusResult struct {
	SwitchCount       int
	SwitchesPerHour   float64
	ScatterPeriods    int
	HyperfocusPeriods int
	FocusScore        float64
	Insufficient      bool
}

// AnalyzeFocus computes switch counts and the focus score from captured
// items and (optionally) external time entries. Pure computation; empty
// inputs yield an insufficient-data result rather than an error.
func AnalyzeFocus(items []session.CaptureItem, entries []timetrack.TimeEntry, sessionDuration time.Duration) FocusResult {
	if len(items) == 0 && len(entries) == 0 {
		return FocusResult{Insufficient: true}
	}

	captureSwitches := CaptureSwitches(items)
	switchTimes := EntrySwitchTimes(entries)
	totalSwitches := captureSwitches + len(switchTimes)

	duration := sessionDuration
	if duration <= 0 {
		duration = observedSpan(items, entries)
	}

	var perHour float64
	if duration > 0 {
		perHour = float64(totalSwitches) / duration.Hours()
	}

	scatter := ScatterPeriods(switchTimes)
	hyper := HyperfocusPeriods(entries)
	score := FocusScore(perHour, scatter)

	logging.AnalyzerDebug("Focus analysis: switches=%d per_hour=%.2f scatter=%d hyperfocus=%d score=%.1f",
		totalSwitches, perHour, scatter, hyper, score)

	return FocusResult{
		SwitchCount:       totalSwitches,
		SwitchesPerHour:   perHour,
		ScatterPeriods:    scatter,
		HyperfocusPeriods: hyper,
		FocusScore:        score,
	}
}

// CaptureSwitches counts topic changes between consecutive captured items.
// Two items are a switch when their meaningful token sets share nothing.
// Capture is rapid-fire, so no time gate applies to in-session items.
func CaptureSwitches(items []session.CaptureItem) int {
	switches := 0
	for i := 1; i < len(items); i++ {
		prev := meaningfulTokens(items[i-1].Text)
		cur := meaningfulTokens(items[i].Text)
		if !shareToken(prev, cur) {
			switches++
		}
	}
	return switches
}

// EntrySwitchTimes returns the timestamps of context switches in external
// time entries: any project change between two entries whose gap is under
// five minutes. Entries are assumed sorted by start; malformed entries
// contribute nothing.
func EntrySwitchTimes(entries []timetrack.TimeEntry) []time.Time {
	var times []time.Time
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if prev.Project == cur.Project {
			continue
		}
		gap := cur.Start.Sub(prev.End)
		if gap < 0 {
			gap = 0
		}
		if gap < entrySwitchGap {
			times = append(times, cur.Start)
		}
	}
	return times
}

// HyperfocusPeriods counts runs of consecutive entries on a single project
// whose combined tracked time reaches thirty minutes.
func HyperfocusPeriods(entries []timetrack.TimeEntry) int {
	periods := 0
	var runProject string
	var runDuration time.Duration

	flush := func() {
		if runProject != "" && runDuration >= hyperfocusMin {
			periods++
		}
		runDuration = 0
	}

	for _, e := range entries {
		if e.Project != runProject {
			flush()
			runProject = e.Project
		}
		runDuration += e.Duration()
	}
	flush()
	return periods
}

// ScatterPeriods counts non-overlapping fifteen-minute windows containing
// at least three switches. switchTimes must be ascending.
func ScatterPeriods(switchTimes []time.Time) int {
	periods := 0
	i := 0
	for i < len(switchTimes) {
		j := i
		for j < len(switchTimes) && switchTimes[j].Sub(switchTimes[i]) < scatterWindow {
			j++
		}
		if j-i >= scatterMinSwitches {
			periods++
			i = j // windows do not overlap
		} else {
			i++
		}
	}
	return periods
}

// FocusScore maps switching density to a 0-100 score. The penalty is
// monotonically increasing in both inputs, so more switching or more
// scatter never raises the score.
func FocusScore(switchesPerHour float64, scatterPeriods int) float64 {
	if math.IsNaN(switchesPerHour) || math.IsInf(switchesPerHour, 0) || switchesPerHour < 0 {
		switchesPerHour = 0
	}
	penalty := perSwitchHourPenalty*switchesPerHour + perScatterPenalty*float64(scatterPeriods)
	return clamp(100-penalty, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// observedSpan derives a session duration from the data itself when the
// caller cannot supply one.
func observedSpan(items []session.CaptureItem, entries []timetrack.TimeEntry) time.Duration {
	var first, last time.Time
	observe := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}
	for _, it := range items {
		observe(it.CapturedAt)
	}
	for _, e := range entries {
		observe(e.Start)
		observe(e.End)
	}
	if first.IsZero() || !last.After(first) {
		return 0
	}
	return last.Sub(first)
}
