package analyzer

import (
	"sort"
	"strings"
	"time"

	"cadence/internal/logging"
	"cadence/internal/session"
	"cadence/internal/timetrack"
)

// defaultTopBuckets is how many matched/unmatched buckets the report
// surfaces for the user.
const defaultTopBuckets = 3

// Bucket aggregates tracked time for one project.
type Bucket struct {
	Project  string
	Duration time.Duration
	Matched  bool
}

// AlignmentResult reports how much tracked time landed on stated
// priorities.
type AlignmentResult struct {
	Percentage   float64
	MatchedTime  time.Duration
	TotalTime    time.Duration
	TopMatched   []Bucket
	TopUnmatched []Bucket
	Insufficient bool
}

// AnalyzeAlignment cross-references time entries against the session's
// priorities. Total function: empty priorities, empty entries, and
// zero-duration entries all produce a well-defined result, with 0% when no
// time was tracked at all.
func AnalyzeAlignment(priorities []session.Priority, entries []timetrack.TimeEntry, topN int) AlignmentResult {
	if topN <= 0 {
		topN = defaultTopBuckets
	}
	if len(entries) == 0 || len(priorities) == 0 {
		return AlignmentResult{Insufficient: true}
	}

	buckets := make(map[string]*Bucket)
	var matched, total time.Duration

	for _, e := range entries {
		d := e.Duration()
		total += d

		b, ok := buckets[e.Project]
		if !ok {
			b = &Bucket{Project: e.Project, Matched: matchesAnyPriority(e.Project, priorities)}
			buckets[e.Project] = b
		}
		b.Duration += d
		if b.Matched {
			matched += d
		}
	}

	var pct float64
	if total > 0 {
		pct = float64(matched) / float64(total) * 100
	}

	var topMatched, topUnmatched []Bucket
	for _, b := range buckets {
		if b.Matched {
			topMatched = append(topMatched, *b)
		} else {
			topUnmatched = append(topUnmatched, *b)
		}
	}
	sortBucketsByDuration(topMatched)
	sortBucketsByDuration(topUnmatched)
	if len(topMatched) > topN {
		topMatched = topMatched[:topN]
	}
	if len(topUnmatched) > topN {
		topUnmatched = topUnmatched[:topN]
	}

	logging.AnalyzerDebug("Alignment analysis: matched=%v total=%v pct=%.1f", matched, total, pct)

	return AlignmentResult{
		Percentage:   pct,
		MatchedTime:  matched,
		TotalTime:    total,
		TopMatched:   topMatched,
		TopUnmatched: topUnmatched,
	}
}

// matchesAnyPriority fuzzy-matches a project name against priority action
// texts: case-insensitive substring in either direction, or any shared
// meaningful token. Pure and total; malformed input simply fails to match.
func matchesAnyPriority(project string, priorities []session.Priority) bool {
	proj := strings.TrimSpace(strings.ToLower(project))
	if proj == "" {
		return false
	}
	projTokens := meaningfulTokens(proj)

	for _, p := range priorities {
		action := strings.TrimSpace(strings.ToLower(p.ActionText))
		if action == "" {
			continue
		}
		if strings.Contains(action, proj) || strings.Contains(proj, action) {
			return true
		}
		if shareToken(projTokens, meaningfulTokens(action)) {
			return true
		}
	}
	return false
}

func sortBucketsByDuration(buckets []Bucket) {
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Duration != buckets[j].Duration {
			return buckets[i].Duration > buckets[j].Duration
		}
		return buckets[i].Project < buckets[j].Project
	})
}
