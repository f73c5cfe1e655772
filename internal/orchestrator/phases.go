package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cadence/internal/analyzer"
	"cadence/internal/interrupt"
	"cadence/internal/logging"
	"cadence/internal/memory"
	"cadence/internal/session"
	"cadence/internal/timetrack"
)

// maxCaptureItems bounds the mind sweep; a runaway capture loop would
// otherwise outlast its own budget many times over.
const maxCaptureItems = 100

// maxReviewProjects bounds the project review walk.
const maxReviewProjects = 10

func (o *Orchestrator) runPhase(ctx context.Context, s *session.Session, step *Step) error {
	p := interrupt.NewPrompter(s, o.clock)
	switch s.CurrentPhase {
	case session.PhaseStartup:
		return o.runStartup(ctx, s, step, p)
	case session.PhaseMindSweepCapture:
		return o.runCapture(ctx, s, step, p)
	case session.PhaseMindSweepProcess:
		return o.runProcess(ctx, s, step, p)
	case session.PhaseProjectReview:
		return o.runReview(ctx, s, step, p)
	case session.PhasePrioritization:
		return o.runPrioritization(ctx, s, step, p)
	case session.PhaseWrapUp:
		return o.runWrapUp(ctx, s, step)
	}
	return fmt.Errorf("unknown phase %s", s.CurrentPhase)
}

// firstReach reports whether the phase has not yet asked any question
// with the given key prefix. Intro text is emitted exactly once per
// phase: on the run that asks the phase's first question.
func firstReach(s *session.Session, prefix string) bool {
	if s.PendingQuestion != nil && strings.HasPrefix(s.PendingQuestion.Key, prefix) {
		return false
	}
	for key := range s.Answers {
		if strings.HasPrefix(key, prefix) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) runStartup(ctx context.Context, s *session.Session, step *Step, p *interrupt.Prompter) error {
	if firstReach(s, "startup/") {
		step.say(o.coach.PhaseIntro(ctx, session.PhaseStartup, s))
	}

	units := []interrupt.Unit{
		{Key: "startup/energy", Run: func(ctx context.Context) error {
			v, err := p.Ask("startup/energy", "How's your energy right now, 1-10?", "integer 1-10")
			if err != nil {
				return err
			}
			if n, perr := strconv.Atoi(strings.TrimSpace(v)); perr == nil && n >= 1 && n <= 10 {
				s.EnergyLevel = n
			} else {
				// Unparseable energy defaults to the middle of the scale.
				s.EnergyLevel = 5
			}
			return nil
		}},
		{Key: "startup/ready", Run: func(ctx context.Context) error {
			// The energy unit has run by now; record it the first time
			// this unit is reached so replays never duplicate.
			if firstReach(s, "startup/ready") {
				o.recordEpisode(memory.Episode{
					SessionID:  s.ID,
					Kind:       memory.KindEnergyReport,
					Payload:    map[string]interface{}{"level": s.EnergyLevel},
					RecordedAt: o.clock(),
				})
			}
			v, err := p.Ask("startup/ready", "Ready to dive in?", "yes/no")
			if err != nil {
				return err
			}
			if isNo(v) {
				step.say("We'll keep it light. The structure does the work, you just answer.")
			}
			return nil
		}},
	}
	return interrupt.RunAll(ctx, units)
}

func (o *Orchestrator) runCapture(ctx context.Context, s *session.Session, step *Step, p *interrupt.Prompter) error {
	if firstReach(s, "capture/") {
		step.say(o.coach.PhaseIntro(ctx, session.PhaseMindSweepCapture, s))
		o.surfaceInbox(ctx, step)
	}

	for n := 0; n < maxCaptureItems; n++ {
		key := fmt.Sprintf("capture/%d", n)
		prompt := "What else is on your mind? Say 'done' when you're empty."
		if n == 0 {
			prompt = "What's on your mind? One item at a time. Say 'done' when you're empty."
		}
		v, err := p.Ask(key, prompt, "text or 'done'")
		if err != nil {
			return err
		}
		text := strings.TrimSpace(v)
		if text == "" || isDone(text) {
			return nil
		}
		// Replay guard: each non-done answer maps to exactly one item.
		if len(s.CaptureItems) == n {
			a, _ := s.AnswerFor(key)
			if err := s.AddCaptureItem(text, a.AnsweredAt); err != nil {
				return err
			}
		}
	}
	step.say("That's a full sweep. Let's process what you have.")
	return nil
}

// surfaceInbox reminds the user of tasks already waiting in their inbox.
// Unreachable inbox means no reminders, never a stalled session.
func (o *Orchestrator) surfaceInbox(ctx context.Context, step *Step) {
	items, err := o.inbox.ListItems(ctx)
	if err != nil {
		logging.TrackingWarn("Inbox unavailable during capture: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your inbox already holds %d items:", len(items))
	for _, it := range items {
		b.WriteString("\n  - ")
		b.WriteString(it.Text)
	}
	step.say(b.String())
}

func (o *Orchestrator) runProcess(ctx context.Context, s *session.Session, step *Step, p *interrupt.Prompter) error {
	if len(s.CaptureItems) == 0 {
		step.say("Nothing captured, so nothing to process. Moving on.")
		s.ActionQueue = nil
		return nil
	}
	if firstReach(s, "process/") {
		step.say(o.coach.PhaseIntro(ctx, session.PhaseMindSweepProcess, s))
	}

	// Rebuilt from answers on every run, so replays are exact. Each
	// answer lands in the queue as it arrives: a forced expiry mid-phase
	// keeps everything processed so far.
	s.ActionQueue = nil
	for i, item := range s.CaptureItems {
		key := fmt.Sprintf("process/%d", i)
		if _, answered := s.AnswerFor(key); !answered {
			step.say(o.coach.Clarify(ctx, item))
		}
		v, err := p.Ask(key, fmt.Sprintf("Next action for %q? (or 'skip')", item.Text), "text or 'skip'")
		if err != nil {
			return err
		}
		action := strings.TrimSpace(v)
		if action == "" || isSkip(action) {
			continue
		}
		s.ActionQueue = append(s.ActionQueue, action)
	}
	return nil
}

func (o *Orchestrator) runReview(ctx context.Context, s *session.Session, step *Step, p *interrupt.Prompter) error {
	if firstReach(s, "review/") {
		step.say(o.coach.PhaseIntro(ctx, session.PhaseProjectReview, s))
		if len(s.ReviewProjects) == 0 {
			s.ReviewProjects = o.projectsFromTracker(ctx, step)
		}
	}
	if len(s.ReviewProjects) == 0 {
		step.say("No recent projects to review. Moving on.")
		return nil
	}

	for i, project := range s.ReviewProjects {
		key := fmt.Sprintf("review/%d", i)
		if _, answered := s.AnswerFor(key); !answered {
			step.say(o.coach.Review(ctx, project))
		}
		v, err := p.Ask(key, fmt.Sprintf("Status and next action for %q? (status; next action)", project), "status; next action")
		if err != nil {
			return err
		}
		status, next := splitStatusAction(v)
		a, _ := s.AnswerFor(key)
		if err := s.SetProjectUpdate(project, session.ProjectUpdate{Status: status, NextAction: next}, a.AnsweredAt); err != nil {
			return err
		}
	}
	return nil
}

// projectsFromTracker derives the review list from last week's tracked
// time. The list freezes on the session so replays walk the same
// projects even if the tracker's answer changes.
func (o *Orchestrator) projectsFromTracker(ctx context.Context, step *Step) []string {
	if o.tracker == nil {
		return nil
	}
	now := o.clock()
	entries, err := o.tracker.Fetch(ctx, timetrack.DateRange{From: now.AddDate(0, 0, -7), To: now})
	if err != nil {
		logging.TrackingWarn("Time tracking unavailable for project review: %v", err)
		step.say("Couldn't reach your time tracker, so we'll skip the project walk.")
		return nil
	}

	seen := make(map[string]bool)
	var projects []string
	for _, e := range entries {
		name := strings.TrimSpace(e.Project)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		projects = append(projects, name)
	}
	sort.Strings(projects)
	if len(projects) > maxReviewProjects {
		projects = projects[:maxReviewProjects]
	}
	return projects
}

func (o *Orchestrator) runPrioritization(ctx context.Context, s *session.Session, step *Step, p *interrupt.Prompter) error {
	if len(s.ActionQueue) == 0 {
		step.say("No actions surfaced this session, so nothing to rank.")
		return nil
	}
	if firstReach(s, "rank/") {
		step.say(o.coach.PhaseIntro(ctx, session.PhasePrioritization, s))
	}

	// Rebuild the priority list from answers so replays never duplicate.
	// Each rank is materialized as it arrives: a forced expiry mid-phase
	// keeps every decision already made.
	s.Priorities = nil
	for i, action := range s.ActionQueue {
		key := fmt.Sprintf("rank/%d", i)
		v, err := p.Ask(key, fmt.Sprintf("Rank %q: A (must), B (should), C (could), or skip?", action), "A|B|C|skip")
		if err != nil {
			return err
		}
		rank, ok := parseRank(v)
		if !ok {
			continue
		}
		a, _ := s.AnswerFor(key)
		if err := s.AddPriority(session.Priority{ActionText: action, Rank: rank}, a.AnsweredAt); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runWrapUp(ctx context.Context, s *session.Session, step *Step) error {
	step.say(o.coach.PhaseIntro(ctx, session.PhaseWrapUp, s))
	now := o.clock()

	var entries []timetrack.TimeEntry
	if o.tracker != nil {
		var err error
		entries, err = o.tracker.Fetch(ctx, timetrack.DateRange{From: s.StartedAt, To: now})
		if err != nil {
			logging.TrackingWarn("Time tracking unavailable for wrap-up metrics: %v", err)
			step.say("Couldn't reach your time tracker; focus metrics come from captures only.")
			entries = nil
		}
	}

	report := analyzer.Analyze(s, entries, now).Metrics(now)
	s.Metrics = report

	step.say(o.coach.Summary(ctx, s))
	if report != nil && !report.InsufficientData {
		step.say(fmt.Sprintf("Focus %0.f/100 · %0.f%% of tracked time on priorities · %d hyperfocus, %d scatter",
			report.FocusScore, report.AlignmentPercentage, report.HyperfocusPeriods, report.ScatterPeriods))
	}

	o.completeInboxItems(ctx, s)
	o.recordWrapUpEpisodes(s, now)
	return nil
}

// completeInboxItems marks inbox tasks done when the user captured and
// kept them this session. Best effort: a failed mark leaves the task
// pending for next time.
func (o *Orchestrator) completeInboxItems(ctx context.Context, s *session.Session) {
	items, err := o.inbox.ListItems(ctx)
	if err != nil || len(items) == 0 {
		return
	}
	captured := make(map[string]bool, len(s.CaptureItems))
	for _, it := range s.CaptureItems {
		captured[strings.ToLower(strings.TrimSpace(it.Text))] = true
	}
	for _, it := range items {
		if !captured[strings.ToLower(strings.TrimSpace(it.Text))] {
			continue
		}
		if err := o.inbox.MarkDone(ctx, it.ID); err != nil {
			logging.TrackingWarn("Failed to mark inbox item %s done: %v", it.ID, err)
		}
	}
}

func (o *Orchestrator) recordWrapUpEpisodes(s *session.Session, now time.Time) {
	summary := map[string]interface{}{
		"phase_reached":  string(s.CurrentPhase),
		"capture_count":  len(s.CaptureItems),
		"project_count":  len(s.ProjectUpdates),
		"priority_count": len(s.Priorities),
		"energy_level":   s.EnergyLevel,
	}
	if s.Metrics != nil {
		summary["focus_score"] = s.Metrics.FocusScore
		summary["alignment_percentage"] = s.Metrics.AlignmentPercentage
	}
	o.recordEpisode(memory.Episode{
		SessionID:  s.ID,
		Kind:       memory.KindSessionSummary,
		Payload:    summary,
		RecordedAt: now,
	})

	if len(s.CaptureItems) > 0 {
		raw := make([]string, len(s.CaptureItems))
		for i, it := range s.CaptureItems {
			raw[i] = it.Text
		}
		o.recordEpisode(memory.Episode{
			SessionID: s.ID,
			Kind:      memory.KindCaptureBatch,
			Payload: map[string]interface{}{
				"item_count": len(s.CaptureItems),
				"raw_items":  raw,
			},
			RecordedAt: now,
		})
	}

	for _, p := range s.Priorities {
		o.recordEpisode(memory.Episode{
			SessionID: s.ID,
			Kind:      memory.KindPriorityDecision,
			Payload: map[string]interface{}{
				"action": p.ActionText,
				"rank":   string(p.Rank),
			},
			RecordedAt: now,
		})
	}
}

func isDone(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "done", "nothing", "empty", "that's it", "thats it":
		return true
	}
	return false
}

func isSkip(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "skip", "drop", "n/a", "na":
		return true
	}
	return false
}

func isNo(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "no", "n", "nope", "not really":
		return true
	}
	return false
}

func parseRank(v string) (session.Rank, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "A":
		return session.RankA, true
	case "B":
		return session.RankB, true
	case "C":
		return session.RankC, true
	}
	if isSkip(v) {
		return "", false
	}
	// Anything else counts as a could-do rather than losing the action.
	return session.RankC, true
}

// splitStatusAction parses "status; next action" review answers. A lone
// fragment becomes the status with no next action.
func splitStatusAction(v string) (status, next string) {
	for _, sep := range []string{";", "|", " - "} {
		if idx := strings.Index(v, sep); idx >= 0 {
			return strings.TrimSpace(v[:idx]), strings.TrimSpace(v[idx+len(sep):])
		}
	}
	return strings.TrimSpace(v), ""
}
