package coach

import (
	"context"
	"errors"
	"strconv"

	"cadence/internal/logging"
	"cadence/internal/session"
)

// ErrOffline marks the scripted responder's deliberate refusal to
// generate text. The Coach sees it and serves canned lines without
// logging a degradation warning.
var ErrOffline = errors.New("scripted responder, no live completions")

// Scripted is the offline Responder. It never produces text itself; the
// Coach's fallback lines carry the whole session.
type Scripted struct{}

func NewScripted() Scripted { return Scripted{} }

func (Scripted) Complete(ctx context.Context, prompt string) (string, error) {
	return "", ErrOffline
}

func (Scripted) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", ErrOffline
}

// scriptedIntros open each phase when no live responder is available.
var scriptedIntros = map[session.Phase]string{
	session.PhaseStartup:          "Let's start your weekly review. How's your energy right now, 1-10?",
	session.PhaseMindSweepCapture: "Mind sweep time. Tell me everything on your mind, one item at a time. Nothing is too small.",
	session.PhaseMindSweepProcess: "Now let's process what you captured. For each item I'll ask for the single next action.",
	session.PhaseProjectReview:    "On to your projects. For each one, give me a status and the next action.",
	session.PhasePrioritization:   "Let's rank the actions from this session: A must happen, B should, C could.",
	session.PhaseWrapUp:           "Wrapping up. Here's what you captured and decided this session.",
}

// Coach wraps a Responder with per-phase fallbacks. Every method returns
// usable text: live completions when the responder cooperates, scripted
// lines when it does not. Coaching failures never propagate.
type Coach struct {
	r Responder
}

func NewCoach(r Responder) *Coach {
	if r == nil {
		r = NewScripted()
	}
	return &Coach{r: r}
}

// PhaseIntro produces the message that opens a phase.
func (c *Coach) PhaseIntro(ctx context.Context, phase session.Phase, s *session.Session) string {
	text, err := c.r.CompleteWithSystem(ctx, defaultSystemPrompt, IntroPrompt(phase, s))
	if err != nil || text == "" {
		c.noteDegraded("phase intro", err)
		return scriptedIntros[phase]
	}
	return text
}

// Clarify produces a next-action suggestion for a captured item.
func (c *Coach) Clarify(ctx context.Context, item session.CaptureItem) string {
	text, err := c.r.CompleteWithSystem(ctx, defaultSystemPrompt, ClarifyPrompt(item))
	if err != nil || text == "" {
		c.noteDegraded("clarify", err)
		return "What's the single next action for: " + item.Text + "?"
	}
	return text
}

// Review produces the status question for one project.
func (c *Coach) Review(ctx context.Context, project string) string {
	text, err := c.r.CompleteWithSystem(ctx, defaultSystemPrompt, ReviewPrompt(project))
	if err != nil || text == "" {
		c.noteDegraded("review", err)
		return "Status and next action for " + project + "?"
	}
	return text
}

// Summary produces the wrap-up narrative.
func (c *Coach) Summary(ctx context.Context, s *session.Session) string {
	text, err := c.r.CompleteWithSystem(ctx, defaultSystemPrompt, SummaryPrompt(s))
	if err == nil && text != "" {
		return text
	}
	c.noteDegraded("summary", err)
	return scriptedSummary(s)
}

func (c *Coach) noteDegraded(op string, err error) {
	if err == nil || errors.Is(err, ErrOffline) {
		return
	}
	logging.APIError("Coaching degraded for %s, using scripted text: %v", op, err)
}

func scriptedSummary(s *session.Session) string {
	text := "Session done."
	if n := len(s.CaptureItems); n > 0 {
		text += " You captured " + plural(n, "item") + "."
	}
	if n := len(s.ProjectUpdates); n > 0 {
		text += " You reviewed " + plural(n, "project") + "."
	}
	if n := len(s.Priorities); n > 0 {
		text += " You ranked " + plural(n, "action") + "."
	}
	return text
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
