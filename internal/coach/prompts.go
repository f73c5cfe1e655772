package coach

import (
	"fmt"
	"strings"

	"cadence/internal/session"
)

const defaultSystemPrompt = `You are a weekly review coach for people with ADHD.
You keep sessions short, concrete, and moving. One question at a time.
Never lecture. Acknowledge what the user says in a sentence, then move on.
Time pressure is a feature: when told time is short, compress, do not apologize.`

// phaseIntroPrompts seed the coaching message that opens each phase.
var phaseIntroPrompts = map[session.Phase]string{
	session.PhaseStartup:          "Open a weekly review session. Ask how the user's energy is right now on a 1-10 scale, in one short sentence.",
	session.PhaseMindSweepCapture: "Start the mind sweep. Tell the user to dump everything on their mind, one item at a time, and that nothing is too small. Two sentences max.",
	session.PhaseMindSweepProcess: "Start processing the captured items. Explain that for each item you'll ask for the single next action. One sentence.",
	session.PhaseProjectReview:    "Start the project review. Explain that you'll walk through active projects and ask for a status and next action on each. One sentence.",
	session.PhasePrioritization:   "Start prioritization. Ask the user to rank the actions that surfaced this session as A (must), B (should), or C (could). One sentence.",
	session.PhaseWrapUp:           "Start the wrap-up. Tell the user you'll summarize what they captured and decided. One sentence.",
}

// IntroPrompt builds the user prompt that opens a phase.
func IntroPrompt(phase session.Phase, s *session.Session) string {
	var b strings.Builder
	b.WriteString(phaseIntroPrompts[phase])
	if v, ok := s.AnswerFor("startup/energy"); ok {
		fmt.Fprintf(&b, "\nThe user reported energy %s/10 at the start; adjust your tone to match.", v.Value)
	}
	if n := len(s.CaptureItems); n > 0 && phase != session.PhaseStartup {
		fmt.Fprintf(&b, "\nThe user has captured %d items so far.", n)
	}
	return b.String()
}

// ClarifyPrompt asks for a next-action suggestion for one captured item.
func ClarifyPrompt(item session.CaptureItem) string {
	return fmt.Sprintf(
		"The user captured: %q.\nSuggest the single concrete next action in one short sentence, phrased as a verb-first task. No preamble.",
		item.Text)
}

// ReviewPrompt frames one project for status review.
func ReviewPrompt(project string) string {
	return fmt.Sprintf(
		"Reviewing project %q. Ask the user for its current status and the next action, in one question.",
		project)
}

// SummaryPrompt builds the wrap-up summary request.
func SummaryPrompt(s *session.Session) string {
	var b strings.Builder
	b.WriteString("Summarize this review session for the user in four sentences or fewer.\n")
	fmt.Fprintf(&b, "Captured items: %d.\n", len(s.CaptureItems))
	fmt.Fprintf(&b, "Projects reviewed: %d.\n", len(s.ProjectUpdates))
	if len(s.Priorities) > 0 {
		b.WriteString("Priorities:\n")
		for _, p := range s.Priorities {
			fmt.Fprintf(&b, "- [%s] %s\n", p.Rank, p.ActionText)
		}
	}
	if s.Metrics != nil && !s.Metrics.InsufficientData {
		fmt.Fprintf(&b, "Focus score: %.0f/100, alignment with priorities: %.0f%%.\n",
			s.Metrics.FocusScore, s.Metrics.AlignmentPercentage)
		b.WriteString("Mention one of these numbers if it is notable, otherwise skip them.")
	}
	return b.String()
}

// UrgencyNudge phrases a time-box alert for the user.
func UrgencyNudge(phase session.Phase, threshold string) string {
	switch threshold {
	case "fifty":
		return fmt.Sprintf("Halfway through %s.", phaseLabel(phase))
	case "twenty":
		return fmt.Sprintf("80%% of %s used. Let's compress.", phaseLabel(phase))
	case "ten":
		return fmt.Sprintf("Almost out of time for %s. Last items only.", phaseLabel(phase))
	case "expired":
		return fmt.Sprintf("Time's up for %s. Moving on.", phaseLabel(phase))
	}
	return ""
}

func phaseLabel(phase session.Phase) string {
	switch phase {
	case session.PhaseStartup:
		return "startup"
	case session.PhaseMindSweepCapture:
		return "the mind sweep"
	case session.PhaseMindSweepProcess:
		return "processing"
	case session.PhaseProjectReview:
		return "project review"
	case session.PhasePrioritization:
		return "prioritization"
	case session.PhaseWrapUp:
		return "wrap-up"
	}
	return string(phase)
}
