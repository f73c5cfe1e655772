package alert

import (
	"strings"
	"testing"

	"cadence/internal/session"
)

func TestConsoleAlert(t *testing.T) {
	var buf strings.Builder
	c := NewConsole(&buf)

	c.Alert(session.PhaseProjectReview, "fifty", "Halfway through project review.")
	if !strings.Contains(buf.String(), "Halfway through project review.") {
		t.Errorf("output = %q", buf.String())
	}
	if strings.Contains(buf.String(), "\a") {
		t.Error("fifty threshold should not ring the bell")
	}

	buf.Reset()
	c.Alert(session.PhaseProjectReview, "expired", "Time's up.")
	if !strings.Contains(buf.String(), "\a") {
		t.Error("expired threshold should ring the bell")
	}
}

func TestFuncAlerter(t *testing.T) {
	var gotThreshold string
	a := Func(func(phase session.Phase, threshold, message string) {
		gotThreshold = threshold
	})
	a.Alert(session.PhaseStartup, "ten", "hurry")
	if gotThreshold != "ten" {
		t.Errorf("threshold = %q", gotThreshold)
	}
}
