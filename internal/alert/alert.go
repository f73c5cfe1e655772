// Package alert delivers time-box notifications to the user. Alerts are
// best-effort: a failed delivery is logged and forgotten, never retried,
// and never blocks a phase transition.
package alert

import (
	"fmt"
	"io"

	"cadence/internal/logging"
	"cadence/internal/session"
)

// Alerter emits one time-box alert.
type Alerter interface {
	Alert(phase session.Phase, threshold, message string)
}

// Console writes alerts to a terminal, with a bell on the urgent ones.
type Console struct {
	Out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{Out: out}
}

func (c *Console) Alert(phase session.Phase, threshold, message string) {
	bell := ""
	if threshold == "ten" || threshold == "expired" {
		bell = "\a"
	}
	if _, err := fmt.Fprintf(c.Out, "%s⏰ %s\n", bell, message); err != nil {
		logging.Alert("Console alert delivery failed for %s/%s: %v", phase, threshold, err)
		return
	}
	logging.Alert("Alert delivered: phase=%s threshold=%s", phase, threshold)
}

// Nop drops every alert. Used in tests and headless runs.
type Nop struct{}

func (Nop) Alert(phase session.Phase, threshold, message string) {}

// Func adapts a function to the Alerter interface.
type Func func(phase session.Phase, threshold, message string)

func (f Func) Alert(phase session.Phase, threshold, message string) { f(phase, threshold, message) }
