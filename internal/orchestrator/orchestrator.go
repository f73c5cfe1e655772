// Package orchestrator drives a session through its phases. It owns the
// main loop: run the current phase's units, surface questions to the
// caller, enforce time budgets, and checkpoint after every meaningful
// mutation. External collaborators (coach, time tracker, inbox, memory,
// alerts) all degrade gracefully; only checkpoint failures abort a
// session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cadence/internal/alert"
	"cadence/internal/checkpoint"
	"cadence/internal/coach"
	"cadence/internal/config"
	"cadence/internal/inbox"
	"cadence/internal/interrupt"
	"cadence/internal/logging"
	"cadence/internal/memory"
	"cadence/internal/session"
	"cadence/internal/timebox"
	"cadence/internal/timetrack"
)

// Deps wires the orchestrator's collaborators. Store is required;
// everything else has a working default.
type Deps struct {
	Store   checkpoint.Store
	Coach   *coach.Coach
	Tracker timetrack.Reader
	Inbox   inbox.Inbox
	Memory  *memory.Writer
	Alerter alert.Alerter
	Budgets config.BudgetsConfig
	Clock   func() time.Time
}

// Orchestrator runs sessions. One instance serves many sessions over its
// lifetime; all per-session state lives in the Session itself.
type Orchestrator struct {
	store   checkpoint.Store
	coach   *coach.Coach
	tracker timetrack.Reader
	inbox   inbox.Inbox
	memory  *memory.Writer
	alerter alert.Alerter
	budgets config.BudgetsConfig
	clock   func() time.Time
}

func New(d Deps) (*Orchestrator, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a checkpoint store")
	}
	if d.Coach == nil {
		d.Coach = coach.NewCoach(nil)
	}
	if d.Inbox == nil {
		d.Inbox = inbox.Nop{}
	}
	if d.Alerter == nil {
		d.Alerter = alert.Nop{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Budgets == (config.BudgetsConfig{}) {
		d.Budgets = config.DefaultBudgets()
	}
	return &Orchestrator{
		store:   d.Store,
		coach:   d.Coach,
		tracker: d.Tracker,
		inbox:   d.Inbox,
		memory:  d.Memory,
		alerter: d.Alerter,
		budgets: d.Budgets,
		clock:   d.Clock,
	}, nil
}

// Step is what one Advance call produced: coaching text to show, and
// either a question to answer or a finished session.
type Step struct {
	Messages  []string
	Question  *session.PendingQuestion
	Phase     session.Phase
	Remaining time.Duration
	Done      bool
}

func (st *Step) say(text string) {
	if text != "" {
		st.Messages = append(st.Messages, text)
	}
}

// Start creates a fresh session, persists it, and advances it to the
// first question.
func (o *Orchestrator) Start(ctx context.Context) (*session.Session, *Step, error) {
	s := session.New(o.clock())
	logging.Session("Starting session %s", s.ID)
	if err := o.persist(s); err != nil {
		return nil, nil, err
	}
	step, err := o.Advance(ctx, s)
	return s, step, err
}

// Resume loads an interrupted session. Finished sessions cannot be
// resumed; that is a protocol violation, not a not-found.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*session.Session, error) {
	snapshot, err := o.store.Load(sessionID)
	if err != nil {
		// A finished session lives in the archive, not the live table.
		// Resuming one is a violation, not a not-found.
		if errors.Is(err, checkpoint.ErrNotFound) {
			if _, aerr := o.store.LoadArchived(sessionID); aerr == nil {
				return nil, &interrupt.ProtocolViolation{Op: "resume", Reason: "session " + sessionID + " already finished"}
			}
		}
		return nil, err
	}
	s, err := session.FromSnapshot(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", sessionID, err)
	}
	if s.Terminal() {
		return nil, &interrupt.ProtocolViolation{Op: "resume", Reason: "session " + sessionID + " already finished"}
	}
	logging.Session("Resumed session %s in phase %s", s.ID, s.CurrentPhase)
	return s, nil
}

// SubmitAnswer records the user's answer to the pending question and
// advances.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, s *session.Session, value string) (*Step, error) {
	if err := interrupt.Resume(s, value, o.clock()); err != nil {
		return nil, err
	}
	if err := o.persist(s); err != nil {
		return nil, err
	}
	return o.Advance(ctx, s)
}

// Abandon terminates the session early, keeping everything captured so
// far.
func (o *Orchestrator) Abandon(ctx context.Context, s *session.Session) error {
	now := o.clock()
	if err := s.Abandon(now); err != nil {
		return err
	}
	if err := o.persist(s); err != nil {
		return err
	}
	o.recordEpisode(memory.Episode{
		SessionID: s.ID,
		Kind:      memory.KindAbandonment,
		Payload: map[string]interface{}{
			"phase":         string(s.CurrentPhase),
			"capture_count": len(s.CaptureItems),
		},
		RecordedAt: now,
	})
	if err := o.store.Archive(s.ID); err != nil {
		logging.SessionWarn("Failed to archive abandoned session %s: %v", s.ID, err)
	}
	logging.Session("Session %s abandoned in phase %s", s.ID, s.CurrentPhase)
	return nil
}

// Advance runs the session until it needs an answer or finishes. It is
// the only place phases transition.
func (o *Orchestrator) Advance(ctx context.Context, s *session.Session) (*Step, error) {
	if s.Terminal() {
		return nil, &interrupt.ProtocolViolation{Op: "advance", Reason: "session " + s.ID + " already finished"}
	}

	step := &Step{}
	for {
		tracker, err := o.phaseTracker(s)
		if err != nil {
			return nil, err
		}

		now := o.clock()
		o.checkTimebox(ctx, s, tracker, step, now)

		if tracker.Expired(now) && s.CurrentPhase != session.PhaseWrapUp {
			logging.Phase("Phase %s expired, forcing transition for %s", s.CurrentPhase, s.ID)
			// The expired phase's open question dies with it; the next
			// phase asks its own.
			s.DropPendingQuestion(now)
			if err := s.AdvancePhase(now); err != nil {
				return nil, err
			}
			if err := o.persist(s); err != nil {
				return nil, err
			}
			continue
		}

		err = o.runPhase(ctx, s, step)
		if errors.Is(err, interrupt.ErrSuspended) {
			if perr := o.persist(s); perr != nil {
				return nil, perr
			}
			step.Question = s.PendingQuestion
			step.Phase = s.CurrentPhase
			step.Remaining = tracker.Remaining(o.clock())
			return step, nil
		}
		if err != nil {
			return nil, err
		}

		// Phase ran to completion.
		if s.CurrentPhase == session.PhaseWrapUp {
			now := o.clock()
			if err := s.Complete(now); err != nil {
				return nil, err
			}
			if err := o.persist(s); err != nil {
				return nil, err
			}
			if err := o.store.Archive(s.ID); err != nil {
				logging.SessionWarn("Failed to archive completed session %s: %v", s.ID, err)
			}
			logging.Session("Session %s completed in %v", s.ID, now.Sub(s.StartedAt).Round(time.Second))
			step.Done = true
			step.Phase = session.PhaseWrapUp
			return step, nil
		}

		now = o.clock()
		logging.Phase("Phase %s complete for %s", s.CurrentPhase, s.ID)
		if err := s.AdvancePhase(now); err != nil {
			return nil, err
		}
		if err := o.persist(s); err != nil {
			return nil, err
		}
	}
}

// phaseTracker builds the time-box tracker for the current phase,
// pre-seeded with the alerts that already fired.
func (o *Orchestrator) phaseTracker(s *session.Session) (*timebox.Tracker, error) {
	budget := time.Duration(o.budgets.Seconds(s.CurrentPhase)) * time.Second
	tracker, err := timebox.NewTracker(budget, s.PhaseStartedAt)
	if err != nil {
		return nil, fmt.Errorf("phase %s: %w", s.CurrentPhase, err)
	}
	for _, fired := range s.FiredAlerts[s.CurrentPhase] {
		tracker.MarkFired(timebox.Threshold(fired))
	}
	return tracker, nil
}

// checkTimebox fires at most one newly-crossed threshold and records it
// on the session so it never repeats.
func (o *Orchestrator) checkTimebox(ctx context.Context, s *session.Session, tracker *timebox.Tracker, step *Step, now time.Time) {
	th := tracker.Check(now)
	if th == timebox.ThresholdNone {
		return
	}
	if s.AlertFired(s.CurrentPhase, string(th)) {
		return
	}
	s.MarkAlertFired(s.CurrentPhase, string(th))
	msg := coach.UrgencyNudge(s.CurrentPhase, string(th))
	o.alerter.Alert(s.CurrentPhase, string(th), msg)
	step.say(msg)
	logging.TimerLog("Threshold %s fired for %s phase %s", th, s.ID, s.CurrentPhase)
}

// persist snapshots the session into the checkpoint store. This is the
// one failure the orchestrator will not absorb.
func (o *Orchestrator) persist(s *session.Session) error {
	snapshot, err := s.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot session %s: %w", s.ID, err)
	}
	if err := o.store.Save(s.ID, snapshot, string(s.CurrentPhase), s.Terminal()); err != nil {
		logging.StoreError("Checkpoint save failed for %s: %v", s.ID, err)
		return fmt.Errorf("failed to checkpoint session %s: %w", s.ID, err)
	}
	return nil
}

func (o *Orchestrator) recordEpisode(ep memory.Episode) {
	if o.memory == nil {
		return
	}
	o.memory.Record(ep)
}
