// Package session defines the session data model for cadence: the phase
// ordering, the durable snapshot shape, and the mutation rules the
// orchestrator relies on (append-only collections that freeze when their
// owning phase ends, at most one pending question at a time).
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CaptureItem is one thing the user got out of their head during the
// mind-sweep capture phase.
type CaptureItem struct {
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
}

// ProjectUpdate records the outcome of reviewing one project.
type ProjectUpdate struct {
	NextAction string `json:"next_action"`
	Status     string `json:"status"`
}

// Rank is an A/B/C priority rank.
type Rank string

const (
	RankA Rank = "A"
	RankB Rank = "B"
	RankC Rank = "C"
)

// Priority is one ranked action from the prioritization phase.
type Priority struct {
	ActionText string `json:"action_text"`
	Rank       Rank   `json:"rank"`
}

// PendingQuestion is the single outstanding question while a session is
// suspended. Non-nil only between a suspension and the matching resume.
type PendingQuestion struct {
	Key     string    `json:"key"`
	Prompt  string    `json:"prompt"`
	Shape   string    `json:"expected_answer_shape"`
	AskedAt time.Time `json:"asked_at"`
}

// Answer is a user-supplied value for a previously asked question.
// Answers are cached so a replayed unit of work never re-asks.
type Answer struct {
	Value      string    `json:"value"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Metrics holds the behavioral scores computed once at wrap-up.
type Metrics struct {
	FocusScore          float64   `json:"focus_score"`
	SwitchesPerHour     float64   `json:"switches_per_hour"`
	AlignmentPercentage float64   `json:"alignment_percentage"`
	ScatterPeriods      int       `json:"scatter_period_count"`
	HyperfocusPeriods   int       `json:"hyperfocus_period_count"`
	InsufficientData    bool      `json:"insufficient_data,omitempty"`
	ComputedAt          time.Time `json:"computed_at"`
}

// Session is the full durable state of one coaching session. It is
// serialized as a whole after every mutation that could be followed by a
// suspension or process exit. Field names are stable across versions;
// readers ignore unknown fields.
type Session struct {
	ID             string    `json:"session_id"`
	CurrentPhase   Phase     `json:"current_phase"`
	StartedAt      time.Time `json:"started_at"`
	PhaseStartedAt time.Time `json:"phase_started_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	CaptureItems   []CaptureItem            `json:"capture_items"`
	ProjectUpdates map[string]ProjectUpdate `json:"project_updates"`
	Priorities     []Priority               `json:"priorities"`

	PendingQuestion *PendingQuestion `json:"pending_question,omitempty"`
	Metrics         *Metrics         `json:"metrics,omitempty"`

	// Answers caches every question/answer pair keyed by question key, so
	// replaying a unit of work from its start is safe.
	Answers map[string]Answer `json:"answers"`

	// FiredAlerts records which time-box thresholds already fired per phase,
	// so an alert never repeats after a resume or restart.
	FiredAlerts map[Phase][]string `json:"fired_alerts,omitempty"`

	// EnergyLevel is the self-reported 1-10 energy from startup.
	EnergyLevel int `json:"energy_level,omitempty"`

	// ActionQueue is the frozen list of clarified actions feeding the
	// prioritization phase, fixed at phase entry so replays are stable.
	ActionQueue []string `json:"action_queue,omitempty"`

	// ReviewProjects is the frozen list of projects to walk during project
	// review, fixed at phase entry so replays are stable.
	ReviewProjects []string `json:"review_projects,omitempty"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Abandoned   bool       `json:"abandoned"`
}

// New creates a session at STARTUP entry.
func New(now time.Time) *Session {
	return &Session{
		ID:             fmt.Sprintf("session_%s", uuid.New().String()[:8]),
		CurrentPhase:   PhaseStartup,
		StartedAt:      now,
		PhaseStartedAt: now,
		UpdatedAt:      now,
		ProjectUpdates: make(map[string]ProjectUpdate),
		Answers:        make(map[string]Answer),
		FiredAlerts:    make(map[Phase][]string),
	}
}

// Snapshot serializes the full session state.
func (s *Session) Snapshot() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize session %s: %w", s.ID, err)
	}
	return data, nil
}

// FromSnapshot restores a session from a serialized snapshot. Unknown
// fields in the snapshot are ignored for forward compatibility.
func FromSnapshot(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session snapshot: %w", err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("session snapshot missing session_id")
	}
	if !s.CurrentPhase.Valid() {
		return nil, fmt.Errorf("session snapshot has unknown phase %q", s.CurrentPhase)
	}
	if s.ProjectUpdates == nil {
		s.ProjectUpdates = make(map[string]ProjectUpdate)
	}
	if s.Answers == nil {
		s.Answers = make(map[string]Answer)
	}
	if s.FiredAlerts == nil {
		s.FiredAlerts = make(map[Phase][]string)
	}
	return &s, nil
}

// Terminal reports whether the session can no longer be advanced.
func (s *Session) Terminal() bool {
	return s.Completed || s.Abandoned
}

// AdvancePhase moves the session to the next phase and restarts the phase
// clock. It fails on terminal sessions and at the final phase; completion
// is a separate, explicit act.
func (s *Session) AdvancePhase(now time.Time) error {
	if s.Terminal() {
		return fmt.Errorf("session %s is terminal, cannot advance", s.ID)
	}
	next, ok := s.CurrentPhase.Next()
	if !ok {
		return fmt.Errorf("session %s is already in terminal phase %s", s.ID, s.CurrentPhase)
	}
	s.CurrentPhase = next
	s.PhaseStartedAt = now
	s.UpdatedAt = now
	return nil
}

// Complete marks the session done. Only valid in WRAP_UP.
func (s *Session) Complete(now time.Time) error {
	if s.CurrentPhase != PhaseWrapUp {
		return fmt.Errorf("session %s cannot complete from phase %s", s.ID, s.CurrentPhase)
	}
	if s.Terminal() {
		return fmt.Errorf("session %s is already terminal", s.ID)
	}
	s.Completed = true
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Abandon marks the session explicitly terminated by the user. Valid from
// any non-terminal state.
func (s *Session) Abandon(now time.Time) error {
	if s.Terminal() {
		return fmt.Errorf("session %s is already terminal", s.ID)
	}
	s.Abandoned = true
	s.PendingQuestion = nil
	s.UpdatedAt = now
	return nil
}

// AddCaptureItem appends to the capture list. The list is append-only
// during MIND_SWEEP_CAPTURE and frozen once that phase ends.
func (s *Session) AddCaptureItem(text string, at time.Time) error {
	if s.CurrentPhase != PhaseMindSweepCapture {
		return fmt.Errorf("capture_items frozen: session %s is in phase %s", s.ID, s.CurrentPhase)
	}
	s.CaptureItems = append(s.CaptureItems, CaptureItem{Text: text, CapturedAt: at})
	s.UpdatedAt = at
	return nil
}

// SetProjectUpdate records a project review outcome. Only valid during
// PROJECT_REVIEW; frozen afterwards.
func (s *Session) SetProjectUpdate(project string, update ProjectUpdate, at time.Time) error {
	if s.CurrentPhase != PhaseProjectReview {
		return fmt.Errorf("project_updates frozen: session %s is in phase %s", s.ID, s.CurrentPhase)
	}
	s.ProjectUpdates[project] = update
	s.UpdatedAt = at
	return nil
}

// AddPriority appends a ranked action. Only valid during PRIORITIZATION;
// frozen afterwards.
func (s *Session) AddPriority(p Priority, at time.Time) error {
	if s.CurrentPhase != PhasePrioritization {
		return fmt.Errorf("priorities frozen: session %s is in phase %s", s.ID, s.CurrentPhase)
	}
	s.Priorities = append(s.Priorities, p)
	s.UpdatedAt = at
	return nil
}

// AnswerFor returns the cached answer for a question key, if any.
func (s *Session) AnswerFor(key string) (Answer, bool) {
	a, ok := s.Answers[key]
	return a, ok
}

// RecordAnswer stores the user's value for the pending question and clears
// the suspension. Resuming always consumes exactly one pending question.
func (s *Session) RecordAnswer(value string, at time.Time) error {
	if s.PendingQuestion == nil {
		return fmt.Errorf("session %s has no pending question", s.ID)
	}
	s.Answers[s.PendingQuestion.Key] = Answer{Value: value, AnsweredAt: at}
	s.PendingQuestion = nil
	s.UpdatedAt = at
	return nil
}

// DropPendingQuestion abandons the outstanding question without an
// answer. Used when a phase expires out from under a suspension: the
// next phase must be free to ask its own first question.
func (s *Session) DropPendingQuestion(now time.Time) {
	if s.PendingQuestion == nil {
		return
	}
	s.PendingQuestion = nil
	s.UpdatedAt = now
}

// Suspend records the single outstanding question. A second simultaneous
// pending question is rejected.
func (s *Session) Suspend(q PendingQuestion) error {
	if s.PendingQuestion != nil {
		return fmt.Errorf("session %s already has pending question %q", s.ID, s.PendingQuestion.Key)
	}
	s.PendingQuestion = &q
	s.UpdatedAt = q.AskedAt
	return nil
}

// AlertFired reports whether the given threshold already fired for phase.
func (s *Session) AlertFired(phase Phase, threshold string) bool {
	for _, t := range s.FiredAlerts[phase] {
		if t == threshold {
			return true
		}
	}
	return false
}

// MarkAlertFired records a threshold crossing so it never re-fires.
func (s *Session) MarkAlertFired(phase Phase, threshold string) {
	if s.AlertFired(phase, threshold) {
		return
	}
	s.FiredAlerts[phase] = append(s.FiredAlerts[phase], threshold)
}
