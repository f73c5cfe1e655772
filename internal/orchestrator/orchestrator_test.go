package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cadence/internal/checkpoint"
	"cadence/internal/inbox"
	"cadence/internal/interrupt"
	"cadence/internal/memory"
	"cadence/internal/session"
	"cadence/internal/timetrack"
)

type capturingSink struct {
	mu       sync.Mutex
	episodes []memory.Episode
}

func (c *capturingSink) WriteEpisode(ctx context.Context, ep memory.Episode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.episodes = append(c.episodes, ep)
	return nil
}

func (c *capturingSink) byKind(kind string) []memory.Episode {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []memory.Episode
	for _, ep := range c.episodes {
		if ep.Kind == kind {
			out = append(out, ep)
		}
	}
	return out
}

func trackedEntries(base time.Time) []timetrack.TimeEntry {
	return []timetrack.TimeEntry{
		{Project: "report", Start: base.Add(-2 * time.Hour), End: base.Add(-1 * time.Hour)},
		{Project: "website", Start: base.Add(-50 * time.Minute), End: base.Add(-10 * time.Minute)},
	}
}

// drive answers questions from the script until the session finishes or
// a question has no scripted answer.
func drive(t *testing.T, o *Orchestrator, s *session.Session, step *Step, answers map[string]string) *Step {
	t.Helper()
	ctx := context.Background()
	var phases []session.Phase
	for i := 0; i < 50; i++ {
		if step.Question == nil {
			assertPhaseOrder(t, phases)
			return step
		}
		phases = append(phases, step.Phase)
		v, ok := answers[step.Question.Key]
		if !ok {
			t.Fatalf("no scripted answer for question %q", step.Question.Key)
		}
		var err error
		step, err = o.SubmitAnswer(ctx, s, v)
		if err != nil {
			t.Fatalf("SubmitAnswer(%s): %v", v, err)
		}
	}
	t.Fatal("session did not finish within 50 steps")
	return nil
}

func assertPhaseOrder(t *testing.T, phases []session.Phase) {
	t.Helper()
	for i := 1; i < len(phases); i++ {
		if phases[i-1] != phases[i] && !phases[i-1].Before(phases[i]) {
			t.Errorf("phase went backwards: %s after %s", phases[i], phases[i-1])
		}
	}
}

func TestFullSessionHappyPath(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	sink := &capturingSink{}
	writer := memory.NewWriter(sink)
	tracker := &fakeTracker{entries: trackedEntries(clock.Now())}
	box := &fakeInbox{items: []inbox.Item{{ID: "t1", Text: "call mom"}, {ID: "t2", Text: "renew passport"}}}
	alerter := &fakeAlerter{}

	o, err := New(Deps{
		Store:   store,
		Tracker: tracker,
		Inbox:   box,
		Memory:  writer,
		Alerter: alerter,
		Clock:   clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}

	s, step, err := o.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if step.Question == nil || step.Question.Key != "startup/energy" {
		t.Fatalf("first question = %+v, want startup/energy", step.Question)
	}

	final := drive(t, o, s, step, map[string]string{
		"startup/energy": "7",
		"startup/ready":  "yes",
		"capture/0":      "fix bug",
		"capture/1":      "call mom",
		"capture/2":      "done",
		"process/0":      "patch the parser",
		"process/1":      "skip",
		"review/0":       "on track; ship draft",
		"review/1":       "stalled; email vendor",
		"rank/0":         "A",
	})
	writer.Close()

	if !final.Done {
		t.Fatal("session did not report done")
	}
	if !s.Completed {
		t.Error("session not marked completed")
	}
	if s.EnergyLevel != 7 {
		t.Errorf("energy = %d, want 7", s.EnergyLevel)
	}
	if len(s.CaptureItems) != 2 {
		t.Errorf("capture items = %d, want 2", len(s.CaptureItems))
	}
	if len(s.ActionQueue) != 1 || s.ActionQueue[0] != "patch the parser" {
		t.Errorf("action queue = %v", s.ActionQueue)
	}
	if len(s.Priorities) != 1 || s.Priorities[0].Rank != session.RankA {
		t.Errorf("priorities = %+v", s.Priorities)
	}
	if got := s.ProjectUpdates["report"]; got.Status != "on track" || got.NextAction != "ship draft" {
		t.Errorf("report update = %+v", got)
	}
	if s.Metrics == nil {
		t.Fatal("metrics not computed")
	}
	if s.Metrics.FocusScore < 0 || s.Metrics.FocusScore > 100 {
		t.Errorf("focus score = %v", s.Metrics.FocusScore)
	}

	// Completed session moved to the archive.
	if _, err := store.LoadArchived(s.ID); err != nil {
		t.Errorf("completed session not archived: %v", err)
	}
	if _, err := store.Load(s.ID); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Error("completed session still live after archive")
	}

	// Captured inbox item marked done; the un-captured one stays pending.
	if len(box.done) != 1 || box.done[0] != "t1" {
		t.Errorf("inbox done = %v, want [t1]", box.done)
	}

	// Memory got a summary, a sanitized capture batch, and the ranked
	// decision.
	if got := sink.byKind(memory.KindSessionSummary); len(got) != 1 {
		t.Errorf("session summary episodes = %d, want 1", len(got))
	}
	batches := sink.byKind(memory.KindCaptureBatch)
	if len(batches) != 1 {
		t.Fatalf("capture batch episodes = %d, want 1", len(batches))
	}
	if _, ok := batches[0].Payload["raw_items"]; ok {
		t.Error("raw capture text must not reach long-term memory")
	}
	if got := sink.byKind(memory.KindPriorityDecision); len(got) != 1 {
		t.Errorf("priority episodes = %d, want 1", len(got))
	}
	reports := sink.byKind(memory.KindEnergyReport)
	if len(reports) != 1 {
		t.Fatalf("energy episodes = %d, want 1", len(reports))
	}
	if reports[0].Payload["level"] != 7 {
		t.Errorf("energy payload = %+v, want level 7", reports[0].Payload)
	}
}

func TestSessionSurvivesRestartMidPhase(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	o, err := New(Deps{Store: store, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, step, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	step = drive2(t, o, s, step, []string{"6", "yes", "write thesis chapter"})
	if step.Question == nil || step.Question.Key != "capture/1" {
		t.Fatalf("question = %+v, want capture/1", step.Question)
	}

	// Simulate a restart: reload from the checkpoint alone.
	restored, err := o.Resume(ctx, s.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if restored.CurrentPhase != session.PhaseMindSweepCapture {
		t.Errorf("restored phase = %s", restored.CurrentPhase)
	}
	if restored.PendingQuestion == nil || restored.PendingQuestion.Key != "capture/1" {
		t.Errorf("restored pending = %+v", restored.PendingQuestion)
	}
	if len(restored.CaptureItems) != 1 || restored.CaptureItems[0].Text != "write thesis chapter" {
		t.Errorf("restored items = %+v", restored.CaptureItems)
	}

	// The restored session keeps working.
	step, err = o.SubmitAnswer(ctx, restored, "done")
	if err != nil {
		t.Fatalf("SubmitAnswer after restart: %v", err)
	}
	if step.Question == nil || !strings.HasPrefix(step.Question.Key, "process/") {
		t.Errorf("next question = %+v, want process/*", step.Question)
	}
}

// drive2 answers questions positionally.
func drive2(t *testing.T, o *Orchestrator, s *session.Session, step *Step, answers []string) *Step {
	t.Helper()
	for _, v := range answers {
		if step.Question == nil {
			t.Fatalf("ran out of questions before answer %q", v)
		}
		var err error
		step, err = o.SubmitAnswer(context.Background(), s, v)
		if err != nil {
			t.Fatalf("SubmitAnswer(%s): %v", v, err)
		}
	}
	return step
}

func TestExpiredPhaseForcesTransition(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	tracker := &fakeTracker{err: errServiceDown}
	alerter := &fakeAlerter{}
	o, err := New(Deps{Store: store, Tracker: tracker, Alerter: alerter, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, step, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	step = drive2(t, o, s, step, []string{"6", "yes"})
	if step.Question.Key != "capture/0" {
		t.Fatalf("question = %s", step.Question.Key)
	}

	// Blow straight past the capture budget while suspended.
	clock.Advance(10 * time.Minute)
	final, err := o.SubmitAnswer(ctx, s, "too late to matter")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	// With nothing captured and no tracker, the remaining phases have no
	// questions, so the forced transition cascades to completion.
	if !final.Done {
		t.Fatalf("final step = %+v, want done", final)
	}
	if len(s.CaptureItems) != 0 {
		t.Errorf("expired capture phase should not admit items, got %v", s.CaptureItems)
	}

	// Exactly one alert for the capture phase: the expiry. Milder
	// thresholds crossed in the same jump are swallowed.
	var captureAlerts []recordedAlert
	for _, a := range alerter.recorded() {
		if a.phase == session.PhaseMindSweepCapture {
			captureAlerts = append(captureAlerts, a)
		}
	}
	if len(captureAlerts) != 1 || captureAlerts[0].threshold != "expired" {
		t.Errorf("capture alerts = %+v, want single expired", captureAlerts)
	}
	if !s.AlertFired(session.PhaseMindSweepCapture, "expired") {
		t.Error("expired alert not recorded on session")
	}
}

func TestExpirySuspendedSessionResumesIntoNextPhase(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	o, err := New(Deps{Store: store, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, step, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	step = drive2(t, o, s, step, []string{"6", "yes", "fix bug"})
	if step.Question == nil || step.Question.Key != "capture/1" {
		t.Fatalf("question = %+v, want capture/1", step.Question)
	}

	// The capture budget expires while the session sits suspended. The
	// open question dies with its phase; the next phase asks its own.
	clock.Advance(10 * time.Minute)
	restored, err := o.Resume(ctx, s.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	step, err = o.Advance(ctx, restored)
	if err != nil {
		t.Fatalf("Advance after expiry: %v", err)
	}
	if step.Question == nil || step.Question.Key != "process/0" {
		t.Fatalf("question = %+v, want process/0", step.Question)
	}
	if len(restored.CaptureItems) != 1 {
		t.Errorf("capture items = %+v, want the one answered item", restored.CaptureItems)
	}

	// The stale question must not survive in the checkpoint either.
	reloaded, err := o.Resume(ctx, s.ID)
	if err != nil {
		t.Fatalf("second Resume: %v", err)
	}
	if reloaded.PendingQuestion == nil || reloaded.PendingQuestion.Key != "process/0" {
		t.Errorf("persisted pending = %+v, want process/0", reloaded.PendingQuestion)
	}
}

func TestExpiryKeepsRankedPriorities(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	o, err := New(Deps{Store: store, Tracker: &fakeTracker{err: errServiceDown}, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, step, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	step = drive2(t, o, s, step, []string{
		"6", "yes",
		"fix the deck", "email vendor", "done",
		"polish slides", "send the quote",
		"A",
	})
	if step.Question == nil || step.Question.Key != "rank/1" {
		t.Fatalf("question = %+v, want rank/1", step.Question)
	}

	// Prioritization expires before the second rank. The decision already
	// made stays; only the unanswered rank is lost.
	clock.Advance(10 * time.Minute)
	final, err := o.Advance(ctx, s)
	if err != nil {
		t.Fatalf("Advance after expiry: %v", err)
	}
	if !final.Done || !s.Completed {
		t.Fatalf("final = %+v, want completed session", final)
	}
	if len(s.Priorities) != 1 {
		t.Fatalf("priorities = %+v, want the answered rank kept", s.Priorities)
	}
	if s.Priorities[0].ActionText != "polish slides" || s.Priorities[0].Rank != session.RankA {
		t.Errorf("priority = %+v", s.Priorities[0])
	}
}

func TestExpiryKeepsProcessedActions(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	o, err := New(Deps{Store: store, Tracker: &fakeTracker{err: errServiceDown}, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, step, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	step = drive2(t, o, s, step, []string{
		"6", "yes",
		"plan offsite", "buy gift", "done",
		"book flights",
	})
	if step.Question == nil || step.Question.Key != "process/1" {
		t.Fatalf("question = %+v, want process/1", step.Question)
	}

	clock.Advance(10 * time.Minute)
	step, err = o.Advance(ctx, s)
	if err != nil {
		t.Fatalf("Advance after expiry: %v", err)
	}
	if len(s.ActionQueue) != 1 || s.ActionQueue[0] != "book flights" {
		t.Errorf("action queue = %v, want the processed action kept", s.ActionQueue)
	}
	if step.Question == nil || step.Question.Key != "rank/0" {
		t.Errorf("question = %+v, want rank/0 over the kept action", step.Question)
	}
}

func TestThresholdAlertsFireOnce(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	alerter := &fakeAlerter{}
	o, err := New(Deps{Store: store, Alerter: alerter, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, _, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Startup budget is 120s. At 70s elapsed, under half remains.
	clock.Advance(70 * time.Second)
	step, err := o.Advance(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerter.recorded()) != 1 || alerter.recorded()[0].threshold != "fifty" {
		t.Fatalf("alerts = %+v, want single fifty", alerter.recorded())
	}
	if len(step.Messages) == 0 {
		t.Error("threshold crossing should surface a message")
	}

	// Same threshold never refires.
	if _, err := o.Advance(ctx, s); err != nil {
		t.Fatal(err)
	}
	if len(alerter.recorded()) != 1 {
		t.Errorf("alerts = %+v, fifty refired", alerter.recorded())
	}

	// The next crossing fires the next threshold.
	clock.Advance(27 * time.Second)
	if _, err := o.Advance(ctx, s); err != nil {
		t.Fatal(err)
	}
	got := alerter.recorded()
	if len(got) != 2 || got[1].threshold != "twenty" {
		t.Errorf("alerts = %+v, want fifty then twenty", got)
	}
}

func TestResumeFinishedSessionIsViolation(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	o, err := New(Deps{Store: store, Tracker: &fakeTracker{err: errServiceDown}, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, step, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	final := drive2(t, o, s, step, []string{"5", "yes", "done"})
	if !final.Done {
		t.Fatalf("final = %+v", final)
	}

	// Completion archives the checkpoint; resuming the archived id is a
	// violation, not a not-found.
	var pvArchived *interrupt.ProtocolViolation
	if _, err := o.Resume(ctx, s.ID); !errors.As(err, &pvArchived) {
		t.Errorf("resume archived session: err = %v, want ProtocolViolation", err)
	}

	// A session that never existed is still a plain not-found.
	if _, err := o.Resume(ctx, "session_00000000"); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Errorf("resume unknown session: err = %v, want ErrNotFound", err)
	}

	// A finished session still in the live table is a violation.
	snapshot, serr := s.Snapshot()
	if serr != nil {
		t.Fatal(serr)
	}
	if err := store.Save(s.ID, snapshot, string(s.CurrentPhase), true); err != nil {
		t.Fatal(err)
	}
	var pv *interrupt.ProtocolViolation
	if _, err := o.Resume(ctx, s.ID); !errors.As(err, &pv) {
		t.Errorf("resume completed session: err = %v, want ProtocolViolation", err)
	}

	// Advancing a finished session is equally rejected.
	if _, err := o.Advance(ctx, s); !errors.As(err, &pv) {
		t.Errorf("advance completed session: err = %v, want ProtocolViolation", err)
	}
}

func TestPersistenceFailureIsFatal(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	o, err := New(Deps{Store: store, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, _, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	store.FailSaves = true
	if _, err := o.SubmitAnswer(ctx, s, "7"); err == nil {
		t.Error("expected error when checkpointing fails")
	}
}

func TestSubmitWithoutPendingIsViolation(t *testing.T) {
	clock := newFakeClock()
	o, err := New(Deps{Store: checkpoint.NewMemoryStore(), Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}

	s := session.New(clock.Now())
	var pv *interrupt.ProtocolViolation
	if _, err := o.SubmitAnswer(context.Background(), s, "hello"); !errors.As(err, &pv) {
		t.Errorf("err = %v, want ProtocolViolation", err)
	}
}

func TestCollaboratorFailuresDegrade(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	o, err := New(Deps{
		Store:   store,
		Tracker: &fakeTracker{err: errServiceDown},
		Inbox:   &fakeInbox{err: errServiceDown},
		Clock:   clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, step, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	final := drive(t, o, s, step, map[string]string{
		"startup/energy": "4",
		"startup/ready":  "no",
		"capture/0":      "plan the offsite",
		"capture/1":      "done",
		"process/0":      "book a room",
		"rank/0":         "B",
	})

	// Dead tracker and inbox cost features, never the session.
	if !final.Done || !s.Completed {
		t.Fatal("session should complete despite dead collaborators")
	}
	if s.Metrics == nil {
		t.Fatal("metrics should still compute from captures alone")
	}
	if s.Metrics.InsufficientData {
		t.Error("captures exist, focus analysis should have data")
	}
	if len(s.ReviewProjects) != 0 {
		t.Errorf("review projects = %v, want none without tracker", s.ReviewProjects)
	}
}

func TestAbandonKeepsStateAndArchives(t *testing.T) {
	clock := newFakeClock()
	store := checkpoint.NewMemoryStore()
	sink := &capturingSink{}
	writer := memory.NewWriter(sink)
	o, err := New(Deps{Store: store, Memory: writer, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, step, err := o.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	step = drive2(t, o, s, step, []string{"3", "yes", "first thought"})
	if step.Question == nil {
		t.Fatal("expected a pending question before abandoning")
	}

	if err := o.Abandon(ctx, s); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	writer.Close()

	if !s.Abandoned {
		t.Error("session not marked abandoned")
	}
	rec, aerr := store.LoadArchived(s.ID)
	if aerr != nil {
		t.Fatalf("abandoned session not archived: %v", aerr)
	}
	restored, err := session.FromSnapshot(rec.Snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if len(restored.CaptureItems) != 1 {
		t.Errorf("abandoned snapshot lost capture items: %+v", restored.CaptureItems)
	}
	if got := sink.byKind(memory.KindAbandonment); len(got) != 1 {
		t.Errorf("abandonment episodes = %d, want 1", len(got))
	}
}
