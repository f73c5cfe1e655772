package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"cadence/internal/inbox"
	"cadence/internal/session"
	"cadence/internal/timetrack"
)

// fakeClock is a manually advanced clock shared by the orchestrator and
// the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Each read ticks a little so timestamps stay distinct.
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTracker serves canned time entries, or fails on demand.
type fakeTracker struct {
	entries []timetrack.TimeEntry
	err     error
	calls   int
}

func (f *fakeTracker) Fetch(ctx context.Context, dr timetrack.DateRange) ([]timetrack.TimeEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

// fakeInbox is an in-memory task inbox.
type fakeInbox struct {
	items []inbox.Item
	done  []string
	err   error
}

func (f *fakeInbox) ListItems(ctx context.Context) ([]inbox.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeInbox) MarkDone(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.done = append(f.done, id)
	return nil
}

// recordedAlert captures alert emissions.
type recordedAlert struct {
	phase     session.Phase
	threshold string
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

func (f *fakeAlerter) Alert(phase session.Phase, threshold, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, recordedAlert{phase: phase, threshold: threshold})
}

func (f *fakeAlerter) recorded() []recordedAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedAlert(nil), f.alerts...)
}

var errServiceDown = errors.New("service down")
