package memory

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"cadence/internal/checkpoint"
)

type recordingSink struct {
	mu       sync.Mutex
	episodes []Episode
	failures int
}

func (r *recordingSink) WriteEpisode(ctx context.Context, ep Episode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("sink unavailable")
	}
	r.episodes = append(r.episodes, ep)
	return nil
}

func (r *recordingSink) written() []Episode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Episode(nil), r.episodes...)
}

func TestWriterPersistsAndDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{}
	w := NewWriter(sink)
	for i := 0; i < 5; i++ {
		w.Record(Episode{SessionID: "session_aaaa", Kind: KindEnergyReport})
	}
	w.Close()

	if got := len(sink.written()); got != 5 {
		t.Errorf("persisted %d episodes, want 5", got)
	}
}

func TestWriterRetriesTransientFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{failures: 2}
	w := NewWriter(sink)
	w.Record(Episode{SessionID: "session_bbbb", Kind: KindSessionSummary})
	w.Close()

	if got := len(sink.written()); got != 1 {
		t.Errorf("persisted %d episodes after retries, want 1", got)
	}
}

func TestWriterDropsAfterRetryBudget(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{failures: maxRetries + 1}
	w := NewWriter(sink)
	w.Record(Episode{SessionID: "session_cccc", Kind: KindSessionSummary})
	w.Close()

	// The episode is dropped, not retried forever, and Close returns.
	if got := len(sink.written()); got != 0 {
		t.Errorf("persisted %d episodes, want 0 (dropped)", got)
	}
}

func TestSanitizeStripsExcludedFields(t *testing.T) {
	ep := Episode{
		SessionID: "session_dddd",
		Kind:      KindCaptureBatch,
		Payload: map[string]interface{}{
			"item_count": 7,
			"raw_items":  []string{"private thought"},
		},
	}
	clean := sanitize(ep)
	if _, ok := clean.Payload["raw_items"]; ok {
		t.Error("raw_items should be stripped from capture batches")
	}
	if clean.Payload["item_count"] != 7 {
		t.Error("item_count should survive sanitization")
	}
	// Original payload untouched.
	if _, ok := ep.Payload["raw_items"]; !ok {
		t.Error("sanitize must not mutate the input episode")
	}
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(filepath.Join(t.TempDir(), "cadence.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	sink := NewSQLiteSink(store.GetDB())
	ctx := context.Background()

	ep := Episode{
		SessionID:  "session_eeee",
		Kind:       KindPriorityDecision,
		Payload:    map[string]interface{}{"action": "ship the report", "rank": "A"},
		RecordedAt: time.Now().UTC(),
	}
	if err := sink.WriteEpisode(ctx, ep); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := sink.RecentEpisodes(ctx, "session_eeee", 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("episodes = %d, want 1", len(got))
	}
	if got[0].Kind != KindPriorityDecision || got[0].Payload["rank"] != "A" {
		t.Errorf("episode = %+v", got[0])
	}

	// Priority decisions also project into the knowledge graph.
	triples, err := sink.About(ctx, "session_eeee", 10)
	if err != nil {
		t.Fatalf("graph read: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("triples = %d, want 1", len(triples))
	}
	if triples[0].Predicate != "prioritized" || triples[0].Object != "ship the report" {
		t.Errorf("triple = %+v", triples[0])
	}
}

func TestTriplesFromEpisodes(t *testing.T) {
	cases := []struct {
		name string
		ep   Episode
		want int
	}{
		{"priority with rank", Episode{SessionID: "s1", Kind: KindPriorityDecision,
			Payload: map[string]interface{}{"action": "call the bank", "rank": "B"}}, 2},
		{"priority without action", Episode{SessionID: "s1", Kind: KindPriorityDecision,
			Payload: map[string]interface{}{"rank": "A"}}, 0},
		{"summary", Episode{SessionID: "s1", Kind: KindSessionSummary,
			Payload: map[string]interface{}{"phase_reached": "WRAP_UP"}}, 1},
		{"abandonment", Episode{SessionID: "s1", Kind: KindAbandonment,
			Payload: map[string]interface{}{"phase": "PROJECT_REVIEW"}}, 1},
		{"kind without projection", Episode{SessionID: "s1", Kind: KindEnergyReport,
			Payload: map[string]interface{}{"level": 7}}, 0},
		{"nil payload", Episode{SessionID: "s1", Kind: KindPriorityDecision}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(triplesFrom(tc.ep)); got != tc.want {
				t.Errorf("triplesFrom = %d edges, want %d", got, tc.want)
			}
		})
	}
}

func TestSQLiteSinkRejectsAnonymousEpisode(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(filepath.Join(t.TempDir(), "cadence.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	sink := NewSQLiteSink(store.GetDB())
	if err := sink.WriteEpisode(context.Background(), Episode{Kind: KindEnergyReport}); err == nil {
		t.Error("expected error for episode without session id")
	}
}
