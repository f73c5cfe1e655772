// Package memory records session episodes for future sessions to draw
// on. Writes are fire-and-forget: the orchestrator enqueues and moves
// on, a background worker persists with retries, and an episode that
// cannot be written after the retry budget is dropped with a log line.
// Memory loss is never a session failure.
package memory

import (
	"context"
	"sync"
	"time"

	"cadence/internal/logging"
)

// Episode is one durable memory of something that happened in a session.
type Episode struct {
	SessionID  string                 `json:"session_id"`
	Kind       string                 `json:"kind"`
	Payload    map[string]interface{} `json:"payload"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// Episode kinds.
const (
	KindSessionSummary   = "session_summary"
	KindCaptureBatch     = "capture_batch"
	KindPriorityDecision = "priority_decision"
	KindEnergyReport     = "energy_report"
	KindAbandonment      = "abandonment"
)

// excludedFields lists payload fields stripped before persisting, per
// kind. Raw capture text stays out of long-term memory; only derived
// signals survive.
var excludedFields = map[string][]string{
	KindCaptureBatch: {"raw_items"},
	KindAbandonment:  {"pending_question"},
}

// sanitize returns a copy of the episode with excluded fields removed.
func sanitize(ep Episode) Episode {
	excluded := excludedFields[ep.Kind]
	if len(excluded) == 0 || len(ep.Payload) == 0 {
		return ep
	}
	payload := make(map[string]interface{}, len(ep.Payload))
	for k, v := range ep.Payload {
		payload[k] = v
	}
	for _, field := range excluded {
		delete(payload, field)
	}
	ep.Payload = payload
	return ep
}

// Sink persists episodes.
type Sink interface {
	WriteEpisode(ctx context.Context, ep Episode) error
}

const (
	queueDepth   = 64
	maxRetries   = 3
	writeTimeout = 5 * time.Second
)

// Writer owns the background persistence worker. One Writer per
// process; Close drains the queue before returning.
type Writer struct {
	sink  Sink
	queue chan Episode
	wg    sync.WaitGroup

	closeOnce sync.Once
}

func NewWriter(sink Sink) *Writer {
	w := &Writer{
		sink:  sink,
		queue: make(chan Episode, queueDepth),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Record enqueues an episode without blocking. A full queue drops the
// episode immediately.
func (w *Writer) Record(ep Episode) {
	if ep.RecordedAt.IsZero() {
		ep.RecordedAt = time.Now()
	}
	select {
	case w.queue <- sanitize(ep):
	default:
		logging.MemoryWarn("Memory queue full, dropping %s episode for %s", ep.Kind, ep.SessionID)
	}
}

// Close stops accepting episodes and drains what is queued.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.queue)
	})
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for ep := range w.queue {
		w.persist(ep)
	}
}

func (w *Writer) persist(ep Episode) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond)
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.sink.WriteEpisode(ctx, ep)
		cancel()
		if err == nil {
			logging.MemoryDebug("Episode persisted: kind=%s session=%s", ep.Kind, ep.SessionID)
			return
		}
		lastErr = err
	}
	logging.MemoryWarn("Dropping %s episode for %s after %d retries: %v",
		ep.Kind, ep.SessionID, maxRetries, lastErr)
}
