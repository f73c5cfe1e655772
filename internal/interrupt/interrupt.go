// Package interrupt implements the question/answer suspension protocol.
// A phase is decomposed into replayable units; when a unit needs input it
// asks through a Prompter, which either serves a cached answer or parks
// the question on the session and suspends the run. After the answer
// arrives the unit replays from its start, this time finding every prior
// answer in the cache, and runs to completion.
package interrupt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cadence/internal/session"
)

// ErrSuspended signals that execution stopped to wait for a user answer.
// It is control flow, not failure: callers persist the session and
// surface the pending question.
var ErrSuspended = errors.New("awaiting user answer")

// ProtocolViolation reports a sequencing bug in the suspension protocol,
// such as asking a second question while one is pending or resuming a
// finished session. These indicate programmer error, not user error.
type ProtocolViolation struct {
	Op     string
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("suspension protocol violation in %s: %s", e.Op, e.Reason)
}

// Prompter mediates all question asking for one session. Answers are
// keyed so a replayed unit re-asking the same question gets the cached
// answer instead of suspending again.
type Prompter struct {
	s     *session.Session
	clock func() time.Time
}

func NewPrompter(s *session.Session, clock func() time.Time) *Prompter {
	if clock == nil {
		clock = time.Now
	}
	return &Prompter{s: s, clock: clock}
}

// Ask returns the cached answer for key, or suspends by parking the
// question on the session and returning ErrSuspended. Asking with a new
// key while a different question is pending is a protocol violation: a
// unit must not reach a second question before the first is answered.
func (p *Prompter) Ask(key, prompt, shape string) (string, error) {
	if a, ok := p.s.AnswerFor(key); ok {
		return a.Value, nil
	}

	if pending := p.s.PendingQuestion; pending != nil {
		if pending.Key == key {
			// Replay reached the same unanswered question.
			return "", ErrSuspended
		}
		return "", &ProtocolViolation{
			Op:     "ask",
			Reason: fmt.Sprintf("question %q pending, cannot ask %q", pending.Key, key),
		}
	}

	if err := p.s.Suspend(session.PendingQuestion{
		Key:     key,
		Prompt:  prompt,
		Shape:   shape,
		AskedAt: p.clock(),
	}); err != nil {
		return "", err
	}
	return "", ErrSuspended
}

// Resume records the user's answer to the pending question and clears
// it. Resuming with no question pending, or on a finished session, is a
// protocol violation.
func Resume(s *session.Session, value string, now time.Time) error {
	if s.Completed || s.Abandoned {
		return &ProtocolViolation{Op: "resume", Reason: "session already finished"}
	}
	if s.PendingQuestion == nil {
		return &ProtocolViolation{Op: "resume", Reason: "no question pending"}
	}
	return s.RecordAnswer(value, now)
}

// Unit is one replayable step of a phase. Run must be idempotent up to
// its suspension point: replaying after an answer arrives must not
// duplicate side effects that already happened.
type Unit struct {
	Key string
	Run func(ctx context.Context) error
}

// RunAll executes units in order, stopping at the first suspension or
// hard error. On resume the caller invokes RunAll again; completed units
// replay against cached answers and fall through.
func RunAll(ctx context.Context, units []Unit) error {
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.Run(ctx); err != nil {
			if errors.Is(err, ErrSuspended) {
				return ErrSuspended
			}
			return fmt.Errorf("unit %s: %w", u.Key, err)
		}
	}
	return nil
}
