// Package checkpoint provides the durable session snapshot store. A
// checkpoint is the full serialized Session keyed by session id; last write
// wins, and a reader never observes a half-written snapshot.
package checkpoint

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no snapshot exists for the id.
var ErrNotFound = errors.New("checkpoint: session not found")

// Record is one stored snapshot with its bookkeeping columns.
type Record struct {
	SessionID string
	Snapshot  []byte
	Phase     string
	Completed bool
	UpdatedAt time.Time
}

// Store is the checkpoint contract. Save persists a full overwritable
// snapshot; Load returns the latest snapshot or ErrNotFound. Any error from
// Save or Load is a persistence failure and is fatal for the calling
// operation - the orchestrator never proceeds with state it cannot recover.
type Store interface {
	Save(sessionID string, snapshot []byte, phase string, completed bool) error
	Load(sessionID string) ([]byte, error)
	List() ([]Record, error)
	Archive(sessionID string) error
	// LoadArchived returns the archived record for a finished session, or
	// ErrNotFound. Lets callers tell "never existed" from "already done".
	LoadArchived(sessionID string) (Record, error)
	Delete(sessionID string) error
	Close() error
}
