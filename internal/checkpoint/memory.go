package checkpoint

import (
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store for tests and short-lived
// sessions. It honors the same last-write-wins and whole-snapshot
// semantics as the SQLite store but does not survive process restart.
type MemoryStore struct {
	mu       sync.RWMutex
	live     map[string]Record
	archived map[string]Record

	// FailSaves forces Save to fail, for exercising persistence-failure
	// paths in tests.
	FailSaves bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		live:     make(map[string]Record),
		archived: make(map[string]Record),
	}
}

// Save stores a copy of the snapshot, replacing any previous one.
func (m *MemoryStore) Save(sessionID string, snapshot []byte, phase string, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaves {
		return fmt.Errorf("memory store: save failure injected")
	}
	if sessionID == "" {
		return fmt.Errorf("checkpoint save requires a session id")
	}

	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)
	m.live[sessionID] = Record{
		SessionID: sessionID,
		Snapshot:  cp,
		Phase:     phase,
		Completed: completed,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// Load returns a copy of the latest snapshot, or ErrNotFound.
func (m *MemoryStore) Load(sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.live[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(r.Snapshot))
	copy(cp, r.Snapshot)
	return cp, nil
}

// List returns all live checkpoints.
func (m *MemoryStore) List() ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.live))
	for _, r := range m.live {
		records = append(records, r)
	}
	return records, nil
}

// Archive moves a live checkpoint to the archived tier.
func (m *MemoryStore) Archive(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.live[sessionID]
	if !ok {
		return ErrNotFound
	}
	m.archived[sessionID] = r
	delete(m.live, sessionID)
	return nil
}

// Delete removes a live checkpoint.
func (m *MemoryStore) Delete(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.live, sessionID)
	return nil
}

// LoadArchived returns the archived record for a session, or ErrNotFound.
func (m *MemoryStore) LoadArchived(sessionID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.archived[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
