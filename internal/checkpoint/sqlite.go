package checkpoint

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cadence/internal/logging"
)

// SQLiteStore is the durable checkpoint store backed by SQLite. Snapshots
// live in a single row per session; INSERT OR REPLACE inside the WAL gives
// atomic replace semantics, so readers see either the old snapshot or the
// new one, never a partial write.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLiteStore initializes the checkpoint database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Initializing checkpoint store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.StoreError("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	store := &SQLiteStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("Checkpoint store initialization complete")
	return store, nil
}

// initialize creates the required tables.
func (s *SQLiteStore) initialize() error {
	checkpointTable := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		session_id TEXT PRIMARY KEY,
		snapshot_json TEXT NOT NULL,
		phase TEXT,
		completed BOOLEAN DEFAULT FALSE,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_completed ON checkpoints(completed);
	`

	archivedTable := `
	CREATE TABLE IF NOT EXISTS archived_checkpoints (
		session_id TEXT PRIMARY KEY,
		snapshot_json TEXT NOT NULL,
		phase TEXT,
		completed BOOLEAN DEFAULT FALSE,
		updated_at DATETIME,
		archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_archived_checkpoints_at ON archived_checkpoints(archived_at);
	`

	for _, table := range []string{checkpointTable, archivedTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Save persists a full snapshot, replacing any previous one for the id.
func (s *SQLiteStore) Save(sessionID string, snapshot []byte, phase string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		return fmt.Errorf("checkpoint save requires a session id")
	}

	logging.StoreDebug("Saving checkpoint: session=%s phase=%s bytes=%d", sessionID, phase, len(snapshot))

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO checkpoints (session_id, snapshot_json, phase, completed, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(snapshot), phase, completed, time.Now().UTC(),
	)
	if err != nil {
		logging.StoreError("Failed to save checkpoint for %s: %v", sessionID, err)
		return fmt.Errorf("failed to save checkpoint for %s: %w", sessionID, err)
	}

	logging.StoreDebug("Checkpoint saved: session=%s", sessionID)
	return nil
}

// Load returns the latest snapshot for the id, or ErrNotFound.
func (s *SQLiteStore) Load(sessionID string) ([]byte, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Load")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshot string
	err := s.db.QueryRow(
		"SELECT snapshot_json FROM checkpoints WHERE session_id = ?",
		sessionID,
	).Scan(&snapshot)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		logging.StoreError("Failed to load checkpoint for %s: %v", sessionID, err)
		return nil, fmt.Errorf("failed to load checkpoint for %s: %w", sessionID, err)
	}

	return []byte(snapshot), nil
}

// List returns all live (non-archived) checkpoints, newest first.
func (s *SQLiteStore) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT session_id, snapshot_json, phase, completed, updated_at
		 FROM checkpoints ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var snapshot string
		if err := rows.Scan(&r.SessionID, &snapshot, &r.Phase, &r.Completed, &r.UpdatedAt); err != nil {
			continue
		}
		r.Snapshot = []byte(snapshot)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Archive moves a checkpoint to the archived tier. Used after wrap-up
// completes or after an explicit abandon; the snapshot stays readable but
// the session is no longer live.
func (s *SQLiteStore) Archive(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT OR REPLACE INTO archived_checkpoints (session_id, snapshot_json, phase, completed, updated_at)
		 SELECT session_id, snapshot_json, phase, completed, updated_at
		 FROM checkpoints WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to archive checkpoint for %s: %w", sessionID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec("DELETE FROM checkpoints WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to remove live checkpoint for %s: %w", sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive for %s: %w", sessionID, err)
	}

	logging.Store("Archived checkpoint: session=%s", sessionID)
	return nil
}

// LoadArchived returns the archived record for a finished session, or
// ErrNotFound.
func (s *SQLiteStore) LoadArchived(sessionID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r Record
	var snapshot string
	err := s.db.QueryRow(
		`SELECT session_id, snapshot_json, phase, completed, updated_at
		 FROM archived_checkpoints WHERE session_id = ?`,
		sessionID,
	).Scan(&r.SessionID, &snapshot, &r.Phase, &r.Completed, &r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Record{}, ErrNotFound
		}
		logging.StoreError("Failed to load archived checkpoint for %s: %v", sessionID, err)
		return Record{}, fmt.Errorf("failed to load archived checkpoint for %s: %w", sessionID, err)
	}
	r.Snapshot = []byte(snapshot)
	return r, nil
}

// Delete removes a live checkpoint entirely.
func (s *SQLiteStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM checkpoints WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint for %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDB returns the underlying SQL database connection. The memory writer
// shares it for its local knowledge-graph sink.
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	logging.Store("Closing checkpoint store database connection")
	return s.db.Close()
}
