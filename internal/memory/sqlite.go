package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"cadence/internal/logging"
)

// SQLiteSink persists episodes into the shared cadence database. It
// borrows the checkpoint store's connection rather than opening its own:
// SQLite behaves best with a single writer per file.
type SQLiteSink struct {
	db   *sql.DB
	once sync.Once
	err  error
}

func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

func (s *SQLiteSink) initialize() error {
	s.once.Do(func() {
		table := `
		CREATE TABLE IF NOT EXISTS episodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload_json TEXT,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_episodes_session ON episodes(session_id);
		CREATE INDEX IF NOT EXISTS idx_episodes_kind ON episodes(kind);
		CREATE TABLE IF NOT EXISTS knowledge_graph (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL,
			predicate TEXT NOT NULL,
			object TEXT NOT NULL,
			session_id TEXT NOT NULL,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_kg_subject ON knowledge_graph(subject);
		`
		if _, err := s.db.Exec(table); err != nil {
			s.err = fmt.Errorf("failed to create episodes table: %w", err)
		}
	})
	return s.err
}

// WriteEpisode persists one episode.
func (s *SQLiteSink) WriteEpisode(ctx context.Context, ep Episode) error {
	if err := s.initialize(); err != nil {
		return err
	}
	if ep.SessionID == "" {
		return fmt.Errorf("episode has no session id")
	}

	payload, err := json.Marshal(ep.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO episodes (session_id, kind, payload_json, recorded_at) VALUES (?, ?, ?, ?)",
		ep.SessionID, ep.Kind, string(payload), ep.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert episode: %w", err)
	}

	// Graph edges are a best-effort projection; the episode row is the
	// durable record.
	for _, t := range triplesFrom(ep) {
		_, terr := s.db.ExecContext(ctx,
			"INSERT INTO knowledge_graph (subject, predicate, object, session_id, recorded_at) VALUES (?, ?, ?, ?, ?)",
			t.Subject, t.Predicate, t.Object, ep.SessionID, ep.RecordedAt)
		if terr != nil {
			logging.MemoryWarn("Graph edge dropped for %s: %v", ep.SessionID, terr)
		}
	}

	logging.Memory("Episode written: kind=%s session=%s", ep.Kind, ep.SessionID)
	return nil
}

// About returns graph edges whose subject matches, newest first.
func (s *SQLiteSink) About(ctx context.Context, subject string, limit int) ([]Triple, error) {
	if err := s.initialize(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT subject, predicate, object FROM knowledge_graph WHERE subject = ? ORDER BY id DESC LIMIT ?",
		subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge graph: %w", err)
	}
	defer rows.Close()

	var triples []Triple
	for rows.Next() {
		var t Triple
		if err := rows.Scan(&t.Subject, &t.Predicate, &t.Object); err != nil {
			return nil, fmt.Errorf("failed to scan triple: %w", err)
		}
		triples = append(triples, t)
	}
	return triples, rows.Err()
}

// RecentEpisodes returns the latest episodes for a session, newest
// first. Future sessions use these to seed coaching context.
func (s *SQLiteSink) RecentEpisodes(ctx context.Context, sessionID string, limit int) ([]Episode, error) {
	if err := s.initialize(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, kind, payload_json, recorded_at FROM episodes WHERE session_id = ? ORDER BY id DESC LIMIT ?",
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		var payload string
		if err := rows.Scan(&ep.SessionID, &ep.Kind, &payload, &ep.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &ep.Payload); err != nil {
				logging.MemoryWarn("Skipping episode with bad payload for %s: %v", sessionID, err)
				continue
			}
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}
