// Package eventlogarchive is a strictly optional, off-path sink a host may
// attach to an eventlog.Store subscription to archive events outside the
// process lifetime. The core's Non-goals exclude persistent storage of
// sessions or logs; this package is additive (a subscriber, nothing more)
// so a host can exercise modernc.org/sqlite without the core itself taking
// a storage dependency.
//
// Grounded on the reference service's internal/persistence/store.go:
// same database/sql + modernc.org/sqlite open/migrate/WAL-tuning shape,
// repointed at archiving NormalizedEvents instead of tab bookkeeping.
package eventlogarchive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/workspace/agentcore/eventlog"
)

// Store is a SQLite-backed archive of NormalizedEvents, keyed by session.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// Open creates or opens a SQLite database at dbPath and applies the
// archive's schema migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("eventlogarchive: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlogarchive: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlogarchive: set busy timeout: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlogarchive: migrate: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []func(*sql.DB) error{migrateV1}
	for i := version; i < len(migrations); i++ {
		s.logger.Info("eventlogarchive: applying migration", "version", i+1)
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("record migration v%d: %w", i+1, err)
		}
	}
	return nil
}

func migrateV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id    TEXT NOT NULL,
			agent_type    TEXT NOT NULL,
			type          TEXT NOT NULL,
			content       TEXT NOT NULL DEFAULT '',
			error_kind    TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '',
			timestamp     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	`)
	return err
}

// Append persists one NormalizedEvent for sessionID. Marshal failures on
// the Metadata field are logged and the event is stored with an empty
// metadata_json rather than dropped entirely, matching the core's own
// policy of never letting a secondary concern abort a primary write.
func (s *Store) Append(sessionID string, event eventlog.NormalizedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metaJSON string
	if event.Metadata != nil {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			s.logger.Warn("eventlogarchive: metadata marshal failed, archiving without it", "session_id", sessionID, "error", err)
		} else {
			metaJSON = string(b)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO events (session_id, agent_type, type, content, error_kind, metadata_json, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, event.AgentType, string(event.Type), event.Content, string(event.ErrorKind), metaJSON, event.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("eventlogarchive: insert event: %w", err)
	}
	return nil
}

// Follow subscribes to sub and archives every event it delivers until sub
// is closed. Intended to be run in its own goroutine by the host; ranging
// over sub.Events (rather than also selecting on sub.Done) guarantees every
// buffered event drains before Follow returns.
func (s *Store) Follow(sessionID string, sub *eventlog.Subscription) {
	for e := range sub.Events {
		if err := s.Append(sessionID, e); err != nil {
			s.logger.Error("eventlogarchive: append failed", "session_id", sessionID, "error", err)
		}
	}
}

// Count returns the number of archived events for sessionID.
func (s *Store) Count(sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM events WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("eventlogarchive: count events: %w", err)
	}
	return count, nil
}
