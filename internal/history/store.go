package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/call"
)

// Store persists terminal call outcomes to a local SQLite file so the
// agent's call log survives restarts.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the call log database at path. ":memory:"
// works for tests.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode keeps reads cheap while log writes happen in background
	// goroutines.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS call_log (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id       TEXT,
			peer_id       TEXT NOT NULL,
			peer_name     TEXT,
			direction     TEXT NOT NULL,
			outcome       TEXT NOT NULL,
			started_at    TIMESTAMP NOT NULL,
			duration_secs INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_call_log_started_at ON call_log(started_at DESC);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCallLog appends one terminal call outcome.
func (s *Store) SaveCallLog(entry call.LogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO call_log (call_id, peer_id, peer_name, direction, outcome, started_at, duration_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.CallID, entry.PeerID, entry.PeerName, entry.Direction, entry.Outcome,
		entry.StartedAt.UTC(), entry.DurationSecs,
	)
	if err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

// RecentCalls returns the newest entries, most recent first.
func (s *Store) RecentCalls(limit int) ([]call.LogEntry, error) {
	rows, err := s.db.Query(`
		SELECT call_id, peer_id, peer_name, direction, outcome, started_at, duration_secs
		FROM call_log
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query call log: %w", err)
	}
	defer rows.Close()

	var entries []call.LogEntry
	for rows.Next() {
		var e call.LogEntry
		var startedAt time.Time
		if err := rows.Scan(&e.CallID, &e.PeerID, &e.PeerName, &e.Direction, &e.Outcome, &startedAt, &e.DurationSecs); err != nil {
			return nil, fmt.Errorf("scan call log row: %w", err)
		}
		e.StartedAt = startedAt
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeOlderThan deletes entries older than the cutoff and returns the
// number removed.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM call_log WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge call log: %w", err)
	}
	return res.RowsAffected()
}
