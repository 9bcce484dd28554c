// Package journal keeps a local SQLite log of build events until they have
// been published.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    build_id TEXT,
    payload TEXT,
    synced INTEGER DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_events_unsynced ON events(synced) WHERE synced = 0;
CREATE INDEX IF NOT EXISTS idx_events_build ON events(build_id);
`

// FileName is the journal database inside the data directory.
const FileName = "journal.db"

// Journal is the event journal database.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal in dataDir.
func Open(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// LogEvent records an event. A "build_id" key in a map payload is indexed.
func (j *Journal) LogEvent(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	var buildID interface{}
	if m, ok := payload.(map[string]interface{}); ok {
		if id, ok := m["build_id"].(string); ok {
			buildID = id
		}
	}

	_, err = j.db.Exec(`INSERT INTO events (type, build_id, payload) VALUES (?, ?, ?)`,
		eventType, buildID, string(data))
	if err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}
	return nil
}

// Event is one journal row.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	BuildID   string    `json:"buildId,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			buildID sql.NullString
			payload sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.Type, &buildID, &payload, &created); err != nil {
			return nil, err
		}
		e.BuildID = buildID.String
		e.Payload = payload.String
		if t, err := time.Parse("2006-01-02T15:04:05.000Z", created); err == nil {
			e.CreatedAt = t
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetUnsyncedEvents returns events that haven't been published yet, oldest
// first.
func (j *Journal) GetUnsyncedEvents(limit int) ([]Event, error) {
	rows, err := j.db.Query(
		`SELECT id, type, build_id, payload, created_at FROM events WHERE synced = 0 ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// BuildEvents returns the events recorded for one build, oldest first.
func (j *Journal) BuildEvents(buildID string) ([]Event, error) {
	rows, err := j.db.Query(
		`SELECT id, type, build_id, payload, created_at FROM events WHERE build_id = ? ORDER BY id ASC`, buildID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// MarkEventsSynced marks the given event IDs as published.
func (j *Journal) MarkEventsSynced(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE events SET synced = 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PruneSynced deletes published events older than age and returns how many
// were removed.
func (j *Journal) PruneSynced(age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).UTC().Format("2006-01-02T15:04:05.000Z")
	res, err := j.db.Exec(`DELETE FROM events WHERE synced = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
