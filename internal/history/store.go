// Package history persists terminal tasks evicted from the queue.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HyphaGroup/portcullis/internal/task"
	_ "modernc.org/sqlite"
)

var ErrRecordNotFound = errors.New("history record not found")

// Record is one archived task
type Record struct {
	TaskID      string     `json:"task_id"`
	ToolName    string     `json:"tool_name"`
	Status      string     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_time"`
	StartedAt   *time.Time `json:"started_time,omitempty"`
	CompletedAt *time.Time `json:"completed_time,omitempty"`
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	ArchivedAt  time.Time  `json:"archived_at"`
}

// Store handles task history persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new history store with SQLite backend
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	// Enable WAL mode and busy timeout for better concurrent access
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_history (
		task_id TEXT PRIMARY KEY,
		tool_name TEXT NOT NULL,
		status TEXT NOT NULL,
		submitted_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		success INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		result_data TEXT,
		archived_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_tool ON task_history(tool_name);
	CREATE INDEX IF NOT EXISTS idx_history_archived ON task_history(archived_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Archive stores one evicted terminal task. Implements task.Archiver.
func (s *Store) Archive(snap task.Snapshot) error {
	var success bool
	var message string
	var resultData []byte
	if snap.Result != nil {
		success = snap.Result.Success
		message = snap.Result.Message
		if snap.Result.Data != nil {
			resultData, _ = json.Marshal(snap.Result.Data)
		}
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO task_history
		(task_id, tool_name, status, submitted_at, started_at, completed_at, success, message, result_data, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.ToolName, snap.Status, snap.SubmittedAt,
		nullableTime(snap.StartedAt), nullableTime(snap.CompletedAt),
		success, message, nullableBytes(resultData), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive task %s: %w", snap.ID, err)
	}
	return nil
}

// Get returns one archived task by ID
func (s *Store) Get(taskID string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT task_id, tool_name, status, submitted_at, started_at, completed_at, success, message, archived_at
		FROM task_history WHERE task_id = ?`, taskID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return rec, err
}

// ListRecent returns up to limit archived tasks, newest first
func (s *Store) ListRecent(limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT task_id, tool_name, status, submitted_at, started_at, completed_at, success, message, archived_at
		FROM task_history ORDER BY archived_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Purge deletes archived tasks older than the given age and returns the
// number removed
func (s *Store) Purge(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.Exec(`DELETE FROM task_history WHERE archived_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge history: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var started, completed sql.NullTime
	err := row.Scan(
		&rec.TaskID, &rec.ToolName, &rec.Status, &rec.SubmittedAt,
		&started, &completed, &rec.Success, &rec.Message, &rec.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		rec.StartedAt = &started.Time
	}
	if completed.Valid {
		rec.CompletedAt = &completed.Time
	}
	return &rec, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
