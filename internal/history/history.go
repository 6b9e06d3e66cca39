// Package history keeps a local log of side-effecting operations
// (publishes, note creations) in a SQLite database under the data dir.
// The log is advisory: callers treat write failures as non-fatal so a
// bookkeeping problem never blocks a publish.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Entry kinds.
const (
	KindPublish = "publish"
	KindNote    = "note"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Entry is one logged side effect.
type Entry struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Site          string `json:"site"`
	Project       string `json:"project,omitempty"`
	Shot          string `json:"shot,omitempty"`
	Task          string `json:"task,omitempty"`
	VersionNumber int    `json:"version_number,omitempty"`
	Filename      string `json:"filename,omitempty"`
	RemoteID      int    `json:"remote_id,omitempty"`
	Detail        string `json:"detail,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// Init opens (creating if needed) the history database at
// baseDir/history.db. The baseDir parameter allows tests to use t.TempDir().
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("history: create base directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "history.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)
	return db, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS activity (
		  id             TEXT PRIMARY KEY,
		  kind           TEXT NOT NULL,
		  site           TEXT NOT NULL,
		  project        TEXT,
		  shot           TEXT,
		  task           TEXT,
		  version_number INTEGER,
		  filename       TEXT,
		  remote_id      INTEGER,
		  detail         TEXT,
		  created_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activity_created
		ON activity(created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_activity_kind
		ON activity(kind, created_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("history: apply schema v1: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("history: read user_version: %w", err)
	}
	return v, nil
}

func setUserVersion(db *sql.DB, v int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("history: set user_version: %w", err)
	}
	return nil
}

// entropy for ULID generation. ULIDs only need local uniqueness here.
var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

// Record inserts an entry, assigning ID and CreatedAt when unset.
func Record(ctx context.Context, db *sql.DB, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	query, args, err := sq.Insert("activity").
		Columns("id", "kind", "site", "project", "shot", "task",
			"version_number", "filename", "remote_id", "detail", "created_at").
		Values(e.ID, e.Kind, e.Site, e.Project, e.Shot, e.Task,
			e.VersionNumber, e.Filename, e.RemoteID, e.Detail, e.CreatedAt).
		ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("history: build insert: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return Entry{}, fmt.Errorf("history: insert: %w", err)
	}
	return e, nil
}

// ListInput filters List. Zero values mean "no filter".
type ListInput struct {
	Kind   string
	Site   string
	Limit  int // defaults to 50, capped at 200
	Offset int
}

// List returns entries newest first.
func List(ctx context.Context, db *sql.DB, input ListInput) ([]Entry, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := sq.Select("id", "kind", "site", "project", "shot", "task",
		"version_number", "filename", "remote_id", "detail", "created_at").
		From("activity").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(max(input.Offset, 0)))
	if input.Kind != "" {
		query = query.Where(sq.Eq{"kind": input.Kind})
	}
	if input.Site != "" {
		query = query.Where(sq.Eq{"site": input.Site})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("history: build select: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("history: select: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Site, &e.Project, &e.Shot, &e.Task,
			&e.VersionNumber, &e.Filename, &e.RemoteID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
