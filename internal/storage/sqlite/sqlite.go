// Package sqlite is a local storage backend that keeps activity records
// in a SQLite database instead of an ActivityWatch server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"awical/internal/importer"
	"awical/internal/model"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS buckets (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL DEFAULT 'calendar_data',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bucket TEXT NOT NULL,
			uid TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			duration_ns INTEGER NOT NULL,
			title TEXT,
			attendees TEXT NOT NULL DEFAULT '[]',
			calendar_name TEXT NOT NULL DEFAULT '',
			UNIQUE (bucket, uid),
			FOREIGN KEY (bucket) REFERENCES buckets(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_bucket_ts ON records(bucket, timestamp)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// EnsureBucket creates bucket if it does not exist.
func (s *Storage) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO buckets (id) VALUES (?)`, bucket)
	if err != nil {
		return &importer.TransportError{Op: "create_bucket", Bucket: bucket, Err: err}
	}
	return nil
}

// GetEvents returns every record in bucket ordered by timestamp.
func (s *Storage) GetEvents(ctx context.Context, bucket string) ([]model.ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, timestamp, duration_ns, title, attendees, calendar_name
		FROM records WHERE bucket = ? ORDER BY timestamp, id`, bucket)
	if err != nil {
		return nil, &importer.TransportError{Op: "get_events", Bucket: bucket, Err: err}
	}
	defer rows.Close()

	var out []model.ActivityRecord
	for rows.Next() {
		var (
			r         model.ActivityRecord
			ts        string
			durNS     int64
			title     sql.NullString
			attendees string
		)
		if err := rows.Scan(&r.Data.UID, &ts, &durNS, &title, &attendees, &r.Data.CalendarName); err != nil {
			return nil, &importer.TransportError{Op: "get_events", Bucket: bucket, Err: err}
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, &importer.TransportError{Op: "get_events", Bucket: bucket, Err: fmt.Errorf("record %s: %w", r.Data.UID, err)}
		}
		r.Duration = time.Duration(durNS)
		if title.Valid {
			r.Data.Title = model.StringPtr(title.String)
		}
		if err := json.Unmarshal([]byte(attendees), &r.Data.Attendees); err != nil {
			return nil, &importer.TransportError{Op: "get_events", Bucket: bucket, Err: fmt.Errorf("record %s: %w", r.Data.UID, err)}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &importer.TransportError{Op: "get_events", Bucket: bucket, Err: err}
	}
	return out, nil
}

// InsertEvents inserts records in one transaction. A record whose UID is
// already stored in bucket is ignored.
func (s *Storage) InsertEvents(ctx context.Context, bucket string, records []model.ActivityRecord) error {
	fail := func(err error) error {
		return &importer.TransportError{Op: "insert_events", Bucket: bucket, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO buckets (id) VALUES (?)`, bucket); err != nil {
		return fail(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO records (bucket, uid, timestamp, duration_ns, title, attendees, calendar_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fail(err)
	}
	defer stmt.Close()

	for _, r := range records {
		attendees := r.Data.Attendees
		if attendees == nil {
			attendees = []string{}
		}
		encoded, err := json.Marshal(attendees)
		if err != nil {
			return fail(err)
		}
		var title sql.NullString
		if r.Data.Title != nil {
			title = sql.NullString{String: *r.Data.Title, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			bucket, r.Data.UID, r.Timestamp.UTC().Format(time.RFC3339Nano), int64(r.Duration),
			title, string(encoded), r.Data.CalendarName,
		); err != nil {
			return fail(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	return nil
}
