package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink is a single-node Sink backed by SQLite.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteSink opens (or creates) the database at path and applies the schema.
// The path ":memory:" opens a private in-memory database.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn = "file:" + filepath.Clean(path) +
			"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	ddl, err := readSchema("sqlite.sql")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteSink{db: db, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteSink) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteSink) Commit(ctx context.Context, sessionID, classID string, entries []Entry) (int, error) {
	if sessionID == "" || classID == "" {
		return 0, errors.New("attendance: commit without session or class id")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO attendance_records (session_id, class_id, student_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	createdAt := s.now().UTC().UnixMilli()
	inserted := 0
	for _, e := range entries {
		res, err := stmt.ExecContext(ctx, sessionID, classID, e.StudentID, string(e.Status), createdAt)
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Records returns a session's records ordered by student id.
func (s *SQLiteSink) Records(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, class_id, student_id, status, created_at
		   FROM attendance_records
		  WHERE session_id = ?
		  ORDER BY student_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r      Record
			status string
			millis int64
		)
		if err := rows.Scan(&r.SessionID, &r.ClassID, &r.StudentID, &status, &millis); err != nil {
			return nil, err
		}
		r.Status = Status(status)
		r.CreatedAt = time.UnixMilli(millis).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Sink = (*SQLiteSink)(nil)
