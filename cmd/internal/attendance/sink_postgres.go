package attendance

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink is a Sink backed by PostgreSQL.
//
// Ownership model: the pool is owned by the caller; Close is a no-op.
type PostgresSink struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresSink.
type PostgresOption func(*PostgresSink) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema (default "attendance").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresSink) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("attendance: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return errors.New("attendance: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresSink constructs a PostgresSink.
func NewPostgresSink(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresSink, error) {
	st := &PostgresSink{pool: pool, schema: "attendance"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("attendance: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresSink) Close() error { return nil }

// EnsureSchema creates the records and audit tables when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ddl, err := readSchema("postgres.sql")
	if err != nil {
		return err
	}
	ddl = strings.ReplaceAll(ddl, "{{schema}}", pgx.Identifier{s.schema}.Sanitize())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("attendance: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Commit(ctx context.Context, sessionID, classID string, entries []Entry) (int, error) {
	if sessionID == "" || classID == "" {
		return 0, errors.New("attendance: commit without session or class id")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records := pgIdent(s.schema, "attendance_records")
	inserted := 0
	for _, e := range entries {
		tag, err := tx.Exec(ctx,
			`INSERT INTO `+records+` (session_id, class_id, student_id, status, created_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (session_id, student_id) DO NOTHING`,
			sessionID, classID, e.StudentID, string(e.Status),
		)
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// Records returns a session's records ordered by student id.
func (s *PostgresSink) Records(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, class_id, student_id, status, created_at
		   FROM `+pgIdent(s.schema, "attendance_records")+`
		  WHERE session_id = $1
		  ORDER BY student_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r      Record
			status string
		)
		if err := rows.Scan(&r.SessionID, &r.ClassID, &r.StudentID, &status, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Status = Status(status)
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

var _ Sink = (*PostgresSink)(nil)
