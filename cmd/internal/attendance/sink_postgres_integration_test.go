package attendance

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/007-bg/Live-Attendance-System/cmd/identity/ids"
)

// Integration tests are enabled when ATTENDANCE_DATABASE_URL is set.

func TestPostgresSink_CommitSkipsExistingRows(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustTestSchemaName(t)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })

	sink, err := NewPostgresSink(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresSink: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	n, err := sink.Commit(ctx, "sess-1", "c1", []Entry{
		{StudentID: "s1", Status: StatusPresent},
		{StudentID: "s2", Status: StatusAbsent},
	})
	if err != nil || n != 2 {
		t.Fatalf("Commit = %d, %v", n, err)
	}

	n, err = sink.Commit(ctx, "sess-1", "c1", []Entry{
		{StudentID: "s3", Status: StatusAbsent},
		{StudentID: "s1", Status: StatusAbsent},
	})
	if err != nil || n != 1 {
		t.Fatalf("replayed Commit = %d, %v", n, err)
	}

	recs, err := sink.Records(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 3 || recs[0].StudentID != "s1" || recs[0].Status != StatusPresent || recs[2].StudentID != "s3" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("ATTENDANCE_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: ATTENDANCE_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping postgres: %v", err)
	}
	return pool
}

func mustTestSchemaName(t *testing.T) string {
	t.Helper()

	id, err := ids.NewULID(time.Time{})
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	return "attendance_it_" + strings.ToLower(id)
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}
