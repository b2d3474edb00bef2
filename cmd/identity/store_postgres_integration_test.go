package identity

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

func TestPostgresStore_Directory(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustSeedSchema(t, pool)

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	r, err := st.GetRoster(ctx, "C1")
	if err != nil {
		t.Fatalf("GetRoster: %v", err)
	}
	if r.Name != "Maths" || r.TeacherID != "t1" {
		t.Fatalf("roster=%+v", r)
	}
	if len(r.StudentIDs) != 2 || r.StudentIDs[0] != "s1" || r.StudentIDs[1] != "s2" {
		t.Fatalf("students=%v", r.StudentIDs)
	}

	orphan, err := st.GetRoster(ctx, "C2")
	if err != nil {
		t.Fatalf("GetRoster without teacher: %v", err)
	}
	if orphan.TeacherID != "" || orphan.Name != "" || len(orphan.StudentIDs) != 0 {
		t.Fatalf("orphan roster=%+v", orphan)
	}

	if _, err := st.GetRoster(ctx, "C404"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	for id, want := range map[string]bool{"s1": true, "S1 ": false, "t1": false, "ghost": false, "": false} {
		got, err := st.IsStudent(ctx, id)
		if err != nil {
			t.Fatalf("IsStudent(%q): %v", id, err)
		}
		if got != want {
			t.Fatalf("IsStudent(%q)=%v want %v", id, got, want)
		}
	}

	u, err := st.GetUser(ctx, "t1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Role != RoleTeacher || u.Username != "teacher one" {
		t.Fatalf("user=%+v", u)
	}
	if _, err := st.GetUser(ctx, "ghost"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
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

// mustSeedSchema creates the directory tables in a throwaway schema.
func mustSeedSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := ids.NewULID(time.Time{})
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	schema := "identity_it_" + strings.ToLower(id)
	q := pgx.Identifier{schema}.Sanitize()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+q+` CASCADE`)
	})

	ddl := `
CREATE SCHEMA ` + q + `;
CREATE TABLE ` + q + `.users (id text PRIMARY KEY, username text, role text NOT NULL);
CREATE TABLE ` + q + `.classes (id text PRIMARY KEY, name text, teacher_id text REFERENCES ` + q + `.users(id));
CREATE TABLE ` + q + `.class_students (
	class_id text REFERENCES ` + q + `.classes(id),
	student_id text REFERENCES ` + q + `.users(id)
);
INSERT INTO ` + q + `.users (id, username, role) VALUES
	('t1', 'teacher one', 'teacher'),
	('s1', NULL, 'Student'),
	('s2', 'student two', 'student');
INSERT INTO ` + q + `.classes (id, name, teacher_id) VALUES
	('C1', 'Maths', 't1'),
	('C2', NULL, NULL);
INSERT INTO ` + q + `.class_students (class_id, student_id) VALUES
	('C1', 's2'),
	('C1', 's1');
`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
	return schema
}
