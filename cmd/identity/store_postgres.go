package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads the directory from PostgreSQL.
//
// Expected tables (schema-qualified):
//
//	users(id text primary key, username text, role text)
//	classes(id text primary key, name text, teacher_id text references users(id))
//	class_students(class_id text references classes(id), student_id text references users(id))
//
// The pool is owned by the caller; this store never closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema used for directory tables (default "attendance").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return errors.New("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "attendance"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

// GetUser implements Store.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUser"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	var (
		u    User
		name *string
		role string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, role FROM `+pgIdent(s.schema, "users")+` WHERE id = $1`,
		userID,
	).Scan(&u.ID, &name, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user", ID: userID}
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	if name != nil {
		u.Username = *name
	}
	u.Role = ParseRole(role)
	return u, nil
}

// GetRoster implements Store.
func (s *PostgresStore) GetRoster(ctx context.Context, classID string) (Roster, error) {
	const op = "identity.GetRoster"

	classID = strings.TrimSpace(classID)
	if classID == "" {
		return Roster{}, NotFoundError{Op: op, Resource: "class"}
	}

	r := Roster{ClassID: classID}
	var name, teacherID *string
	err := s.pool.QueryRow(ctx,
		`SELECT name, teacher_id FROM `+pgIdent(s.schema, "classes")+` WHERE id = $1`,
		classID,
	).Scan(&name, &teacherID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Roster{}, NotFoundError{Op: op, Resource: "class", ID: classID}
	}
	if err != nil {
		return Roster{}, fmt.Errorf("%s: %w", op, err)
	}
	if name != nil {
		r.Name = *name
	}
	// A class without a teacher is owned by nobody.
	if teacherID != nil {
		r.TeacherID = *teacherID
	}

	rows, err := s.pool.Query(ctx,
		`SELECT student_id FROM `+pgIdent(s.schema, "class_students")+` WHERE class_id = $1 ORDER BY student_id`,
		classID,
	)
	if err != nil {
		return Roster{}, fmt.Errorf("%s: students: %w", op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Roster{}, fmt.Errorf("%s: students: %w", op, err)
	}
	r.StudentIDs = ids
	return r, nil
}

// IsStudent implements Store.
func (s *PostgresStore) IsStudent(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM `+pgIdent(s.schema, "users")+` WHERE id = $1 AND lower(role) = 'student'`,
		userID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("identity.IsStudent: %w", err)
	}
	return true, nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
