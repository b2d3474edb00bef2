package identity

import (
	"context"
	"strings"
)

// Role is the authorization role carried by a connection.
type Role string

const (
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
	RoleAdmin     Role = "admin"
	RoleAnonymous Role = "anonymous"
)

// ParseRole normalizes a stored role value. Unknown values map to RoleAnonymous.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleTeacher:
		return RoleTeacher
	case RoleStudent:
		return RoleStudent
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleAnonymous
	}
}

// User is a directory principal.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Role     Role   `json:"role"`
}

// Roster is a class with its owning teacher and enrolled students.
type Roster struct {
	ClassID    string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	TeacherID  string   `json:"teacherId"`
	StudentIDs []string `json:"studentIds"`
}

// OwnedBy reports whether userID is the class teacher.
func (r Roster) OwnedBy(userID string) bool {
	return r.TeacherID != "" && r.TeacherID == userID
}

// Store is the directory boundary.
type Store interface {
	// GetUser returns the user or a NotFoundError.
	GetUser(ctx context.Context, userID string) (User, error)

	// GetRoster returns the class roster or a NotFoundError.
	GetRoster(ctx context.Context, classID string) (Roster, error)

	// IsStudent reports whether userID resolves to an existing student.
	IsStudent(ctx context.Context, userID string) (bool, error)
}
