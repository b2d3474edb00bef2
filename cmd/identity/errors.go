package identity

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing user or class.
// Resource is a stable logical name: "user", "class".
type NotFoundError struct {
	Op       string
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
	}
	return fmt.Sprintf("%s: %v: %s %q", e.Op, ErrNotFound, e.Resource, e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func invalid(op, msg string) error {
	return fmt.Errorf("%s: %w: %s", op, ErrInvalidInput, msg)
}
