package realtime

import "github.com/google/uuid"

// NewConnID returns a random connection id for logs and group membership.
func NewConnID() string {
	return uuid.NewString()
}
