package attendance

import (
	"context"
	"time"
)

// Entry is one student's final status handed to a Sink.
type Entry struct {
	StudentID string
	Status    Status
}

// Record is a durable attendance row. (SessionID, StudentID) is unique.
type Record struct {
	SessionID string    `json:"sessionId"`
	ClassID   string    `json:"classId"`
	StudentID string    `json:"studentId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink commits finalized sessions.
//
// Requirements:
//   - Commit is all-or-nothing: on any error no record of the batch is kept
//   - Rows whose (sessionId, studentId) already exists are left as stored;
//     the returned count covers newly inserted rows only
//   - Records are append-only
type Sink interface {
	Commit(ctx context.Context, sessionID, classID string, entries []Entry) (int, error)
	Records(ctx context.Context, sessionID string) ([]Record, error)
	Close() error
}
