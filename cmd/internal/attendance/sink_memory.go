package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// InMemorySink keeps records in process memory. Dev/test only.
type InMemorySink struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]map[string]Record // sessionID -> studentID -> record
}

// NewInMemorySink constructs an empty sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{
		now:      time.Now,
		sessions: make(map[string]map[string]Record),
	}
}

// Close is a noop.
func (s *InMemorySink) Close() error { return nil }

func (s *InMemorySink) Commit(ctx context.Context, sessionID, classID string, entries []Entry) (int, error) {
	if sessionID == "" || classID == "" {
		return 0, errors.New("attendance: commit without session or class id")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.sessions[sessionID]
	if existing == nil {
		existing = make(map[string]Record, len(entries))
		s.sessions[sessionID] = existing
	}
	now := s.now().UTC()
	inserted := 0
	for _, e := range entries {
		if _, dup := existing[e.StudentID]; dup {
			continue
		}
		existing[e.StudentID] = Record{
			SessionID: sessionID,
			ClassID:   classID,
			StudentID: e.StudentID,
			Status:    e.Status,
			CreatedAt: now,
		}
		inserted++
	}
	return inserted, nil
}

// Records returns a session's records ordered by student id.
func (s *InMemorySink) Records(ctx context.Context, sessionID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.sessions[sessionID]))
	for _, r := range s.sessions[sessionID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

var _ Sink = (*InMemorySink)(nil)
