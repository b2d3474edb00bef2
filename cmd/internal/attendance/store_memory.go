package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a single-process SessionStore.
// Entries older than the TTL (when set) are treated as absent and purged lazily.
type InMemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memEntry
}

type memEntry struct {
	s       Session
	expires time.Time
}

// MemoryOption configures InMemoryStore.
type MemoryOption func(*InMemoryStore)

// WithMemoryTTL expires sessions ttl after creation. Zero disables expiry.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *InMemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMemoryClock overrides the clock used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		now:      time.Now,
		sessions: make(map[string]memEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close is a noop.
func (s *InMemoryStore) Close() error { return nil }

// lookup returns the live entry for classID. Callers hold s.mu.
func (s *InMemoryStore) lookup(classID string) (memEntry, bool) {
	e, ok := s.sessions[classID]
	if !ok {
		return memEntry{}, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.sessions, classID)
		return memEntry{}, false
	}
	return e, true
}

func (s *InMemoryStore) Create(ctx context.Context, sess Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess.ClassID == "" {
		return errors.New("attendance: session without class id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(sess.ClassID); ok {
		return errSessionActive("attendance.store.Create", sess.ClassID)
	}
	e := memEntry{s: sess.Clone()}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.sessions[sess.ClassID] = e
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, classID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(classID)
	if !ok {
		return Session{}, errNoSession("attendance.store.Get", classID)
	}
	return e.s.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, classID string, fn func(*Session) error) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(classID)
	if !ok {
		return Session{}, errNoSession("attendance.store.Update", classID)
	}
	next := e.s.Clone()
	if err := fn(&next); err != nil {
		return Session{}, err
	}
	e.s = next
	s.sessions[classID] = e
	return next.Clone(), nil
}

func (s *InMemoryStore) Delete(ctx context.Context, classID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(classID)
	if !ok {
		return nil
	}
	if sessionID != "" && e.s.SessionID != sessionID {
		return nil
	}
	delete(s.sessions, classID)
	return nil
}

func (s *InMemoryStore) Exists(ctx context.Context, classID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(classID)
	return ok, nil
}

// List returns live sessions ordered by class id.
func (s *InMemoryStore) List(ctx context.Context) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for classID := range s.sessions {
		if e, ok := s.lookup(classID); ok {
			out = append(out, e.s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassID < out[j].ClassID })
	return out, nil
}

var _ SessionStore = (*InMemoryStore)(nil)
