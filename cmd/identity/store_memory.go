package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// InMemoryStore is a dev/test directory. It is safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	rosters map[string]Roster
}

// NewInMemoryStore constructs an empty directory.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[string]User),
		rosters: make(map[string]Roster),
	}
}

// Seed is the JSON document accepted by Load.
type Seed struct {
	Users   []User   `json:"users"`
	Classes []Roster `json:"classes"`
}

// LoadFile seeds the directory from a JSON file.
func (s *InMemoryStore) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("identity: open seed: %w", err)
	}
	defer func() { _ = f.Close() }()
	return s.Load(f)
}

// Load seeds the directory from a JSON stream.
func (s *InMemoryStore) Load(r io.Reader) error {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return fmt.Errorf("identity: decode seed: %w", err)
	}
	for _, u := range seed.Users {
		if err := s.PutUser(u); err != nil {
			return err
		}
	}
	for _, c := range seed.Classes {
		if err := s.PutRoster(c); err != nil {
			return err
		}
	}
	return nil
}

// PutUser inserts or replaces a user.
func (s *InMemoryStore) PutUser(u User) error {
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return invalid("identity.PutUser", "missing id")
	}
	u.Role = ParseRole(string(u.Role))

	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return nil
}

// PutRoster inserts or replaces a class roster.
func (s *InMemoryStore) PutRoster(r Roster) error {
	r.ClassID = strings.TrimSpace(r.ClassID)
	if r.ClassID == "" {
		return invalid("identity.PutRoster", "missing id")
	}
	r.StudentIDs = append([]string(nil), r.StudentIDs...)

	s.mu.Lock()
	s.rosters[r.ClassID] = r
	s.mu.Unlock()
	return nil
}

// GetUser implements Store.
func (s *InMemoryStore) GetUser(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	u, ok := s.users[strings.TrimSpace(userID)]
	s.mu.RUnlock()
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUser", Resource: "user", ID: userID}
	}
	return u, nil
}

// GetRoster implements Store.
func (s *InMemoryStore) GetRoster(ctx context.Context, classID string) (Roster, error) {
	if err := ctx.Err(); err != nil {
		return Roster{}, err
	}
	s.mu.RLock()
	r, ok := s.rosters[strings.TrimSpace(classID)]
	s.mu.RUnlock()
	if !ok {
		return Roster{}, NotFoundError{Op: "identity.GetRoster", Resource: "class", ID: classID}
	}
	r.StudentIDs = append([]string(nil), r.StudentIDs...)
	return r, nil
}

// IsStudent implements Store.
func (s *InMemoryStore) IsStudent(ctx context.Context, userID string) (bool, error) {
	u, err := s.GetUser(ctx, userID)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Role == RoleStudent, nil
}
