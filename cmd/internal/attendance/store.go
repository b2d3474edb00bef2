package attendance

import "context"

// SessionStore holds at most one active Session per class.
//
// Requirements:
//   - Create is set-if-absent (ErrConflict when a session exists)
//   - Update is an atomic read-modify-write of one class's session
//   - Get/Update report ErrNotFound when no session exists
//   - Delete with a non-empty sessionID only removes that exact session
type SessionStore interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, classID string) (Session, error)
	Update(ctx context.Context, classID string, fn func(*Session) error) (Session, error)
	Delete(ctx context.Context, classID, sessionID string) error
	Exists(ctx context.Context, classID string) (bool, error)
	List(ctx context.Context) ([]Session, error)
	Close() error
}

func errNoSession(op, classID string) error {
	return &OpError{Op: op, Kind: ErrNotFound, Msg: MsgNoActiveSession, Err: classErr(classID)}
}

func errSessionActive(op, classID string) error {
	return &OpError{Op: op, Kind: ErrConflict, Msg: MsgSessionActive, Err: classErr(classID)}
}

type classErr string

func (c classErr) Error() string { return "class " + string(c) }
