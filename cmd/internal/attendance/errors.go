package attendance

import (
	"errors"
	"strings"
)

// Sentinel error kinds (stable for errors.Is).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrPersistence  = errors.New("persistence")
)

// Human-facing messages carried by OpError.Msg.
const (
	MsgNoActiveSession  = "No active attendance session for this class"
	MsgSessionActive    = "Attendance session already active for this class"
	MsgClassIDRequired  = "Class ID required"
	MsgClassNotFound    = "Class not found"
	MsgInvalidStatus    = "Invalid status: must be present or absent"
	MsgPersistFailed    = "Failed to persist attendance"
	MsgClearFailed      = "Attendance persisted but the session could not be cleared"
	MsgAttendanceSaved  = "Attendance persisted"
	MsgStudentIDMissing = "Student ID required"
)

// OpError is a classified operation failure.
// Kind is one of the sentinels above; Msg is safe to show to clients.
type OpError struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func opErr(op string, kind error, msg string, cause error) error {
	return &OpError{Op: op, Kind: kind, Msg: msg, Err: cause}
}

// Message returns the client-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var oe *OpError
	if errors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return err.Error()
}

func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsPersistence(err error) bool  { return errors.Is(err, ErrPersistence) }
