package attendance

import (
	"strings"
	"time"
)

// Status is a student's attendance mark.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// ParseStatus normalizes s. ok is false for anything but present/absent.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPresent:
		return StatusPresent, true
	case StatusAbsent:
		return StatusAbsent, true
	default:
		return "", false
	}
}

// Session is one class's in-progress attendance.
// The JSON form is the value stored under the class key.
type Session struct {
	SessionID  string            `json:"sessionId"`
	ClassID    string            `json:"classId"`
	StartedAt  time.Time         `json:"startedAt"`
	Attendance map[string]Status `json:"attendance"`
	// FinalizedAt is set once the records are committed; marks are refused after it.
	FinalizedAt *time.Time `json:"finalizedAt,omitempty"`
}

// Finalized reports whether the session's records are already committed.
func (s Session) Finalized() bool { return s.FinalizedAt != nil }

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	out.Attendance = make(map[string]Status, len(s.Attendance))
	for k, v := range s.Attendance {
		out.Attendance[k] = v
	}
	return out
}

// StatusOf returns the student's mark, if any.
func (s Session) StatusOf(studentID string) (Status, bool) {
	st, ok := s.Attendance[studentID]
	return st, ok
}

// Summary derives counts from the attendance mapping.
func (s Session) Summary() Summary {
	var sum Summary
	for _, st := range s.Attendance {
		sum.add(st)
	}
	return sum
}

// Summary holds present/absent counts. Total is always Present+Absent.
type Summary struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

func (s *Summary) add(st Status) {
	switch st {
	case StatusPresent:
		s.Present++
	case StatusAbsent:
		s.Absent++
	default:
		return
	}
	s.Total++
}
