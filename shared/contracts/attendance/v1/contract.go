// Package v1 defines the live attendance wire protocol.
//
// Every frame in both directions is a JSON object {"event": <string>, "data": <object>}.
// This package has no dependencies so clients and tools can share it with the server.
package v1

import (
	"encoding/json"
	"errors"
	"strings"
)

// Event is a wire-stable event name.
type Event string

// Client -> server events (also echoed as server broadcasts).
const (
	EventAttendanceMarked Event = "ATTENDANCE_MARKED"
	EventTodaySummary     Event = "TODAY_SUMMARY"
	EventMyAttendance     Event = "MY_ATTENDANCE"
	EventDone             Event = "DONE"
)

// Server -> client only.
const (
	EventConnected Event = "CONNECTED"
	EventError     Event = "ERROR"
)

// Kind is the closed set of inbound events the gateway dispatches on.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAttendanceMarked
	KindTodaySummary
	KindMyAttendance
	KindDone
)

var kindByEvent = map[Event]Kind{
	EventAttendanceMarked: KindAttendanceMarked,
	EventTodaySummary:     KindTodaySummary,
	EventMyAttendance:     KindMyAttendance,
	EventDone:             KindDone,
}

// KindOf maps an inbound event name to its Kind. Unknown names map to KindUnknown.
func KindOf(e Event) Kind {
	return kindByEvent[e]
}

// Event returns the wire name of k, or "" for KindUnknown.
func (k Kind) Event() Event {
	for e, kk := range kindByEvent {
		if kk == k {
			return e
		}
	}
	return ""
}

// NotYetUpdated is reported by MY_ATTENDANCE when the student has no status
// in the active session, or when no session is active.
const NotYetUpdated = "not yet updated"

// Envelope is the canonical frame wrapper.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrMissingEvent is returned by Decode when the frame has no event name.
var ErrMissingEvent = errors.New("missing field: event")

// Decode parses a raw inbound frame. JSON syntax errors are returned as-is
// so callers can distinguish malformed frames with errors.As(*json.SyntaxError).
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	env.Event = Event(strings.TrimSpace(string(env.Event)))
	if env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	return env, nil
}

// New builds an outbound envelope, marshaling data into the payload.
func New(event Event, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event, Data: json.RawMessage(`{}`)}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: b}, nil
}
