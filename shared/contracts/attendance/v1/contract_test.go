package v1

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   Event
		want Kind
	}{
		{in: EventAttendanceMarked, want: KindAttendanceMarked},
		{in: EventTodaySummary, want: KindTodaySummary},
		{in: EventMyAttendance, want: KindMyAttendance},
		{in: EventDone, want: KindDone},
		{in: EventConnected, want: KindUnknown},
		{in: "attendance_marked", want: KindUnknown},
		{in: "", want: KindUnknown},
	}

	for _, tc := range cases {
		if got := KindOf(tc.in); got != tc.want {
			t.Fatalf("KindOf(%q)=%v want=%v", tc.in, got, tc.want)
		}
		if tc.want != KindUnknown && tc.want.Event() != tc.in {
			t.Fatalf("Kind(%v).Event()=%q want=%q", tc.want, tc.want.Event(), tc.in)
		}
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"event":" DONE ","data":{"classId":"c1"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Event != EventDone {
		t.Fatalf("event=%q want=%q", env.Event, EventDone)
	}
	var p ClassPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if p.ClassID != "c1" {
		t.Fatalf("classId=%q", p.ClassID)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"event":`))
	if err == nil {
		t.Fatalf("expected error")
	}
	var syn *json.SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("expected *json.SyntaxError, got %T", err)
	}

	if _, err := Decode([]byte(`{"data":{}}`)); !errors.Is(err, ErrMissingEvent) {
		t.Fatalf("expected ErrMissingEvent, got %v", err)
	}
}

func TestNew_NilData(t *testing.T) {
	t.Parallel()

	env, err := New(EventError, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if string(env.Data) != `{}` {
		t.Fatalf("data=%s", env.Data)
	}
}
