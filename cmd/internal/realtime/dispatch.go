package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/007-bg/Live-Attendance-System/cmd/identity"
	"github.com/007-bg/Live-Attendance-System/cmd/internal/attendance"
	v1 "github.com/007-bg/Live-Attendance-System/shared/contracts/attendance/v1"
)

// Lifecycle is the session engine the gateway drives.
type Lifecycle interface {
	Mark(ctx context.Context, classID, studentID string, status attendance.Status) (attendance.Session, error)
	Summary(ctx context.Context, classID string) (attendance.Summary, error)
	StudentStatus(ctx context.Context, classID, studentID string) (string, error)
	Finalize(ctx context.Context, classID string) (attendance.FinalizeResult, error)
}

// route binds an inbound event kind to its role gate and handler.
type route struct {
	role   identity.Role
	denied string
	handle func(g *WSGateway, ctx context.Context, c *Client, data json.RawMessage) error
}

var routes = map[v1.Kind]route{
	v1.KindAttendanceMarked: {
		role:   identity.RoleTeacher,
		denied: "Only teachers can mark attendance",
		handle: (*WSGateway).onMark,
	},
	v1.KindTodaySummary: {
		role:   identity.RoleTeacher,
		denied: "Only teachers can request attendance summary",
		handle: (*WSGateway).onSummary,
	},
	v1.KindMyAttendance: {
		role:   identity.RoleStudent,
		denied: "Only students can request their own attendance",
		handle: (*WSGateway).onMyAttendance,
	},
	v1.KindDone: {
		role:   identity.RoleTeacher,
		denied: "Only teachers can end attendance session",
		handle: (*WSGateway).onDone,
	},
}

// validationError is reported to the client verbatim.
type validationError string

func (e validationError) Error() string { return string(e) }

const msgInvalidData = "Invalid event data"

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return validationError(msgInvalidData)
	}
	return nil
}

func missingFields(fields ...[2]string) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return validationError("Missing required field(s): " + strings.Join(missing, ", "))
}

func classIDFrom(data json.RawMessage) (string, error) {
	var p v1.ClassPayload
	if err := decodeData(data, &p); err != nil {
		return "", err
	}
	p.ClassID = strings.TrimSpace(p.ClassID)
	if p.ClassID == "" {
		return "", validationError(attendance.MsgClassIDRequired)
	}
	return p.ClassID, nil
}

func (g *WSGateway) onMark(ctx context.Context, _ *Client, data json.RawMessage) error {
	var p v1.AttendanceMarkedPayload
	if err := decodeData(data, &p); err != nil {
		return err
	}
	if err := missingFields(
		[2]string{"classId", p.ClassID},
		[2]string{"studentId", p.StudentID},
		[2]string{"status", p.Status},
	); err != nil {
		return err
	}

	s, err := g.lifecycle.Mark(ctx, p.ClassID, p.StudentID, attendance.Status(p.Status))
	if err != nil {
		return err
	}
	studentID := strings.TrimSpace(p.StudentID)
	return g.broadcast(v1.EventAttendanceMarked, v1.AttendanceMarkedPayload{
		ClassID:   s.ClassID,
		StudentID: studentID,
		Status:    string(s.Attendance[studentID]),
	})
}

func (g *WSGateway) onSummary(ctx context.Context, _ *Client, data json.RawMessage) error {
	classID, err := classIDFrom(data)
	if err != nil {
		return err
	}
	sum, err := g.lifecycle.Summary(ctx, classID)
	if err != nil {
		return err
	}
	return g.broadcast(v1.EventTodaySummary, v1.SummaryPayload{
		ClassID: classID,
		Present: sum.Present,
		Absent:  sum.Absent,
		Total:   sum.Total,
	})
}

func (g *WSGateway) onMyAttendance(ctx context.Context, c *Client, data json.RawMessage) error {
	classID, err := classIDFrom(data)
	if err != nil {
		return err
	}
	status, err := g.lifecycle.StudentStatus(ctx, classID, c.UserID)
	if err != nil {
		return err
	}
	env, err := v1.New(v1.EventMyAttendance, v1.MyAttendancePayload{ClassID: classID, Status: status})
	if err != nil {
		return err
	}
	if !g.enqueue(ctx, c, env) {
		return errors.New("send queue full")
	}
	return nil
}

func (g *WSGateway) onDone(ctx context.Context, _ *Client, data json.RawMessage) error {
	classID, err := classIDFrom(data)
	if err != nil {
		return err
	}
	res, err := g.lifecycle.Finalize(ctx, classID)
	if err != nil {
		return err
	}
	return g.broadcast(v1.EventDone, v1.DonePayload{
		ClassID:   classID,
		SessionID: res.SessionID,
		Message:   attendance.MsgAttendanceSaved,
		Present:   res.Summary.Present,
		Absent:    res.Summary.Absent,
		Total:     res.Summary.Total,
	})
}

func (g *WSGateway) broadcast(event v1.Event, data any) error {
	env, err := v1.New(event, data)
	if err != nil {
		return err
	}
	g.hub.Group(DefaultGroup).Broadcast(env)
	return nil
}

// errorResult classifies a handler error for metrics.
func errorResult(err error) string {
	var ve validationError
	switch {
	case errors.As(err, &ve), attendance.IsInvalidInput(err):
		return "invalid"
	case attendance.IsNotFound(err):
		return "not_found"
	default:
		return resultFailed
	}
}

// clientMessage is the ERROR text for a handler failure.
func clientMessage(err error) string {
	var ve validationError
	if errors.As(err, &ve) {
		return string(ve)
	}
	return attendance.Message(err)
}
