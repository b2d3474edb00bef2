// Package attendanceapi exposes the HTTP control endpoints of the attendance engine.
package attendanceapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/007-bg/Live-Attendance-System/cmd/identity"
	"github.com/007-bg/Live-Attendance-System/cmd/internal/attendance"
	"github.com/007-bg/Live-Attendance-System/cmd/internal/auth"
)

const maxBodyBytes = 4 << 10

// Sessions is the part of the lifecycle manager the HTTP surface needs.
type Sessions interface {
	Start(ctx context.Context, classID string) (attendance.Session, error)
	ActiveSessions(ctx context.Context) ([]attendance.Session, error)
}

// Rosters resolves class ownership.
type Rosters interface {
	GetRoster(ctx context.Context, classID string) (identity.Roster, error)
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	ResolveRequest(r *http.Request) (auth.Principal, error)
}

// Handler serves the attendance control endpoints.
type Handler struct {
	log      *slog.Logger
	sessions Sessions
	rosters  Rosters
	authn    Authenticator

	audit      Auditor
	trustProxy bool
}

// HandlerOption configures optional Handler behavior.
type HandlerOption func(*Handler)

// WithAuditor replaces the default log-backed auditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.audit = a
		}
	}
}

// WithTrustProxy makes audit IPs come from X-Forwarded-For / X-Real-IP.
func WithTrustProxy(trust bool) HandlerOption {
	return func(h *Handler) { h.trustProxy = trust }
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, sessions Sessions, rosters Rosters, authn Authenticator, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil || rosters == nil || authn == nil {
		return nil, errors.New("attendanceapi: missing dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{log: log, sessions: sessions, rosters: rosters, authn: authn}
	for _, opt := range opts {
		opt(h)
	}
	if h.audit == nil {
		h.audit = LogAuditor{Log: log}
	}
	return h, nil
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/class/start-attendance", h.StartAttendance)
	mux.HandleFunc("GET /api/class/active-sessions", h.ActiveSessions)
}

type startRequest struct {
	ClassID  string `json:"classId"`
	ClassID2 string `json:"class_id"`
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	ClassID   string    `json:"classId"`
	StartedAt time.Time `json:"startedAt"`
}

type activeSessionResponse struct {
	sessionResponse
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

// StartAttendance opens a session for a class the calling teacher owns.
func (h *Handler) StartAttendance(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	if p.Role != identity.RoleTeacher {
		writeError(w, http.StatusForbidden, "forbidden", "Only teachers can start attendance")
		return
	}

	var req startRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	classID := strings.TrimSpace(req.ClassID)
	if classID == "" {
		classID = strings.TrimSpace(req.ClassID2)
	}
	if classID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", attendance.MsgClassIDRequired)
		return
	}

	roster, err := h.rosters.GetRoster(r.Context(), classID)
	if identity.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "not_found", attendance.MsgClassNotFound)
		return
	}
	if err != nil {
		h.log.Error("attendance.api.start.roster.fail", "class_id", classID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if !roster.OwnedBy(p.UserID) {
		h.audit.Record(r.Context(), h.auditEvent(r, ActionSessionStartDenied, p, classID, ""))
		writeError(w, http.StatusForbidden, "forbidden", "Forbidden, not class teacher")
		return
	}

	s, err := h.sessions.Start(r.Context(), classID)
	if err != nil {
		h.writeLifecycleError(w, "attendance.api.start.fail", classID, err)
		return
	}
	h.audit.Record(r.Context(), h.auditEvent(r, ActionSessionStart, p, classID, s.SessionID))

	writeOK(w, http.StatusOK, sessionResponse{
		SessionID: s.SessionID,
		ClassID:   s.ClassID,
		StartedAt: s.StartedAt,
	})
}

// ActiveSessions lists active sessions: all of them for admins, owned classes for teachers.
func (h *Handler) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	if p.Role != identity.RoleTeacher && p.Role != identity.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "Only teachers and admins can list active sessions")
		return
	}

	list, err := h.sessions.ActiveSessions(r.Context())
	if err != nil {
		h.log.Error("attendance.api.active.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	out := make([]activeSessionResponse, 0, len(list))
	for _, s := range list {
		if p.Role == identity.RoleTeacher {
			roster, err := h.rosters.GetRoster(r.Context(), s.ClassID)
			if identity.IsNotFound(err) {
				continue
			}
			if err != nil {
				h.log.Error("attendance.api.active.roster.fail", "class_id", s.ClassID, "err", err)
				writeError(w, http.StatusInternalServerError, "server_error", "internal error")
				return
			}
			if !roster.OwnedBy(p.UserID) {
				continue
			}
		}
		sum := s.Summary()
		out = append(out, activeSessionResponse{
			sessionResponse: sessionResponse{SessionID: s.SessionID, ClassID: s.ClassID, StartedAt: s.StartedAt},
			Present:         sum.Present,
			Absent:          sum.Absent,
			Total:           sum.Total,
		})
	}
	writeOK(w, http.StatusOK, out)
}

// ---- helpers ----

func (h *Handler) auditEvent(r *http.Request, action string, p auth.Principal, classID, sessionID string) AuditEvent {
	return AuditEvent{
		Action:    action,
		UserID:    p.UserID,
		ClassID:   classID,
		SessionID: sessionID,
		IP:        clientIP(r, h.trustProxy),
		UserAgent: r.UserAgent(),
	}
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := h.authn.ResolveRequest(r)
	if err == nil && p.Authenticated() {
		return p, true
	}
	if err != nil && !errors.Is(err, auth.ErrUnauthenticated) {
		h.log.Error("attendance.api.auth.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "authentication unavailable")
		return auth.Principal{}, false
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication credentials were not provided or are invalid")
	return auth.Principal{}, false
}

func (h *Handler) writeLifecycleError(w http.ResponseWriter, event, classID string, err error) {
	msg := attendance.Message(err)
	switch {
	case attendance.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_input", msg)
	case attendance.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", msg)
	case attendance.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", msg)
	default:
		h.log.Error(event, "class_id", classID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
