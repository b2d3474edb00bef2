package attendanceapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions.
const (
	ActionSessionStart       = "attendance.session.start"
	ActionSessionStartDenied = "attendance.session.start.denied"
)

// AuditEvent is one control-plane action worth keeping.
type AuditEvent struct {
	Action    string
	UserID    string
	ClassID   string
	SessionID string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// Auditor records control-plane actions. Failures are logged, never returned to callers.
type Auditor interface {
	Record(ctx context.Context, ev AuditEvent)
}

// LogAuditor writes audit events to the structured log.
type LogAuditor struct {
	Log *slog.Logger
}

func (a LogAuditor) Record(ctx context.Context, ev AuditEvent) {
	log := a.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "audit",
		"action", ev.Action,
		"user_id", ev.UserID,
		"class_id", ev.ClassID,
		"session_id", ev.SessionID,
		"ip", ipString(ev.IP),
		"meta", ev.Meta,
	)
}

// PostgresAuditor appends audit events to <schema>.audit_log.
type PostgresAuditor struct {
	pool  *pgxpool.Pool
	table string
	log   *slog.Logger
}

// NewPostgresAuditor returns an auditor writing to schema.audit_log.
func NewPostgresAuditor(pool *pgxpool.Pool, schema string, log *slog.Logger) *PostgresAuditor {
	if strings.TrimSpace(schema) == "" {
		schema = "attendance"
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditor{
		pool:  pool,
		table: pgx.Identifier{schema, "audit_log"}.Sanitize(),
		log:   log,
	}
}

func (a *PostgresAuditor) Record(ctx context.Context, ev AuditEvent) {
	if a == nil || a.pool == nil {
		return
	}
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return
	}

	var meta *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			meta = &s
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO `+a.table+` (
			action, user_id, class_id, session_id, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, action, trimOrNil(ev.UserID), trimOrNil(ev.ClassID), trimOrNil(ev.SessionID),
		trimOrNil(ipString(ev.IP)), trimOrNil(ev.UserAgent), meta)
	if err != nil {
		a.log.Error("attendance.audit.insert.fail", "err", err, "action", action)
	}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
