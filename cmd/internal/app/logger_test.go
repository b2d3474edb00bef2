package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" Debug ": slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	} {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", in, got, want)
		}
	}
}

func TestNewLogger_JSONByDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "")

	log.Info("attendance.session.start", "class_id", "C1")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	log.Warn("attendance.finalize.already_applied", "class_id", "C1", "session_id", "sess-1")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "attendance.finalize.already_applied" || rec["class_id"] != "C1" || rec["service"] != serviceName {
		t.Fatalf("record=%v", rec)
	}
	if _, ok := rec[slog.SourceKey]; !ok {
		t.Fatalf("missing source: %v", rec)
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, "debug", " TEXT ")
	log.Debug("ws.connect", "conn_id", "c-1")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("expected text output, got %s", out)
	}
	for _, want := range []string{"level=DEBUG", "msg=ws.connect", "conn_id=c-1", "service=" + serviceName} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}
