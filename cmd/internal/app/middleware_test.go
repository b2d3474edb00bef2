package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// syncBuffer lets the server goroutine log while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line is not json: %q", line)
		}
		out = append(out, rec)
	}
	return out
}

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantLevel  slog.Level
		wantResult string
		wantClass  string
	}{
		{status: http.StatusOK, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "2xx"},
		{status: http.StatusSwitchingProtocols, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "1xx"},
		{status: http.StatusConflict, wantLevel: slog.LevelWarn, wantResult: "client_error", wantClass: "4xx"},
		{status: http.StatusServiceUnavailable, wantLevel: slog.LevelError, wantResult: "server_error", wantClass: "5xx"},
		{status: 700, wantLevel: slog.LevelError, wantResult: "server_error", wantClass: "unknown"},
	}

	for _, tc := range cases {
		level, result := requestLogMeta(tc.status)
		if level != tc.wantLevel || result != tc.wantResult {
			t.Fatalf("status=%d level=%v result=%q; want level=%v result=%q", tc.status, level, result, tc.wantLevel, tc.wantResult)
		}
		if got := statusClass(tc.status); got != tc.wantClass {
			t.Fatalf("statusClass(%d)=%q want=%q", tc.status, got, tc.wantClass)
		}
	}
}

func TestWithRequestLogging_RecordsOutcome(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"success":false}`)
	}), log)

	req := httptest.NewRequest(http.MethodPost, "/api/class/start-attendance", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	recs := buf.records(t)
	if len(recs) != 1 {
		t.Fatalf("records=%v", recs)
	}
	rec := recs[0]
	if rec["msg"] != "http.request" || rec["level"] != "WARN" || rec["path"] != "/api/class/start-attendance" {
		t.Fatalf("record=%v", rec)
	}
	if rec["status"] != float64(http.StatusConflict) || rec["result"] != "client_error" || rec["bytes"] != float64(len(`{"success":false}`)) {
		t.Fatalf("record=%v", rec)
	}
}

func TestWithRequestLogging_WebSocketUpgradePassesThrough(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Hijacker); !ok {
			t.Errorf("wrapped writer lost http.Hijacker")
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		typ, b, err := conn.Read(ctx)
		if err != nil {
			return
		}
		_ = conn.Write(ctx, typ, b)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})

	srv := httptest.NewServer(WithRequestLogging(WithSecurityHeaders(ws), log))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("upgrade response missing security headers: %q", got)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"event":"TODAY_SUMMARY"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, b, err := conn.Read(ctx)
	if err != nil || string(b) != `{"event":"TODAY_SUMMARY"}` {
		t.Fatalf("echo=%q err=%v", b, err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(10 * time.Second)
	for {
		recs := buf.records(t)
		if len(recs) == 1 {
			if recs[0]["status"] != float64(http.StatusSwitchingProtocols) || recs[0]["path"] != "/ws" {
				t.Fatalf("record=%v", recs[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("upgrade was not logged: %v", recs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWithCORS_PreflightAllowsAuthorizationHeader(t *testing.T) {
	t.Parallel()

	cfg := Config{
		CORSAllowedOrigins:   []string{"https://app.example.com/"},
		CORSAllowCredentials: true,
		CORSMaxAgeSeconds:    600,
	}

	h := WithCORS(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("next handler should not be called for preflight")
	}), cfg, discardLogger())

	req := httptest.NewRequest(http.MethodOptions, "/api/class/start-attendance", nil)
	req.Header.Set("Origin", "https://APP.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	want := map[string]string{
		"Access-Control-Allow-Origin":      "https://APP.example.com",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Allow-Methods":     "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers":     "Authorization, Content-Type",
		"Access-Control-Max-Age":           "600",
		"Vary":                             "Origin",
	}
	for k, v := range want {
		if got := rr.Header().Get(k); got != v {
			t.Fatalf("%s=%q want %q", k, got, v)
		}
	}
}

func TestWithCORS_ActualRequestCarriesHeaders(t *testing.T) {
	t.Parallel()

	cfg := Config{CORSAllowedOrigins: []string{"https://app.example.com"}}

	var gotAuth string
	h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}), cfg, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/class/start-attendance", strings.NewReader(`{"classId":"C1"}`))
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Authorization", "Bearer token")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || gotAuth != "Bearer token" {
		t.Fatalf("status=%d auth=%q", rr.Code, gotAuth)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin mismatch: %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("credentials allowed without config: %q", got)
	}
}

func TestWithCORS_OriginPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		allowed []string
		origin  string
		want    int
	}{
		{name: "disallowed", allowed: []string{"https://app.example.com"}, origin: "https://evil.example.com", want: http.StatusForbidden},
		{name: "wildcard port", allowed: []string{"http://127.0.0.1:*"}, origin: "http://127.0.0.1:55123", want: http.StatusOK},
		{name: "wildcard rejects non numeric port", allowed: []string{"http://127.0.0.1:*"}, origin: "http://127.0.0.1:abc", want: http.StatusForbidden},
		{name: "no origin header", allowed: []string{"https://app.example.com"}, origin: "", want: http.StatusOK},
		{name: "empty allow list", allowed: nil, origin: "https://anything.example.com", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			called := false
			h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}), Config{CORSAllowedOrigins: tc.allowed}, discardLogger())

			req := httptest.NewRequest(http.MethodGet, "/api/class/active-sessions", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("status=%d want %d", rr.Code, tc.want)
			}
			if called != (tc.want == http.StatusOK) {
				t.Fatalf("next called=%v", called)
			}
		})
	}
}

func TestWithSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/class/unknown", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for k, v := range want {
		if got := rr.Header().Get(k); got != v {
			t.Fatalf("%s=%q want %q", k, got, v)
		}
	}
}
