package app

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/007-bg/Live-Attendance-System/cmd/security/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ATTENDANCE_JWT_SECRET", testSecret)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "info" {
		t.Fatalf("log=%q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.SessionKeyPrefix != "attendance:session:" {
		t.Fatalf("SessionKeyPrefix=%q", cfg.SessionKeyPrefix)
	}
	if cfg.SessionTTL != 0 {
		t.Fatalf("SessionTTL=%v want 0", cfg.SessionTTL)
	}
	if cfg.JWTTTL != 15*time.Minute {
		t.Fatalf("JWTTTL=%v", cfg.JWTTTL)
	}
	if cfg.WSSendQueue != 256 || cfg.WSRateEvents != 120 || cfg.WSRateWindow != 10*time.Second {
		t.Fatalf("ws defaults: queue=%d rate=%d/%v", cfg.WSSendQueue, cfg.WSRateEvents, cfg.WSRateWindow)
	}
	if cfg.WSReadIdleTimeout != 0 || cfg.WSInsecureSkipVerify {
		t.Fatalf("ws read idle=%v skip verify=%v", cfg.WSReadIdleTimeout, cfg.WSInsecureSkipVerify)
	}
	if cfg.DBMaxConns != 10 || cfg.MaxHeaderBytes != 1<<20 {
		t.Fatalf("DBMaxConns=%d MaxHeaderBytes=%d", cfg.DBMaxConns, cfg.MaxHeaderBytes)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ATTENDANCE_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("ATTENDANCE_SESSION_TTL", "2h")
	t.Setenv("ATTENDANCE_WS_ALLOWED_ORIGINS", "http://localhost:3000,https://app.example.com")
	t.Setenv("ATTENDANCE_WS_ORIGIN_REQUIRED", "true")
	t.Setenv("ATTENDANCE_WS_READ_IDLE_TIMEOUT", "90s")
	t.Setenv("ATTENDANCE_WS_INSECURE_SKIP_VERIFY", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("SessionTTL=%v", cfg.SessionTTL)
	}
	if len(cfg.WSAllowedOrigins) != 2 || cfg.WSAllowedOrigins[1] != "https://app.example.com" {
		t.Fatalf("WSAllowedOrigins=%v", cfg.WSAllowedOrigins)
	}
	if !cfg.WSOriginRequired {
		t.Fatalf("WSOriginRequired not parsed")
	}
	if cfg.WSReadIdleTimeout != 90*time.Second || !cfg.WSInsecureSkipVerify {
		t.Fatalf("ws read idle=%v skip verify=%v", cfg.WSReadIdleTimeout, cfg.WSInsecureSkipVerify)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("ATTENDANCE_SESSION_TTL", "soon")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "missing", cfg: Config{}, wantErr: token.ErrSecretMissing},
		{name: "short", cfg: Config{JWTSecret: "short"}, wantErr: token.ErrSecretTooShort},
		{name: "ok", cfg: Config{JWTSecret: testSecret}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateSecurityConfig(tc.cfg)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v want %v", err, tc.wantErr)
			}
		})
	}

	err := ValidateSecurityConfig(Config{JWTSecret: testSecret, WSOriginRequired: true})
	if err == nil {
		t.Fatalf("expected error for required origin without allow-list")
	}
}

func testApp(t *testing.T, mutate func(*Config)) *App {
	t.Helper()

	cfg := Config{
		JWTSecret:     testSecret,
		JWTTTL:        time.Minute,
		SQLitePath:    ":memory:",
		DirectoryFile: writeSeed(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.json")
	seed := `{"users":[{"id":"t1","role":"teacher"}],"classes":[{"id":"C1","teacherId":"t1","studentIds":[]}]}`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestApp_OperationalEndpoints(t *testing.T) {
	a := testApp(t, nil)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, resp.StatusCode)
		}
		if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("GET %s missing security headers", path)
		}
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status=%d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics output missing go collector")
	}
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	a := testApp(t, func(c *Config) { c.ReadinessRequireDB = true })
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", resp.StatusCode)
	}
}

func TestApp_StartAttendanceRoute(t *testing.T) {
	a := testApp(t, nil)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	tokens, err := token.NewManager(token.Config{Secret: []byte(testSecret), TTL: time.Minute})
	if err != nil {
		t.Fatalf("token.NewManager: %v", err)
	}
	raw, err := tokens.Issue("t1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/class/start-attendance", strings.NewReader(`{"classId":"C1"}`))
	req.Header.Set("Authorization", "Bearer "+raw)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestNew_RejectsMissingSecret(t *testing.T) {
	_, err := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !errors.Is(err, token.ErrSecretMissing) {
		t.Fatalf("err=%v", err)
	}
}
