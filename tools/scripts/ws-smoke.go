// Package main provides a CI-friendly end-to-end smoke test for the attendance server.
//
// It validates:
//   - session start over HTTP
//   - teacher + student handshake and CONNECTED
//   - ATTENDANCE_MARKED fanout to both clients
//   - role gate (a student mark is refused with ERROR)
//   - TODAY_SUMMARY broadcast
//   - MY_ATTENDANCE unicast
//   - DONE broadcast after persistence
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/007-bg/Live-Attendance-System/cmd/security/token"
	v1 "github.com/007-bg/Live-Attendance-System/shared/contracts/attendance/v1"
)

const (
	defaultSubprotocol = "attendance.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL        = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		apiURL       = flag.String("api", "", "HTTP base URL (derived from -url when empty)")
		origin       = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		classID      = flag.String("class", "C1", "Class ID to run the session for")
		teacherID    = flag.String("teacher", "t1", "Teacher user ID (used with -secret)")
		studentID    = flag.String("student", "S1", "Student user ID (used with -secret)")
		teacherToken = flag.String("teacher-token", "", "Teacher bearer token")
		studentToken = flag.String("student-token", "", "Student bearer token")
		secret       = flag.String("secret", os.Getenv("ATTENDANCE_JWT_SECRET"), "HS256 secret used to mint tokens when none are given")
		timeout      = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose      = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	base := strings.TrimSpace(*apiURL)
	if base == "" {
		base = httpBaseURL(*wsURL)
	}

	tTok, sTok := *teacherToken, *studentToken
	if tTok == "" || sTok == "" {
		tTok, sTok = mustMintTokens(*secret, *teacherID, *studentID, tTok, sTok)
	}

	root := context.Background()

	sessionID := mustStartSession(root, base, tTok, *classID, *timeout)
	if *verbose {
		fmt.Printf("session started: class=%s session=%s\n", *classID, sessionID)
	}

	teacher := mustConnect(root, "teacher", *wsURL, *origin, tTok, *timeout)
	defer closeWS(teacher.conn)

	student := mustConnect(root, "student", *wsURL, *origin, sTok, *timeout)
	defer closeWS(student.conn)

	// Teacher marks the student present; both sides see the broadcast.
	mustWrite(root, teacher, v1.EventAttendanceMarked, v1.AttendanceMarkedPayload{
		ClassID: *classID, StudentID: *studentID, Status: "present",
	}, *timeout)
	for _, c := range []*smokeClient{teacher, student} {
		env := c.mustReadUntilEvent(root, v1.EventAttendanceMarked, *timeout)
		var p v1.AttendanceMarkedPayload
		mustDecode(env, &p)
		if p.StudentID != *studentID || p.Status != "present" {
			fatalf("mark broadcast mismatch (%s): %+v", c.name, p)
		}
	}

	// A student mark must be refused without a broadcast.
	mustWrite(root, student, v1.EventAttendanceMarked, v1.AttendanceMarkedPayload{
		ClassID: *classID, StudentID: *studentID, Status: "absent",
	}, *timeout)
	mustReadError(root, student, *timeout)

	mustWrite(root, teacher, v1.EventTodaySummary, v1.ClassPayload{ClassID: *classID}, *timeout)
	for _, c := range []*smokeClient{teacher, student} {
		env := c.mustReadUntilEvent(root, v1.EventTodaySummary, *timeout)
		var p v1.SummaryPayload
		mustDecode(env, &p)
		if p.Present < 1 || p.Total < 1 {
			fatalf("summary mismatch (%s): %+v", c.name, p)
		}
	}

	mustWrite(root, student, v1.EventMyAttendance, v1.ClassPayload{ClassID: *classID}, *timeout)
	mine := student.mustReadUntilEvent(root, v1.EventMyAttendance, *timeout)
	var mp v1.MyAttendancePayload
	mustDecode(mine, &mp)
	if mp.Status != "present" {
		fatalf("my attendance mismatch: %+v", mp)
	}

	mustWrite(root, teacher, v1.EventDone, v1.ClassPayload{ClassID: *classID}, *timeout)
	var done v1.DonePayload
	for _, c := range []*smokeClient{teacher, student} {
		env := c.mustReadUntilEvent(root, v1.EventDone, *timeout)
		mustDecode(env, &done)
		if done.SessionID != sessionID {
			fatalf("done session mismatch (%s): got=%q want=%q", c.name, done.SessionID, sessionID)
		}
	}

	fmt.Printf("OK: class=%s session=%s present=%d absent=%d total=%d\n",
		*classID, sessionID, done.Present, done.Absent, done.Total)
}

func mustMintTokens(secret, teacherID, studentID, tTok, sTok string) (string, string) {
	if strings.TrimSpace(secret) == "" {
		fatalf("either -teacher-token/-student-token or -secret is required")
	}
	tm, err := token.NewManager(token.Config{Secret: []byte(secret), TTL: 10 * time.Minute})
	if err != nil {
		fatalf("token manager: %v", err)
	}
	if tTok == "" {
		if tTok, err = tm.Issue(teacherID); err != nil {
			fatalf("issue teacher token: %v", err)
		}
	}
	if sTok == "" {
		if sTok, err = tm.Issue(studentID); err != nil {
			fatalf("issue student token: %v", err)
		}
	}
	return tTok, sTok
}

func mustStartSession(parent context.Context, base, tok, classID string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"classId": classID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/class/start-attendance", bytes.NewReader(body))
	if err != nil {
		fatalf("build start request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("start session: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))

	if resp.StatusCode != http.StatusOK {
		fatalf("start session: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Success bool `json:"success"`
		Data    struct {
			SessionID string `json:"sessionId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		fatalf("decode start response: %v", err)
	}
	if !out.Success || out.Data.SessionID == "" {
		fatalf("start session: unexpected body %s", raw)
	}
	return out.Data.SessionID
}

func httpBaseURL(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return wsURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery = "", ""
	return strings.TrimRight(u.String(), "/")
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, tok string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Authorization", "Bearer "+tok)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	c.mustReadUntilEvent(parent, v1.EventConnected, stepTimeout)
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			env, err := v1.Decode(data)
			if err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

// mustReadUntilEvent skips unrelated broadcasts and fails on ERROR.
func (c *smokeClient) mustReadUntilEvent(parent context.Context, want v1.Event, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", want, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", want, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", want, c.name)
			}
			if env.Event == want {
				return env
			}
			if env.Event == v1.EventError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Data, &ep)
				fatalf("server error (%s): %q", c.name, ep.Message)
			}
		}
	}
}

func mustReadError(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for ERROR (%s)", c.name)
		case err := <-c.errCh:
			fatalf("connection error while waiting for ERROR (%s): %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for ERROR (%s)", c.name)
			}
			switch env.Event {
			case v1.EventError:
				return
			case v1.EventAttendanceMarked:
				fatalf("refused mark was broadcast (%s)", c.name)
			}
		}
	}
}

func mustWrite(parent context.Context, c *smokeClient, event v1.Event, data any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	env, err := v1.New(event, data)
	if err != nil {
		fatalf("build envelope: %v", err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed (%s): %v", c.name, err)
	}
}

func mustDecode(env v1.Envelope, dst any) {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		fatalf("decode %s data: %v", env.Event, err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
