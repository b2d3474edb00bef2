package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/007-bg/Live-Attendance-System/cmd/internal/auth"
	v1 "github.com/007-bg/Live-Attendance-System/shared/contracts/attendance/v1"
)

// Client-facing texts.
const (
	msgAuthRequired  = "Authentication required. Please provide a valid JWT token."
	msgAuthFailed    = "Authentication temporarily unavailable. Please retry."
	msgConnected     = "WebSocket connection established"
	msgInvalidJSON   = "Invalid JSON format"
	msgMissingEvent  = "Missing event"
	msgRateLimited   = "Too many events, slow down"
	msgInternalError = "Internal error"
)

// Authenticator resolves the principal behind an upgrade request.
type Authenticator interface {
	ResolveRequest(r *http.Request) (auth.Principal, error)
}

// GatewayConfig carries transport policy. Zero values select defaults.
type GatewayConfig struct {
	AllowedOrigins []string
	OriginRequired bool
	// InsecureSkipVerify disables the library's own origin check. Dev only.
	InsecureSkipVerify bool

	SendQueueSize int
	WriteTimeout  time.Duration
	// ReadIdleTimeout closes connections that send nothing for this long. Zero disables it.
	ReadIdleTimeout time.Duration

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	RateEvents int
	RateWindow time.Duration
}

// WSGateway is the websocket entrypoint for live attendance.
//
// It enforces origin policy, authenticates before joining the broadcast group,
// applies rate limits and heartbeats, and routes validated envelopes through
// a static dispatch table to the Lifecycle.
type WSGateway struct {
	log       *slog.Logger
	hub       *Hub
	lifecycle Lifecycle
	authn     Authenticator
	metrics   *Metrics

	originRequired bool
	allowedOrigins []string
	// Derived for websocket.Accept, which only authorizes cross-origin hosts listed here.
	originPatterns []string
	skipVerify     bool

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewWSGateway constructs a gateway. log and metrics may be nil.
func NewWSGateway(log *slog.Logger, hub *Hub, lifecycle Lifecycle, authn Authenticator, metrics *Metrics, cfg GatewayConfig) (*WSGateway, error) {
	if lifecycle == nil {
		return nil, errors.New("realtime: nil lifecycle")
	}
	if authn == nil {
		return nil, errors.New("realtime: nil authenticator")
	}
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log, metrics)
	}

	g := &WSGateway{
		log:       log,
		hub:       hub,
		lifecycle: lifecycle,
		authn:     authn,
		metrics:   metrics,

		originRequired: cfg.OriginRequired,
		allowedOrigins: cleanList(cfg.AllowedOrigins),
		skipVerify:     cfg.InsecureSkipVerify,

		writeTimeout:     orDuration(cfg.WriteTimeout, wsDefaultWriteTimeout),
		readIdleTimeout:  max(cfg.ReadIdleTimeout, 0),
		sendQueueSize:    max(orInt(cfg.SendQueueSize, wsDefaultSendQueueSize), wsMinSendQueueSize),
		heartbeatEvery:   orDuration(cfg.HeartbeatInterval, heartbeatInterval),
		heartbeatTimeout: orDuration(cfg.HeartbeatTimeout, heartbeatTimeout),
		rateEvents:       orInt(cfg.RateEvents, rateLimitEvents),
		rateWindow:       orDuration(cfg.RateWindow, rateLimitWindow),
	}
	if cfg.AllowedOrigins == nil {
		g.allowedOrigins = defaultAllowedOrigins
	}
	g.originPatterns = deriveOriginPatterns(g.allowedOrigins)
	return g, nil
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and runs the connection until either side closes.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.metrics.connect("origin_rejected")
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	principal, authErr := g.authn.ResolveRequest(r)

	// Server-wide read/write timeouts would otherwise cut long-lived sockets.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Offered, not required: plain clients get no subprotocol.
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.skipVerify,
	})
	if err != nil {
		g.metrics.connect(resultFailed)
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	if authErr != nil || !principal.Authenticated() {
		g.reject(r.Context(), conn, authErr)
		return
	}

	connID := NewConnID()
	client := NewClient(connID, principal.UserID, principal.Role, g.sendQueueSize)
	group := g.hub.Group(DefaultGroup)
	log := g.log.With("conn_id", connID, "user_id", principal.UserID, "role", principal.Role)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			group.Leave(connID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
			g.metrics.closed()
			log.Info("ws.disconnect", "reason", reason)
		})
	}

	// CONNECTED is queued before Join so it precedes any class broadcast.
	if env, err := v1.New(v1.EventConnected, v1.ConnectedPayload{
		Message: msgConnected,
		UserID:  principal.UserID,
		Role:    string(principal.Role),
	}); err == nil {
		g.enqueue(ctx, client, env)
	}

	group.Join(client)
	g.metrics.connect(resultOK)
	g.metrics.opened()
	log.Info("ws.connect", "remote", r.RemoteAddr, "subprotocol", conn.Subprotocol())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	// Hub.Shutdown closes clients from outside the read loop.
	go func() {
		select {
		case <-ctx.Done():
		case <-client.Done():
			shutdown(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					log.Info("ws.ping.fail", "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

readLoop:
	for {
		data, err := g.readFrame(ctx, conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.Allow(time.Now()) {
			g.metrics.event(resultUnknown, resultRateLimited)
			g.trySendError(ctx, client, msgRateLimited)
			continue readLoop
		}

		g.dispatch(ctx, log, client, data)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// reject sends a single ERROR frame and closes the connection.
func (g *WSGateway) reject(ctx context.Context, conn *websocket.Conn, authErr error) {
	msg, code := msgAuthRequired, websocket.StatusPolicyViolation
	if authErr != nil && !errors.Is(authErr, auth.ErrUnauthenticated) {
		msg, code = msgAuthFailed, websocket.StatusTryAgainLater
		g.log.Error("ws.auth.fail", "err", authErr)
	} else {
		g.log.Info("ws.reject.auth", "err", authErr)
	}
	g.metrics.connect("unauthenticated")

	if env, err := v1.New(v1.EventError, v1.ErrorPayload{Message: msg}); err == nil {
		_ = writeEnvelope(ctx, conn, env, g.writeTimeout)
	}
	_ = conn.Close(code, "authentication required")
}

// dispatch decodes one inbound frame and runs its handler. Every failure
// becomes an ERROR frame; the connection stays open.
func (g *WSGateway) dispatch(ctx context.Context, log *slog.Logger, client *Client, data []byte) {
	env, err := v1.Decode(data)
	switch {
	case errors.Is(err, v1.ErrMissingEvent):
		g.metrics.event(resultUnknown, resultUnknown)
		g.trySendError(ctx, client, msgMissingEvent)
		return
	case err != nil:
		g.metrics.event(resultUnknown, resultMalformed)
		g.trySendError(ctx, client, msgInvalidJSON)
		return
	}

	kind := v1.KindOf(env.Event)
	rt, ok := routes[kind]
	if !ok {
		g.metrics.event(resultUnknown, resultUnknown)
		g.trySendError(ctx, client, fmt.Sprintf("Unknown event: %s", env.Event))
		return
	}
	event := string(kind.Event())

	if client.Role != rt.role {
		g.metrics.event(event, resultDenied)
		log.Info("ws.event.denied", "event", event)
		g.trySendError(ctx, client, rt.denied)
		return
	}

	// Lifecycle work outlives the connection that triggered it.
	opCtx := context.WithoutCancel(ctx)
	if err := g.runHandler(opCtx, rt, client, env.Data); err != nil {
		g.metrics.event(event, errorResult(err))
		log.Info("ws.event.fail", "event", event, "err", err)
		g.trySendError(ctx, client, clientMessage(err))
		return
	}
	g.metrics.event(event, resultOK)
}

func (g *WSGateway) runHandler(ctx context.Context, rt route, client *Client, data json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			g.log.Error("ws.handler.panic", "conn_id", client.ConnID, "panic", fmt.Sprint(rec))
			err = errors.New(msgInternalError)
		}
	}()
	return rt.handle(g, ctx, client, data)
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, client *Client, msg string) {
	env, err := v1.New(v1.EventError, v1.ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	_ = g.enqueue(ctx, client, env)
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- frame IO ----

func (g *WSGateway) readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	if g.readIdleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.readIdleTimeout)
		defer cancel()
	}
	_, data, err := conn.Read(ctx)
	return data, err
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.allowedOrigins {
		if a == "*" {
			return nil
		}
		if strings.EqualFold(origin, a) {
			return nil
		}
		// Host match ignores scheme and port.
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns returns the allowlisted hosts in the form websocket.Accept
// matches cross-origin requests against. A "*" entry allows every host.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if a == "*" {
			return []string{"*"}
		}
		// Accept matches patterns against host[:port] of the Origin.
		if h := originHostOnly(a); h != "" {
			seen[h] = struct{}{}
			seen[h+":*"] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ---- config helpers ----

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
