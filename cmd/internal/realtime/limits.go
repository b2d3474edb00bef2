package realtime

import "time"

const (
	// Max bytes per inbound websocket frame.
	maxFrameBytes = 16 << 10 // 16 KiB

	wsSubprotocolV1 = "attendance.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 16

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second
	wsMaxPingFailures     = 3

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)

// Default origin allowlist (local development).
var defaultAllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}
