package realtime

import (
	"sync"

	"github.com/007-bg/Live-Attendance-System/cmd/identity"
	v1 "github.com/007-bg/Live-Attendance-System/shared/contracts/attendance/v1"
)

// Client is one authenticated websocket connection.
//
// Send is never closed by the server so concurrent broadcasters cannot panic;
// done signals the connection goroutines to stop. Close is idempotent.
type Client struct {
	ConnID string
	UserID string
	Role   identity.Role
	Send   chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(connID, userID string, role identity.Role, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = wsMinSendQueueSize
	}
	return &Client{
		ConnID: connID,
		UserID: userID,
		Role:   role,
		Send:   make(chan v1.Envelope, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
