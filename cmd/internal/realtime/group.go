package realtime

import (
	"log/slog"
	"sync"

	v1 "github.com/007-bg/Live-Attendance-System/shared/contracts/attendance/v1"
)

// Group is an in-memory membership + broadcast fanout primitive.
//
// Concurrency guarantees:
//   - Join/Leave are safe under concurrent Broadcast.
//   - Broadcast never blocks (drops under backpressure).
//   - Broadcast is panic-safe because Client.Send is never closed by the server.
//   - Envelopes from one publisher reach each member in publish order.
type Group struct {
	log     *slog.Logger
	metrics *Metrics
	Name    string

	mu      sync.RWMutex
	members map[string]*Client
}

// NewGroup constructs an empty group.
func NewGroup(log *slog.Logger, metrics *Metrics, name string) *Group {
	if log == nil {
		log = slog.Default()
	}
	return &Group{
		log:     log,
		metrics: metrics,
		Name:    name,
		members: make(map[string]*Client),
	}
}

// Join adds a client to membership.
func (g *Group) Join(client *Client) {
	if g == nil || client == nil || client.ConnID == "" {
		return
	}

	g.mu.Lock()
	g.members[client.ConnID] = client
	n := len(g.members)
	g.mu.Unlock()

	g.log.Debug("group.member.join", "group", g.Name, "conn_id", client.ConnID, "user_id", client.UserID, "members", n)
}

// Leave removes a client from membership and signals shutdown for that client.
func (g *Group) Leave(connID string) {
	if g == nil || connID == "" {
		return
	}

	g.mu.Lock()
	cl := g.members[connID]
	delete(g.members, connID)
	g.mu.Unlock()

	// Remove first, then close, so no broadcaster holds a member being torn down.
	if cl != nil {
		cl.Close()
	}

	g.log.Debug("group.member.leave", "group", g.Name, "conn_id", connID)
}

// Len returns the current member count.
func (g *Group) Len() int {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// closeAll signals every member to stop. Members leave on their own as their connections unwind.
func (g *Group) closeAll() int {
	g.mu.RLock()
	members := make([]*Client, 0, len(g.members))
	for _, m := range g.members {
		members = append(members, m)
	}
	g.mu.RUnlock()

	for _, m := range members {
		m.Close()
	}
	return len(members)
}

// Broadcast fans env out to every member and returns how many copies were queued.
// Members whose queue is full or who are shutting down are skipped.
func (g *Group) Broadcast(env v1.Envelope) int {
	if g == nil {
		return 0
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	delivered := 0
	for _, m := range g.members {
		if m == nil {
			continue
		}

		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- env:
			delivered++
		default:
			g.metrics.broadcastDropped()
			g.log.Warn("group.broadcast.drop", "group", g.Name, "conn_id", m.ConnID, "event", env.Event)
		}
	}
	return delivered
}
