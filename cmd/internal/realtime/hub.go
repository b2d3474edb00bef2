package realtime

import (
	"log/slog"
	"sync"
)

// DefaultGroup is the single broadcast group every authenticated connection joins.
const DefaultGroup = "attendance"

// Hub owns named broadcast groups and hands out stable group handles.
type Hub struct {
	log     *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	groups map[string]*Group
}

// NewHub constructs a Hub. metrics may be nil.
func NewHub(log *slog.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		metrics: metrics,
		groups:  make(map[string]*Group),
	}
}

// Group returns the named group, creating it on first use.
func (h *Hub) Group(name string) *Group {
	h.mu.RLock()
	g, ok := h.groups[name]
	h.mu.RUnlock()
	if ok {
		return g
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.groups[name]; ok {
		return g
	}
	g = NewGroup(h.log, h.metrics, name)
	h.groups[name] = g
	return g
}

// Shutdown signals every member of every group to disconnect and returns how many were signalled.
func (h *Hub) Shutdown() int {
	h.mu.RLock()
	groups := make([]*Group, 0, len(h.groups))
	for _, g := range h.groups {
		groups = append(groups, g)
	}
	h.mu.RUnlock()

	n := 0
	for _, g := range groups {
		n += g.closeAll()
	}
	h.log.Info("hub.shutdown", "clients", n)
	return n
}
