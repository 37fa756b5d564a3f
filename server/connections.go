package server

import (
	"sync"

	"github.com/google/uuid"
)

// hub tracks the open websocket connections.
type hub struct {
	conns map[uuid.UUID]*wsConnection
	mu    sync.RWMutex
}

func newHub() *hub {
	return &hub{
		conns: make(map[uuid.UUID]*wsConnection),
	}
}

func (h *hub) Add(c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

func (h *hub) Remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

// Broadcast queues data on every connection, skipping full ones.
func (h *hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.enqueue(data)
	}
}
