package ytbridge

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Hub hands out one bridge per user. A bridge outlives the session that
// drives it so a reopened page reconnects to the same player state.
type Hub struct {
	mu      sync.Mutex
	bridges map[string]*Bridge
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{bridges: make(map[string]*Bridge)}
}

// Get returns the bridge for userID, creating it on first use.
func (h *Hub) Get(userID string) *Bridge {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.bridges[userID]
	if !ok {
		b = New()
		h.bridges[userID] = b
	}
	return b
}

// Attached reports whether userID has a bridge with a page connected. It
// never creates a bridge.
func (h *Hub) Attached(userID string) bool {
	h.mu.Lock()
	b, ok := h.bridges[userID]
	h.mu.Unlock()
	return ok && b.Attached()
}

// Release forgets the bridge for userID unless a page is still attached to it.
func (h *Hub) Release(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.bridges[userID]; ok && !b.Attached() {
		delete(h.bridges, userID)
		zlog.Debug().Msgf("ytbridge: bridge released: user=%s bridges=%d", userID, len(h.bridges))
	}
}

// Len returns the number of bridges.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bridges)
}
