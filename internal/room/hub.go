package room

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/astromitra/astromitra/internal/models"
)

// Hub owns the live rooms, keyed by roomId. Different rooms are fully
// independent; the hub lock only guards the map itself.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	ctx       context.Context
	lifecycle Lifecycle
	opt       Options
	log       *logrus.Logger
}

func NewHub(ctx context.Context, lc Lifecycle, opt Options, log *logrus.Logger) *Hub {
	return &Hub{
		rooms:     make(map[string]*Room),
		ctx:       ctx,
		lifecycle: lc,
		opt:       opt,
		log:       log,
	}
}

// SetLifecycle breaks the construction cycle between the hub and the
// session service; must be called before the first GetOrCreate.
func (h *Hub) SetLifecycle(lc Lifecycle) {
	h.mu.Lock()
	h.lifecycle = lc
	h.mu.Unlock()
}

// GetOrCreate returns the live room for the session, creating and
// starting it on first use.
func (h *Hub) GetOrCreate(sess *models.Session) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[sess.RoomID]; ok {
		return r
	}
	r := New(h.ctx, sess, h.lifecycle, h.opt, h.log)
	h.rooms[sess.RoomID] = r
	return r
}

func (h *Hub) Get(roomID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	return r, ok
}

func (h *Hub) GetBySessionID(sessionID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.rooms {
		if r.SessionID == sessionID {
			return r, true
		}
	}
	return nil, false
}

// Teardown closes the room and removes it from the hub. A no-op for
// rooms that never went live.
func (h *Hub) Teardown(roomID string, status models.SessionStatus, elapsed int64, reason string) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if ok {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
	if ok {
		r.Teardown(status, elapsed, reason)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
