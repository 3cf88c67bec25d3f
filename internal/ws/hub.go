package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/logger"
)

// Room is the set of clients watching one session.
type Room struct {
	ID        string
	Clients   map[*Client]struct{}
	createdAt time.Time
	lastEvent time.Time
}

// Hub fans committed session events out to websocket watchers. It is an EventSink.
type Hub struct {
	mu    sync.RWMutex
	Rooms map[string]*Room
}

func NewHub() *Hub {
	return &Hub{Rooms: make(map[string]*Room)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.Rooms[c.SessionID]
	if !ok {
		room = &Room{ID: c.SessionID, Clients: make(map[*Client]struct{}), createdAt: time.Now()}
		h.Rooms[c.SessionID] = room
	}
	room.Clients[c] = struct{}{}
	logger.Debug("ws watcher registered", "session_id", c.SessionID, "address", c.Address, "watchers", len(room.Clients))
}

// Unregister removes c and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	room, ok := h.Rooms[c.SessionID]
	if !ok {
		return
	}
	if _, ok := room.Clients[c]; !ok {
		return
	}
	delete(room.Clients, c)
	close(c.Send)
}

// deliver queues msg for c if it is still registered.
func (h *Hub) deliver(c *Client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.Rooms[c.SessionID]; ok {
		if _, ok := room.Clients[c]; ok {
			select {
			case c.Send <- msg:
			default:
			}
		}
	}
}

// Watchers returns how many clients follow a session.
func (h *Hub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.Rooms[sessionID]; ok {
		return len(room.Clients)
	}
	return 0
}

// Publish delivers e to every watcher of its session. Slow clients are dropped.
func (h *Hub) Publish(_ context.Context, e domain.Event) {
	msg, err := json.Marshal(Message{Type: MsgEvent, Event: &e})
	if err != nil {
		logger.Error("ws marshal event", "error", err, "kind", e.Kind)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.Rooms[e.SessionID]
	if !ok {
		return
	}
	room.lastEvent = time.Now()
	for c := range room.Clients {
		select {
		case c.Send <- msg:
		default:
			logger.Warn("ws send queue full, dropping watcher", "session_id", e.SessionID, "address", c.Address)
			h.removeLocked(c)
		}
	}
}

func (h *Hub) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.cleanupStaleRooms(time.Now())
			}
		}
	}()
}

func (h *Hub) cleanupStaleRooms(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, room := range h.Rooms {
		if len(room.Clients) == 0 && now.Sub(room.createdAt) > time.Hour {
			delete(h.Rooms, id)
			logger.Debug("cleaned up stale room", "session_id", id)
		}
	}
}
