package broadcast

import (
	"encoding/json"
	"sync"

	"equipment-queue-backend/internal/logger"
)

// Gateway is the event publication surface the queue engine talks to.
// Both calls are best-effort and never block the caller.
type Gateway interface {
	// SendToUser reports whether any live connection received the event.
	SendToUser(userID int64, ev Event) bool
	BroadcastToRoom(equipmentID int64, ev Event)
}

// PushDispatcher hands a payload to the persisted-notification sink.
type PushDispatcher interface {
	Dispatch(userID int64, payload []byte) bool
}

const clientBuffer = 64

type client struct {
	ch      chan Event
	userID  int64
	rooms   []int64
	forUser bool
}

// Hub fans events out to subscribed streams. Clients either follow a set of
// equipment rooms or a single user's private stream.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[int64]map[string]*client
	users   map[int64]map[string]*client
	push    PushDispatcher
}

// NewHub creates an empty hub. push may be nil.
func NewHub(push PushDispatcher) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[int64]map[string]*client),
		users:   make(map[int64]map[string]*client),
		push:    push,
	}
}

// SubscribeRooms registers a client following the given equipment rooms.
func (h *Hub) SubscribeRooms(clientID string, equipmentIDs []int64) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &client{ch: make(chan Event, clientBuffer), rooms: equipmentIDs}
	h.clients[clientID] = c
	for _, id := range equipmentIDs {
		if h.rooms[id] == nil {
			h.rooms[id] = make(map[string]*client)
		}
		h.rooms[id][clientID] = c
	}
	return c.ch
}

// SubscribeUser registers a client on a user's private stream.
func (h *Hub) SubscribeUser(clientID string, userID int64) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &client{ch: make(chan Event, clientBuffer), userID: userID, forUser: true}
	h.clients[clientID] = c
	if h.users[userID] == nil {
		h.users[userID] = make(map[string]*client)
	}
	h.users[userID][clientID] = c
	return c.ch
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	delete(h.clients, clientID)
	if c.forUser {
		delete(h.users[c.userID], clientID)
		if len(h.users[c.userID]) == 0 {
			delete(h.users, c.userID)
		}
	}
	for _, id := range c.rooms {
		delete(h.rooms[id], clientID)
		if len(h.rooms[id]) == 0 {
			delete(h.rooms, id)
		}
	}
	close(c.ch)
}

// SendToUser delivers to the user's live streams, falling back to push when
// none accepted the event.
func (h *Hub) SendToUser(userID int64, ev Event) bool {
	h.mu.RLock()
	delivered := false
	for _, c := range h.users[userID] {
		if offer(c, ev) {
			delivered = true
		}
	}
	h.mu.RUnlock()

	if !delivered && h.push != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("failed to encode push payload")
			return false
		}
		h.push.Dispatch(userID, payload)
	}
	return delivered
}

// BroadcastToRoom delivers to every client following the equipment.
func (h *Hub) BroadcastToRoom(equipmentID int64, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.rooms[equipmentID] {
		offer(c, ev)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// offer is a non-blocking send; slow clients drop events.
func offer(c *client, ev Event) bool {
	select {
	case c.ch <- ev:
		return true
	default:
		return false
	}
}
