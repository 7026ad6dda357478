package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-room-server/pkg/chessdto"
)

const clientQueueSize = 64

// Client is one websocket connection. Outgoing messages go through a bounded
// queue; a client that falls behind is disconnected.
type Client struct {
	id   string
	send chan chessdto.Envelope
	done chan struct{}
	once sync.Once
}

func newClient(id string) *Client {
	return &Client{id: id, send: make(chan chessdto.Envelope, clientQueueSize), done: make(chan struct{})}
}

func (c *Client) ID() string { return c.id }

func (c *Client) enqueue(env chessdto.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		c.kick()
		return false
	}
}

func (c *Client) kick() { c.once.Do(func() { close(c.done) }) }

// Hub fans room events out to subscribed clients. It implements
// gameroom.Notifier.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	members map[*Client]map[string]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		members: make(map[*Client]map[string]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Subscribe(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[roomID] = set
	}
	set[c] = struct{}{}
	if h.members[c] == nil {
		h.members[c] = make(map[string]struct{})
	}
	h.members[c][roomID] = struct{}{}
}

func (h *Hub) Unsubscribe(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(roomID, c)
}

func (h *Hub) unsubscribeLocked(roomID string, c *Client) {
	if set, ok := h.rooms[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if rooms, ok := h.members[c]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.members, c)
		}
	}
}

// Remove drops c from every room.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.members[c] {
		h.unsubscribeLocked(roomID, c)
	}
}

// Subscribers counts clients in a room.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) RoomState(roomID string, state chessdto.RoomState) {
	h.broadcast(roomID, chessdto.EventState, state)
}

func (h *Hub) GameOver(roomID string, result chessdto.GameOver) {
	h.broadcast(roomID, chessdto.EventGameOver, result)
}

func (h *Hub) broadcast(roomID, kind string, payload any) {
	env, err := chessdto.NewEnvelope(kind, payload)
	if err != nil {
		h.logger.Error("broadcast_encode_failed", zap.String("type", kind), zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(env) {
			h.logger.Warn("client_dropped", zap.String("client_id", c.id), zap.String("room_id", roomID))
		}
	}
}
