package chat

import (
	"sort"
	"sync"

	"course-service/internal/util"

	"go.uber.org/zap"
)

// Frame types exchanged over the socket
const (
	FrameJoinRoom    = "joinRoom"
	FrameSendMessage = "sendMessage"
	FrameMessage     = "message"
	FrameJoined      = "joined"
	FrameError       = "error"
)

// Message is an outbound frame
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub is the in-memory room registry. Membership is keyed by course id and
// does not survive a restart; clients rejoin on reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  util.GetLogger(),
	}
}

// Register adds a connected client
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	util.ChatConnections.Inc()
	h.logger.Debug("websocket client connected",
		zap.Uint64("client_id", c.id),
		zap.String("user_id", c.userID),
		zap.Int("total_clients", total))
}

// Unregister removes a client from every room and closes its outbox.
// Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	total := len(h.clients)
	h.mu.Unlock()

	if removed {
		h.logger.Debug("websocket client disconnected",
			zap.Uint64("client_id", c.id),
			zap.Int("total_clients", total))
	}
}

func (h *Hub) removeLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	for room := range c.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
	util.ChatConnections.Dec()
	return true
}

// Join adds a registered client to a course room
func (h *Hub) Join(c *Client, courseID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	members := h.rooms[courseID]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[courseID] = members
	}
	members[c] = struct{}{}
	c.rooms[courseID] = struct{}{}
	return true
}

// Broadcast delivers msg to every client in the room, in client id order.
// Clients whose outbox is full are disconnected rather than blocking the room.
func (h *Hub) Broadcast(courseID string, msg Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[courseID]
	clients := make([]*Client, 0, len(members))
	for c := range members {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	delivered := 0
	var toRemove []*Client
	for _, c := range clients {
		select {
		case c.send <- msg:
			delivered++
		default:
			toRemove = append(toRemove, c)
		}
	}

	for _, c := range toRemove {
		h.logger.Warn("dropping slow websocket client",
			zap.Uint64("client_id", c.id),
			zap.String("course_id", courseID))
		util.ChatDroppedClientsTotal.Inc()
		h.removeLocked(c)
	}
	return delivered
}

// OnlineUsers returns the distinct users connected to a room, sorted
func (h *Hub) OnlineUsers(courseID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	users := []string{}
	for c := range h.rooms[courseID] {
		if c.userID == "" {
			continue
		}
		if _, ok := seen[c.userID]; ok {
			continue
		}
		seen[c.userID] = struct{}{}
		users = append(users, c.userID)
	}
	sort.Strings(users)
	return users
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients joined to a room
func (h *Hub) RoomSize(courseID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[courseID])
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, c := range clients {
		h.removeLocked(c)
	}
	h.logger.Info("closed all websocket clients", zap.Int("clients_closed", len(clients)))
}
