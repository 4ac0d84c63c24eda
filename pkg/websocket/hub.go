package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"campusride/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Hub fans events out to connected clients. Every client joins its personal
// user room on register; events addressed to a user reach all of that
// user's open connections.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	rooms      map[string]map[*Client]bool
	mutex      sync.RWMutex
	logger     *logger.Logger
}

type Message struct {
	Type      string                 `json:"type"`
	RoomID    string                 `json:"room_id,omitempty"`
	UserID    primitive.ObjectID     `json:"user_id"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]bool),
		logger:     log,
	}
}

func UserRoom(userID primitive.ObjectID) string {
	return "user_" + userID.Hex()
}

// Run serves register/unregister until ctx is cancelled, then closes every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Register hands client to the run loop. It returns false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	h.joinRoomLocked(client, UserRoom(client.UserID))
	h.logger.WithUserID(client.UserID).Debug("websocket client registered")

	h.deliverLocked(client, Message{
		Type:      "welcome",
		UserID:    client.UserID,
		Timestamp: time.Now().Unix(),
		Data: map[string]interface{}{
			"message": "Connected successfully",
		},
	})
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		h.dropLocked(client)
		h.logger.WithUserID(client.UserID).Debug("websocket client unregistered")
	}
}

// SendToUser delivers message to every connection of userID. It never blocks:
// a client whose buffer is full is disconnected.
func (h *Hub) SendToUser(userID primitive.ObjectID, message Message) {
	h.sendToRoom(UserRoom(userID), message)
}

// ConnectedCount reports the number of live connections for userID.
func (h *Hub) ConnectedCount(userID primitive.ObjectID) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[UserRoom(userID)])
}

func (h *Hub) sendToRoom(roomID string, message Message) {
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().Unix()
	}
	message.RoomID = roomID

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.rooms[roomID] {
		h.deliverLocked(client, message)
	}
}

func (h *Hub) deliverLocked(client *Client, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Warn("failed to marshal websocket message")
		return
	}

	select {
	case client.send <- data:
	default:
		h.dropLocked(client)
	}
}

func (h *Hub) joinRoomLocked(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	for roomID := range client.rooms {
		if room, exists := h.rooms[roomID]; exists {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}
