package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type HandlerOptions struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	PongTimeout      time.Duration
	AllowedOrigins   []string
}

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	pongWait time.Duration
}

func NewHandler(hub *Hub, opts HandlerOptions) *Handler {
	pongWait := opts.PongTimeout
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   opts.ReadBufferSize,
			WriteBufferSize:  opts.WriteBufferSize,
			HandshakeTimeout: opts.HandshakeTimeout,
			CheckOrigin:      originChecker(opts.AllowedOrigins),
		},
		pongWait: pongWait,
	}
}

// HandleWebSocket upgrades an authenticated request. AuthRequired must run
// first so that user_id is present on the context.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userObjectID, ok := userID.(primitive.ObjectID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.WithUserID(userObjectID).WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, userObjectID, h.pongWait)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
