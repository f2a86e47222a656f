package notifytest

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/adsign/notify/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub tracks every live websocket and broadcasts event frames to all of
// them. Connections authenticate with the token query parameter, the same
// credential the REST endpoints take as a bearer header.
type Hub struct {
	token string

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newHub(token string) *Hub {
	return &Hub{
		token: token,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) serve(c *gin.Context) {
	if c.Query("token") != h.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "invalid or missing token",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	// Drain inbound frames until the peer goes away; the protocol is
	// server-to-client only.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

func (h *Hub) broadcast(frame model.EventFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	delete(h.conns, conn)
}

func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
