// Package notifytest is an in-process stand-in for the notification backend,
// used by the integration tests. It speaks the exact wire surface the client
// consumes: the wrapped REST envelopes and the websocket event frames.
package notifytest

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adsign/notify/internal/model"
)

// Server holds notification state per kind and serves the five REST
// endpoints plus the realtime websocket. All methods are safe for concurrent
// use.
type Server struct {
	engine *gin.Engine
	hub    *Hub
	token  string

	mu    sync.Mutex
	items map[model.Kind][]model.Notification
	now   func() time.Time
}

func NewServer(token string) *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		engine: gin.New(),
		hub:    newHub(token),
		token:  token,
		items: map[model.Kind][]model.Notification{
			model.KindUser: {},
			model.KindRole: {},
		},
		now: time.Now,
	}

	api := s.engine.Group("/api/notifications", s.authenticate())
	api.GET("/users", s.list(model.KindUser))
	api.GET("/roles", s.list(model.KindRole))
	api.POST("/mark-read/:notificationId", s.markRead)
	api.POST("/users/:recipient", s.send(model.KindUser))
	api.POST("/roles/:recipient", s.send(model.KindRole))

	s.engine.GET("/ws", s.hub.serve)

	return s
}

// Handler exposes the engine for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Seed loads notifications directly into one kind's collection without
// emitting realtime events.
func (s *Server) Seed(kind model.Kind, items ...model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[kind] = append(s.items[kind], items...)
}

// EmitToUser stores a new user notification and broadcasts it as a realtime
// frame to every connected socket.
func (s *Server) EmitToUser(payload model.EventPayload) {
	s.emit(model.KindUser, model.EventUserNotification, payload)
}

// EmitToRole is the role-broadcast counterpart of EmitToUser.
func (s *Server) EmitToRole(payload model.EventPayload) {
	s.emit(model.KindRole, model.EventRoleNotification, payload)
}

// EmitFrame broadcasts a raw frame without touching stored state. Lets tests
// send duplicates and unknown event names.
func (s *Server) EmitFrame(frame model.EventFrame) {
	s.hub.broadcast(frame)
}

// DropConnections force-closes every live websocket, simulating a transport
// drop.
func (s *Server) DropConnections() {
	s.hub.dropAll()
}

// ConnectionCount reports the number of live websockets.
func (s *Server) ConnectionCount() int {
	return s.hub.count()
}

func (s *Server) emit(kind model.Kind, event string, payload model.EventPayload) {
	if payload.NotificationID == "" {
		payload.NotificationID = uuid.NewString()
	}
	n := payload.Notification(kind, s.now())

	s.mu.Lock()
	s.items[kind] = append(s.items[kind], n)
	s.mu.Unlock()

	s.hub.broadcast(model.EventFrame{Event: event, Data: payload})
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+s.token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "invalid or missing token",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) list(kind model.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
		if page < 1 {
			page = 1
		}
		if size < 1 {
			size = 10
		}

		s.mu.Lock()
		all := make([]model.Notification, len(s.items[kind]))
		copy(all, s.items[kind])
		s.mu.Unlock()

		if raw, ok := c.GetQuery("isRead"); ok {
			want, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"message": "isRead must be a boolean",
				})
				return
			}
			filtered := all[:0]
			for _, n := range all {
				if n.IsRead == want {
					filtered = append(filtered, n)
				}
			}
			all = filtered
		}

		sort.SliceStable(all, func(i, j int) bool {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		})

		total := len(all)
		totalPages := (total + size - 1) / size
		start := (page - 1) * size
		if start > total {
			start = total
		}
		end := start + size
		if end > total {
			end = total
		}

		c.JSON(http.StatusOK, model.ListResponse{
			Success:       true,
			Result:        all[start:end],
			CurrentPage:   page,
			TotalPages:    totalPages,
			PageSize:      size,
			TotalElements: total,
			Timestamp:     s.now(),
		})
	}
}

func (s *Server) markRead(c *gin.Context) {
	id := c.Param("notificationId")

	s.mu.Lock()
	defer s.mu.Unlock()
	for kind := range s.items {
		for i := range s.items[kind] {
			if s.items[kind][i].ID != id {
				continue
			}
			s.items[kind][i].IsRead = true
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"result": model.MarkReadResult{
					NotificationID: id,
					ReadAt:         s.now(),
				},
				"timestamp": s.now(),
			})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"message": "notification not found",
	})
}

func (s *Server) send(kind model.Kind) gin.HandlerFunc {
	event := model.EventUserNotification
	if kind == model.KindRole {
		event = model.EventRoleNotification
	}
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || len(body) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "message text is required",
			})
			return
		}

		now := s.now()
		s.emit(kind, event, model.EventPayload{
			Type:      model.TypeGeneral,
			Message:   string(body),
			Timestamp: &now,
		})

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "notification sent",
		})
	}
}
