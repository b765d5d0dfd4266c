// Package api exposes the server surface: the websocket endpoint the
// clients speak over, the waiting-room listing, and a health probe.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mincheol-dev/chessmatch/internal/room"
	"github.com/mincheol-dev/chessmatch/internal/session"
)

type Server struct {
	coord     *session.Coordinator
	registry  *room.Registry
	advisorUp bool
}

func NewRouter(coord *session.Coordinator, registry *room.Registry, advisorUp bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{coord: coord, registry: registry, advisorUp: advisorUp}
	r.GET("/health", s.handleHealth)
	r.GET("/api/rooms", s.handleRooms)
	r.GET("/ws", s.handleWS)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"advisor_initialized": s.advisorUp,
		"active_rooms":        s.registry.Len(),
	})
}

// handleRooms lists rooms with exactly one waiting participant.
func (s *Server) handleRooms(c *gin.Context) {
	waiting := s.registry.ListWaiting()
	c.JSON(http.StatusOK, gin.H{
		"rooms": waiting,
		"total": len(waiting),
	})
}
