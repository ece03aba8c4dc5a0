package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/astromitra/astromitra/internal/api/handlers"
)

type Deps struct {
	Session *handlers.SessionHandler
	Media   *handlers.MediaHandler
	WS      *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.POST("/session/validate", d.Session.Validate)
	r.POST("/session/:session_id/join", d.Session.Join)
	r.POST("/session/:session_id/end", d.Session.End)
	r.POST("/session/:session_id/cancel", d.Session.Cancel)

	r.POST("/media/token", d.Media.Token)

	// WebSocket
	r.GET("/ws/room/:room_id", d.WS.RoomWS)
}
