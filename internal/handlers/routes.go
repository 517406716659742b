package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/signaling-relay/internal/middleware"
)

// Routes bundles what RegisterRoutes needs.
type Routes struct {
	AllowedOrigins []string
	JWTSecret      string
	Signaling      *Signaling
	Rooms          RoomReader
	Connections    ConnectionCounter
}

// RegisterRoutes mounts the health check, operator API and signaling socket.
func RegisterRoutes(router *gin.Engine, r Routes) {
	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(r.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", Login(r.JWTSecret))

		operator := apiGroup.Group("", middleware.JWTAuth(r.JWTSecret))
		operator.GET("/rooms", ListRooms(r.Rooms))
		operator.GET("/rooms/:roomId", GetRoom(r.Rooms))
		operator.GET("/stats", GetStats(r.Rooms, r.Connections))
	}

	router.GET("/ws", r.Signaling.HandleSignaling)
}
