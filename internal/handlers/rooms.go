package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/signaling-relay/internal/models"
)

// RoomReader is the read side of the room manager.
type RoomReader interface {
	Room(roomID string) (models.RoomSnapshot, bool)
	Rooms() []models.RoomSnapshot
	Counts() (rooms, users int)
}

// ConnectionCounter reports the number of open connections.
type ConnectionCounter interface {
	Len() int
}

// ListRooms returns every live room.
func ListRooms(rooms RoomReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": rooms.Rooms()})
	}
}

// GetRoom returns one live room.
func GetRoom(rooms RoomReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := rooms.Room(c.Param("roomId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

// GetStats returns connection, room and user counts.
func GetStats(rooms RoomReader, conns ConnectionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomCount, userCount := rooms.Counts()
		c.JSON(http.StatusOK, models.Stats{
			Connections: conns.Len(),
			Rooms:       roomCount,
			Users:       userCount,
		})
	}
}
