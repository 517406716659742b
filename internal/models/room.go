package models

import "time"

// RoomSnapshot is a point-in-time copy of a room's membership.
type RoomSnapshot struct {
	RoomID string     `json:"roomId"`
	HostID string     `json:"hostId"`
	Users  []UserInfo `json:"users"`
}

// HasUser reports whether userID is a member of the snapshot.
func (s RoomSnapshot) HasUser(userID string) bool {
	for _, u := range s.Users {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

// RoomMetadata is the presence record mirrored to Redis for each live room.
type RoomMetadata struct {
	ID          string     `json:"id"`
	HostID      string     `json:"hostId"`
	Users       []UserInfo `json:"users"`
	PlayerCount int        `json:"playerCount"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Stats summarizes the relay's live state.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	Users       int `json:"users"`
}
