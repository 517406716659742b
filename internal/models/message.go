package models

import "github.com/pion/webrtc/v4"

// MessageType is the tag carried in the "type" field of every signaling frame.
type MessageType string

const (
	// Inbound (client → server)
	TypeJoin         MessageType = "join"
	TypeLeave        MessageType = "leave"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice_candidate"

	// Outbound (server → client)
	TypeRegistered MessageType = "registered"
	TypeRoomInfo   MessageType = "room_info"
	TypeUserJoined MessageType = "user_joined"
	TypeUserLeft   MessageType = "user_left"
	TypeError      MessageType = "error"
)

// Liveness tokens are sent as bare text frames, not JSON.
const (
	PingToken = "ping"
	PongToken = "pong"
)

// Envelope holds the fields shared by every inbound message. Older clients
// tag frames with "messageType" instead of "type"; both are accepted.
type Envelope struct {
	Type        MessageType `json:"type"`
	MessageType MessageType `json:"messageType,omitempty"`
	UserID      string      `json:"userId,omitempty"`
}

// Kind returns the effective message tag.
func (e Envelope) Kind() MessageType {
	if e.Type != "" {
		return e.Type
	}
	return e.MessageType
}

// JoinMessage asks to enter a room. RoomID is optional.
type JoinMessage struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId"`
	Username string      `json:"username"`
	RoomID   string      `json:"roomId,omitempty"`
}

// LeaveMessage asks to leave the current room.
type LeaveMessage struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId"`
}

// RelayMessage covers offer, answer and ice_candidate. Only the routing
// fields are decoded; sdp and candidate travel in the raw frame untouched.
type RelayMessage struct {
	Type         MessageType `json:"type"`
	UserID       string      `json:"userId"`
	TargetUserID string      `json:"targetUserId"`
}

// UserInfo is the public view of a room member.
type UserInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RegisteredMessage greets a freshly opened connection.
type RegisteredMessage struct {
	Type       MessageType        `json:"type"`
	ID         string             `json:"id"`
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// RoomInfoMessage is sent to the user that just joined.
type RoomInfoMessage struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"roomId"`
	HostID string      `json:"hostId"`
	Users  []UserInfo  `json:"users"`
}

// UserJoinedMessage is sent to the existing members of a room.
type UserJoinedMessage struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId"`
	Username string      `json:"username"`
	Users    []UserInfo  `json:"users"`
}

// UserLeftMessage is sent to the remaining members of a room. NewHostID is
// null unless the departing user was the host.
type UserLeftMessage struct {
	Type      MessageType `json:"type"`
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	Users     []UserInfo  `json:"users"`
	NewHostID *string     `json:"newHostId"`
}

// ErrorMessage reports an operation that could not be satisfied.
type ErrorMessage struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

// NewError builds an error frame.
func NewError(reason string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Reason: reason}
}
