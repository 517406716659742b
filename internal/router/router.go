// Package router decodes inbound signaling frames and dispatches them to the
// room manager.
package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mossy-p/signaling-relay/internal/models"
	"github.com/mossy-p/signaling-relay/internal/rooms"
)

// Rooms is the room manager surface the router dispatches to.
type Rooms interface {
	Join(connID, userID, username, requestedRoomID string) (models.RoomSnapshot, error)
	Leave(userID string) bool
	Relay(senderID, targetID string, payload []byte) bool
	UserForConn(connID string) (string, bool)
}

// Sender delivers frames back to the originating connection.
type Sender interface {
	Send(connID string, payload []byte) error
}

// PongReceiver records liveness replies.
type PongReceiver interface {
	Pong(connID string)
}

// Router is stateless; every call works on the connection id it is given.
type Router struct {
	rooms     Rooms
	sender    Sender
	heartbeat PongReceiver
	logger    *slog.Logger
}

// New creates a router.
func New(r Rooms, sender Sender, heartbeat PongReceiver, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		rooms:     r,
		sender:    sender,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// Dispatch handles one inbound frame. Malformed and unknown frames are logged
// and dropped; nothing here closes the connection.
func (rt *Router) Dispatch(connID string, frame []byte) {
	if bytes.Equal(bytes.TrimSpace(frame), []byte(models.PongToken)) {
		if rt.heartbeat != nil {
			rt.heartbeat.Pong(connID)
		}
		return
	}

	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		rt.logger.Warn("failed to parse message", "conn_id", connID, "error", err)
		return
	}

	switch kind := env.Kind(); kind {
	case models.TypeJoin:
		rt.handleJoin(connID, frame)
	case models.TypeLeave:
		rt.handleLeave(connID, frame)
	case models.TypeOffer, models.TypeAnswer, models.TypeICECandidate:
		rt.handleRelay(connID, frame)
	default:
		rt.logger.Warn("unknown message type", "conn_id", connID, "type", kind)
	}
}

// HandleClose synthesizes a leave for the user bound to connID, if any.
func (rt *Router) HandleClose(connID string) {
	userID, ok := rt.rooms.UserForConn(connID)
	if !ok {
		return
	}
	rt.rooms.Leave(userID)
}

func (rt *Router) handleJoin(connID string, frame []byte) {
	var msg models.JoinMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		rt.logger.Warn("failed to parse join", "conn_id", connID, "error", err)
		return
	}

	if _, err := rt.rooms.Join(connID, msg.UserID, msg.Username, msg.RoomID); err != nil {
		if errors.Is(err, rooms.ErrConnectionGone) {
			rt.logger.Debug("join after close dropped", "conn_id", connID, "user_id", msg.UserID)
			return
		}
		rt.logger.Info("join rejected", "conn_id", connID, "user_id", msg.UserID, "error", err)
		reason := "join failed"
		if errors.Is(err, rooms.ErrUserIDInUse) {
			reason = "userId " + msg.UserID + " is already in use"
		}
		rt.sendError(connID, reason)
	}
}

func (rt *Router) handleLeave(connID string, frame []byte) {
	var msg models.LeaveMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		rt.logger.Warn("failed to parse leave", "conn_id", connID, "error", err)
		return
	}

	userID, ok := rt.rooms.UserForConn(connID)
	if !ok {
		return
	}
	if claimed := msg.UserID; claimed != "" && claimed != userID {
		rt.logger.Warn("leave for foreign user rejected", "conn_id", connID, "user_id", userID, "claimed", claimed)
		rt.sendError(connID, "userId "+claimed+" does not belong to this connection")
		return
	}
	rt.rooms.Leave(userID)
}

func (rt *Router) handleRelay(connID string, frame []byte) {
	var msg models.RelayMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		rt.logger.Warn("failed to parse relay message", "conn_id", connID, "error", err)
		return
	}

	senderID, ok := rt.rooms.UserForConn(connID)
	if !ok {
		rt.logger.Debug("relay before join dropped", "conn_id", connID, "type", msg.Type)
		return
	}
	if msg.UserID != "" && msg.UserID != senderID {
		rt.logger.Warn("relay with spoofed sender dropped", "conn_id", connID, "user_id", senderID, "claimed", msg.UserID)
		return
	}

	rt.rooms.Relay(senderID, msg.TargetUserID, frame)
}

func (rt *Router) sendError(connID, reason string) {
	data, err := json.Marshal(models.NewError(reason))
	if err != nil {
		rt.logger.Error("failed to marshal error", "error", err)
		return
	}
	_ = rt.sender.Send(connID, data)
}
