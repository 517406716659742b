// Package rooms owns room membership and host designation.
//
// Rooms are kept in creation order and members in join order. A join without
// a live target room goes to the oldest live room, and host migration hands
// the room to the earliest-joined remaining member. Neither choice is load or
// latency aware.
package rooms

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/mossy-p/signaling-relay/internal/models"
)

// ErrUserIDInUse is returned when a join names a user id that is already
// bound to a different connection.
var ErrUserIDInUse = errors.New("user id already in use")

// ErrConnectionGone is returned when a join arrives for a connection that has
// already been removed from the registry.
var ErrConnectionGone = errors.New("connection no longer registered")

// Sender delivers a frame to a connection. Implementations must not block.
// Has reports whether connID is still registered; a connection must be
// removed from the registry before its close hooks run.
type Sender interface {
	Send(connID string, payload []byte) error
	Has(connID string) bool
}

// Observer is told about every membership change. Calls are made while the
// manager's lock is held, so implementations must return immediately.
type Observer interface {
	RoomChanged(snapshot models.RoomSnapshot)
	RoomRemoved(roomID string)
}

type user struct {
	id       string
	username string
	connID   string
}

type room struct {
	id     string
	hostID string
	users  map[string]*user
	order  []string // user ids in join order
}

func (r *room) snapshot() models.RoomSnapshot {
	users := make([]models.UserInfo, 0, len(r.order))
	for _, id := range r.order {
		u := r.users[id]
		users = append(users, models.UserInfo{UserID: u.id, Username: u.username})
	}
	return models.RoomSnapshot{RoomID: r.id, HostID: r.hostID, Users: users}
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver registers an observer for membership changes.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithRoomIDGenerator replaces the random room id generator.
func WithRoomIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newRoomID = fn
	}
}

// Manager is the single owner of the room table and its reverse indexes.
type Manager struct {
	mu         sync.Mutex
	rooms      map[string]*room
	roomOrder  []string          // room ids in creation order
	userToRoom map[string]string // user id → room id
	connToUser map[string]string // connection id → user id

	sender    Sender
	observer  Observer
	newRoomID func() string
	logger    *slog.Logger
}

// NewManager creates an empty room manager that delivers frames via sender.
func NewManager(sender Sender, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		rooms:      make(map[string]*room),
		userToRoom: make(map[string]string),
		connToUser: make(map[string]string),
		sender:     sender,
		newRoomID:  generateRoomID,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Join places the user bound to connID into a room and notifies the room.
//
// An empty userID defaults to connID. If requestedRoomID names a live room
// the user joins it; otherwise the oldest live room is reused, and a new room
// hosted by the user is created only when none exist. A connection that is
// already in a room leaves it first.
func (m *Manager) Join(connID, userID, username, requestedRoomID string) (models.RoomSnapshot, error) {
	if userID == "" {
		userID = connID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Checked under the lock: a close hook that already ran found no user
	// to remove, and one that has not run yet will wait for us.
	if !m.sender.Has(connID) {
		return models.RoomSnapshot{}, ErrConnectionGone
	}
	if roomID, ok := m.userToRoom[userID]; ok {
		if owner := m.rooms[roomID].users[userID]; owner.connID != connID {
			return models.RoomSnapshot{}, ErrUserIDInUse
		}
	}
	if previous, ok := m.connToUser[connID]; ok {
		m.leaveLocked(previous)
	}

	r := m.selectRoomLocked(requestedRoomID, userID)
	r.users[userID] = &user{id: userID, username: username, connID: connID}
	r.order = append(r.order, userID)
	m.userToRoom[userID] = r.id
	m.connToUser[connID] = userID

	snap := r.snapshot()

	m.sendLocked(connID, models.RoomInfoMessage{
		Type:   models.TypeRoomInfo,
		RoomID: snap.RoomID,
		HostID: snap.HostID,
		Users:  snap.Users,
	})

	joined := models.UserJoinedMessage{
		Type:     models.TypeUserJoined,
		UserID:   userID,
		Username: username,
		Users:    snap.Users,
	}
	for _, id := range r.order {
		if id == userID {
			continue
		}
		m.sendLocked(r.users[id].connID, joined)
	}

	if m.observer != nil {
		m.observer.RoomChanged(snap)
	}

	m.logger.Info("user joined", "user_id", userID, "username", username, "room_id", r.id, "members", len(r.users))
	return snap, nil
}

func (m *Manager) selectRoomLocked(requestedRoomID, userID string) *room {
	if r, ok := m.rooms[requestedRoomID]; ok && requestedRoomID != "" {
		return r
	}
	if len(m.roomOrder) > 0 {
		return m.rooms[m.roomOrder[0]]
	}

	id := m.newRoomID()
	for m.rooms[id] != nil {
		id = m.newRoomID()
	}
	r := &room{
		id:     id,
		hostID: userID,
		users:  make(map[string]*user),
	}
	m.rooms[id] = r
	m.roomOrder = append(m.roomOrder, id)
	m.logger.Info("room created", "room_id", id, "host_id", userID)
	return r
}

// Leave removes userID from its room. It reports false when the user is not
// tracked, which makes repeated leaves harmless.
func (m *Manager) Leave(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(userID)
}

func (m *Manager) leaveLocked(userID string) bool {
	roomID, ok := m.userToRoom[userID]
	if !ok {
		return false
	}
	r := m.rooms[roomID]
	u := r.users[userID]

	delete(r.users, userID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == userID })
	delete(m.userToRoom, userID)
	if m.connToUser[u.connID] == userID {
		delete(m.connToUser, u.connID)
	}

	if len(r.users) == 0 {
		delete(m.rooms, roomID)
		m.roomOrder = slices.DeleteFunc(m.roomOrder, func(id string) bool { return id == roomID })
		if m.observer != nil {
			m.observer.RoomRemoved(roomID)
		}
		m.logger.Info("room deleted (empty)", "room_id", roomID)
		return true
	}

	var newHostID *string
	if r.hostID == userID {
		r.hostID = r.order[0]
		host := r.hostID
		newHostID = &host
		m.logger.Info("host migrated", "room_id", roomID, "host_id", host)
	}

	snap := r.snapshot()
	left := models.UserLeftMessage{
		Type:      models.TypeUserLeft,
		UserID:    userID,
		Username:  u.username,
		Users:     snap.Users,
		NewHostID: newHostID,
	}
	for _, id := range r.order {
		m.sendLocked(r.users[id].connID, left)
	}

	if m.observer != nil {
		m.observer.RoomChanged(snap)
	}

	m.logger.Info("user left", "user_id", userID, "username", u.username, "room_id", roomID, "members", len(r.users))
	return true
}

// Relay forwards payload verbatim to targetID if both users share a room.
// Unknown senders, unknown targets and cross-room targets are dropped.
func (m *Manager) Relay(senderID, targetID string, payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.userToRoom[senderID]
	if !ok {
		m.logger.Debug("relay from untracked sender dropped", "sender_id", senderID)
		return false
	}
	target, ok := m.rooms[roomID].users[targetID]
	if !ok {
		m.logger.Debug("relay target not in sender's room", "sender_id", senderID, "target_id", targetID, "room_id", roomID)
		return false
	}

	_ = m.sender.Send(target.connID, payload)
	return true
}

func (m *Manager) sendLocked(connID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("failed to marshal message", "error", err)
		return
	}
	_ = m.sender.Send(connID, data)
}

// UserForConn returns the user bound to connID.
func (m *Manager) UserForConn(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.connToUser[connID]
	return id, ok
}

// RoomOf returns a snapshot of the room userID is in.
func (m *Manager) RoomOf(userID string) (models.RoomSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.userToRoom[userID]
	if !ok {
		return models.RoomSnapshot{}, false
	}
	return m.rooms[roomID].snapshot(), true
}

// Room returns a snapshot of roomID.
func (m *Manager) Room(roomID string) (models.RoomSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return models.RoomSnapshot{}, false
	}
	return r.snapshot(), true
}

// Rooms returns snapshots of all live rooms in creation order.
func (m *Manager) Rooms() []models.RoomSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RoomSnapshot, 0, len(m.roomOrder))
	for _, id := range m.roomOrder {
		out = append(out, m.rooms[id].snapshot())
	}
	return out
}

// Counts returns the number of live rooms and tracked users.
func (m *Manager) Counts() (rooms, users int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms), len(m.userToRoom)
}
