// Package registry tracks every open signaling connection.
//
// The registry is the only owner of transport handles. Other components
// address connections by the id returned from Register and never keep the
// underlying Conn.
package registry

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownConnection is returned when an id is not registered.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrConnClosed is returned by Conn implementations once they stop
	// accepting frames.
	ErrConnClosed = errors.New("connection closed")
)

// Conn is an open bidirectional message channel.
//
// Send must not block on network I/O: implementations enqueue the frame and
// return. Close sends a close frame with the given code and tears down the
// transport.
type Conn interface {
	Send(payload []byte) error
	Close(code int, reason string) error
}

// RemoveFunc is called once for every connection leaving the registry.
type RemoveFunc func(id string)

// Registry is a concurrency-safe set of live connections.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Conn
	onRemove []RemoveFunc
	logger   *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]Conn),
		logger: logger,
	}
}

// OnUnregister adds a hook run after a connection is removed. Hooks must be
// added before connections are registered.
func (r *Registry) OnUnregister(fn RemoveFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, fn)
}

// Register adds conn and returns its freshly generated client id.
func (r *Registry) Register(conn Conn) string {
	id := uuid.New().String()

	r.mu.Lock()
	r.conns[id] = conn
	count := len(r.conns)
	r.mu.Unlock()

	r.logger.Debug("connection registered", "conn_id", id, "connections", count)
	return id
}

// Unregister removes id and runs the removal hooks. It reports whether the
// connection was present; repeated calls are no-ops.
func (r *Registry) Unregister(id string) bool {
	_, ok := r.remove(id)
	return ok
}

// Evict removes id, runs the removal hooks and closes the transport with the
// given close code.
func (r *Registry) Evict(id string, code int, reason string) {
	conn, ok := r.remove(id)
	if !ok {
		return
	}
	if err := conn.Close(code, reason); err != nil {
		r.logger.Debug("close after eviction failed", "conn_id", id, "error", err)
	}
	r.logger.Info("connection evicted", "conn_id", id, "code", code, "reason", reason)
}

func (r *Registry) remove(id string) (Conn, bool) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	hooks := r.onRemove
	count := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return nil, false
	}

	r.logger.Debug("connection unregistered", "conn_id", id, "connections", count)
	for _, fn := range hooks {
		fn(id)
	}
	return conn, true
}

// Send enqueues payload on the connection. Failures are logged here; callers
// may ignore the returned error.
func (r *Registry) Send(id string, payload []byte) error {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("send to unknown connection dropped", "conn_id", id)
		return ErrUnknownConnection
	}
	if err := conn.Send(payload); err != nil {
		r.logger.Warn("send failed", "conn_id", id, "error", err)
		return err
	}
	return nil
}

// ForEach calls fn for every live connection. fn runs without the registry
// lock held and may call back into the registry.
func (r *Registry) ForEach(fn func(id string)) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		fn(id)
	}
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll evicts every connection with the given close code.
func (r *Registry) CloseAll(code int, reason string) {
	r.ForEach(func(id string) {
		r.Evict(id, code, reason)
	})
}
