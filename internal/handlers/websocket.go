package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/signaling-relay/internal/models"
	"github.com/mossy-p/signaling-relay/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

var errSendBufferFull = errors.New("send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateClosed
)

// Client is one upgraded WebSocket. Frames are queued on send and written by
// writePump, the only goroutine that writes to conn.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu          sync.Mutex
	state       connState
	closeCode   int
	closeReason string
}

func newClient(conn *websocket.Conn, buffer int) *Client {
	return &Client{
		conn:  conn,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
		state: stateConnecting,
	}
}

func (c *Client) open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateConnecting {
		c.state = stateOpen
	}
}

// Send queues payload without blocking.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return registry.ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close marks the client closed; writePump sends the close frame.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
	return nil
}

func (c *Client) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}

// Transport is the registry surface the signaling endpoint needs.
type Transport interface {
	Register(conn registry.Conn) string
	Unregister(id string) bool
	Send(id string, payload []byte) error
}

// Dispatcher consumes inbound frames.
type Dispatcher interface {
	Dispatch(connID string, frame []byte)
}

// Watcher starts liveness probing for a connection.
type Watcher interface {
	Watch(id string) error
}

// Signaling serves the WebSocket upgrade endpoint.
type Signaling struct {
	transport  Transport
	dispatcher Dispatcher
	watcher    Watcher
	iceServers []webrtc.ICEServer
	sendBuffer int
	logger     *slog.Logger
}

// NewSignaling wires the endpoint to the registry, router and heartbeat.
func NewSignaling(transport Transport, dispatcher Dispatcher, watcher Watcher, iceServers []webrtc.ICEServer, sendBuffer int, logger *slog.Logger) *Signaling {
	if logger == nil {
		logger = slog.Default()
	}
	if iceServers == nil {
		iceServers = []webrtc.ICEServer{}
	}
	return &Signaling{
		transport:  transport,
		dispatcher: dispatcher,
		watcher:    watcher,
		iceServers: iceServers,
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// HandleSignaling upgrades the request and runs the connection.
func (s *Signaling) HandleSignaling(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(conn, s.sendBuffer)
	client.ID = s.transport.Register(client)
	client.open()

	s.logger.Info("peer connected", "conn_id", client.ID, "remote", c.ClientIP())

	greeting, err := json.Marshal(models.RegisteredMessage{
		Type:       models.TypeRegistered,
		ID:         client.ID,
		ICEServers: s.iceServers,
	})
	if err != nil {
		s.logger.Error("failed to marshal registration", "error", err)
	} else {
		_ = s.transport.Send(client.ID, greeting)
	}

	if err := s.watcher.Watch(client.ID); err != nil {
		// Shutting down: the pumps flush the close frame and unregister.
		s.logger.Info("refusing peer during shutdown", "conn_id", client.ID, "error", err)
		_ = client.Close(websocket.CloseGoingAway, "server shutting down")
	}

	go s.writePump(client)
	go s.readPump(client)
}

func (s *Signaling) readPump(c *Client) {
	defer func() {
		s.transport.Unregister(c.ID)
		_ = c.Close(websocket.CloseNormalClosure, "")
		s.logger.Info("peer disconnected", "conn_id", c.ID)
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "conn_id", c.ID, "error", err)
			}
			return
		}
		s.dispatcher.Dispatch(c.ID, message)
	}
}

func (s *Signaling) writePump(c *Client) {
	defer c.conn.Close()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("failed to write message", "conn_id", c.ID, "error", err)
				_ = c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, c.closeFrame(), time.Now().Add(writeWait))
			return
		}
	}
}
