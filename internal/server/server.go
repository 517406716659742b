// Package server assembles the signaling relay: registry, heartbeat monitor,
// room manager, router and the HTTP surface in front of them.
package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/signaling-relay/config"
	"github.com/mossy-p/signaling-relay/internal/handlers"
	"github.com/mossy-p/signaling-relay/internal/heartbeat"
	"github.com/mossy-p/signaling-relay/internal/registry"
	"github.com/mossy-p/signaling-relay/internal/rooms"
	"github.com/mossy-p/signaling-relay/internal/router"
)

// Server owns every long-lived component of the relay.
type Server struct {
	Registry  *registry.Registry
	Monitor   *heartbeat.Monitor
	Rooms     *rooms.Manager
	Router    *router.Router
	Signaling *handlers.Signaling
	Engine    *gin.Engine
}

// New builds a relay from cfg. observer may be nil.
func New(cfg *config.Config, observer rooms.Observer, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg := registry.New(logger.With("component", "registry"))

	monitor, err := heartbeat.New(heartbeat.Config{
		Interval: cfg.Heartbeat.Interval,
		Timeout:  cfg.Heartbeat.Timeout,
	}, reg, logger.With("component", "heartbeat"))
	if err != nil {
		return nil, err
	}

	var opts []rooms.Option
	if observer != nil {
		opts = append(opts, rooms.WithObserver(observer))
	}
	roomManager := rooms.NewManager(reg, logger.With("component", "rooms"), opts...)

	rt := router.New(roomManager, reg, monitor, logger.With("component", "router"))

	// Timers go first so no eviction can fire against a removed connection.
	reg.OnUnregister(monitor.Stop)
	reg.OnUnregister(rt.HandleClose)

	signaling := handlers.NewSignaling(reg, rt, monitor, cfg.ICEServers, cfg.SendBuffer, logger.With("component", "signaling"))

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.Default()
	handlers.RegisterRoutes(engine, handlers.Routes{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		Signaling:      signaling,
		Rooms:          roomManager,
		Connections:    reg,
	})

	return &Server{
		Registry:  reg,
		Monitor:   monitor,
		Rooms:     roomManager,
		Router:    rt,
		Signaling: signaling,
		Engine:    engine,
	}, nil
}

// Close disconnects every peer and stops all heartbeat timers.
func (s *Server) Close() {
	s.Registry.CloseAll(websocket.CloseGoingAway, "server shutting down")
	s.Monitor.StopAll()
}
