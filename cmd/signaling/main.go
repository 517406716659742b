package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/mossy-p/signaling-relay/config"
	"github.com/mossy-p/signaling-relay/internal/redis"
	"github.com/mossy-p/signaling-relay/internal/rooms"
	"github.com/mossy-p/signaling-relay/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Environment != "production" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancelPresence := context.WithCancel(context.Background())
	presenceDone := make(chan struct{})
	close(presenceDone)

	// Presence mirror is optional
	var observer rooms.Observer
	var closeRedis func() error
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		closeRedis = client.Close
		log.Println("Redis connection established")

		presence := redis.NewPresence(client, cfg.Redis.TTL, logger.With("component", "presence"))
		if err := presence.Clear(ctx); err != nil {
			log.Printf("Failed to clear stale presence records: %v", err)
		}
		observer = presence

		presenceDone = make(chan struct{})
		go func() {
			defer close(presenceDone)
			presence.Run(ctx)
		}()
	}

	relay, err := server.New(cfg, observer, logger)
	if err != nil {
		log.Fatalf("Failed to build relay: %v", err)
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: relay.Engine,
	}

	go func() {
		log.Printf("Starting WebRTC signaling relay on port %s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"relay": func(ctx context.Context) error {
				// Hijacked WebSockets are not tracked by Shutdown, so close them here.
				err := httpServer.Shutdown(ctx)
				relay.Close()

				cancelPresence()
				select {
				case <-presenceDone:
				case <-ctx.Done():
				}
				if closeRedis != nil {
					err = errors.Join(err, closeRedis())
				}
				return err
			},
		},
	)

	exitCode := <-wait
	log.Printf("Signaling relay exited with code: %d", exitCode)
	os.Exit(exitCode)
}
