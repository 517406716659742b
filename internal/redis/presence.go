package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mossy-p/signaling-relay/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	liveRoomsKey = "rooms"

	defaultQueueSize = 1024
	writeTimeout     = 2 * time.Second
)

func roomKey(roomID string) string  { return "room:" + roomID }
func peersKey(roomID string) string { return "room:" + roomID + ":peers" }

type presenceEvent struct {
	snapshot models.RoomSnapshot
	removed  string
}

// Presence mirrors live room membership into Redis so other services can
// inspect it. It is write-only: the relay never reads the mirror back.
//
// RoomChanged and RoomRemoved only enqueue; a single Run loop performs the
// writes in order. Events are dropped when the queue is full.
type Presence struct {
	client  redis.Cmdable
	ttl     time.Duration
	queue   chan presenceEvent
	logger  *slog.Logger
	now     func() time.Time
	dropped atomic.Uint64
}

// NewPresence creates a presence mirror writing through client.
func NewPresence(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Presence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Presence{
		client: client,
		ttl:    ttl,
		queue:  make(chan presenceEvent, defaultQueueSize),
		logger: logger,
		now:    time.Now,
	}
}

// RoomChanged enqueues an upsert of the room's presence record.
func (p *Presence) RoomChanged(snapshot models.RoomSnapshot) {
	p.enqueue(presenceEvent{snapshot: snapshot})
}

// RoomRemoved enqueues deletion of the room's presence record.
func (p *Presence) RoomRemoved(roomID string) {
	p.enqueue(presenceEvent{removed: roomID})
}

func (p *Presence) enqueue(ev presenceEvent) {
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
		p.logger.Warn("presence queue full, event dropped")
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (p *Presence) Dropped() uint64 {
	return p.dropped.Load()
}

// Run applies queued events until ctx is cancelled, then drains what is left.
func (p *Presence) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case ev := <-p.queue:
			p.applyWithTimeout(context.Background(), ev)
		}
	}
}

func (p *Presence) drain() {
	for {
		select {
		case ev := <-p.queue:
			p.applyWithTimeout(context.Background(), ev)
		default:
			return
		}
	}
}

func (p *Presence) applyWithTimeout(parent context.Context, ev presenceEvent) {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()
	if err := p.apply(ctx, ev); err != nil {
		p.logger.Warn("presence write failed", "error", err)
	}
}

func (p *Presence) apply(ctx context.Context, ev presenceEvent) error {
	if ev.removed != "" {
		pipe := p.client.TxPipeline()
		pipe.Del(ctx, roomKey(ev.removed), peersKey(ev.removed))
		pipe.SRem(ctx, liveRoomsKey, ev.removed)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("remove room %s: %w", ev.removed, err)
		}
		return nil
	}

	snap := ev.snapshot
	data, err := p.encodeMetadata(snap)
	if err != nil {
		return err
	}

	peers := make([]any, 0, len(snap.Users))
	for _, u := range snap.Users {
		peers = append(peers, u.UserID)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, roomKey(snap.RoomID), data, p.ttl)
	pipe.Del(ctx, peersKey(snap.RoomID))
	if len(peers) > 0 {
		pipe.SAdd(ctx, peersKey(snap.RoomID), peers...)
		pipe.Expire(ctx, peersKey(snap.RoomID), p.ttl)
	}
	pipe.SAdd(ctx, liveRoomsKey, snap.RoomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store room %s: %w", snap.RoomID, err)
	}
	return nil
}

func (p *Presence) encodeMetadata(snap models.RoomSnapshot) ([]byte, error) {
	data, err := json.Marshal(models.RoomMetadata{
		ID:          snap.RoomID,
		HostID:      snap.HostID,
		Users:       snap.Users,
		PlayerCount: len(snap.Users),
		UpdatedAt:   p.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", snap.RoomID, err)
	}
	return data, nil
}

// Clear removes every presence record this mirror knows about. It is used at
// startup so records left by a previous process do not linger.
func (p *Presence) Clear(ctx context.Context) error {
	ids, err := p.client.SMembers(ctx, liveRoomsKey).Result()
	if err != nil {
		return fmt.Errorf("list live rooms: %w", err)
	}
	keys := []string{liveRoomsKey}
	for _, id := range ids {
		keys = append(keys, roomKey(id), peersKey(id))
	}
	if err := p.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}
	return nil
}
