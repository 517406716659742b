// Package heartbeat probes signaling connections for liveness and evicts the
// ones that stop answering.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mossy-p/signaling-relay/internal/models"
)

const (
	DefaultInterval = 25 * time.Second
	DefaultTimeout  = 20 * time.Second

	// CloseCodeTimeout is the close code used when a probe goes unanswered.
	CloseCodeTimeout = 4000
)

// ErrStopped is returned by Watch once StopAll has run.
var ErrStopped = errors.New("heartbeat monitor stopped")

// State is the liveness state of one watched connection.
type State int

const (
	StateUnknown State = iota
	StateAwaitingProbe
	StateProbeSent
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateAwaitingProbe:
		return "awaiting_probe"
	case StateProbeSent:
		return "probe_sent"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Transport is the slice of the connection registry the monitor needs.
type Transport interface {
	Send(id string, payload []byte) error
	Evict(id string, code int, reason string)
}

// Config holds the probe timing.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Validate checks that a probe always resolves before the next one is due.
func (c Config) Validate() error {
	if c.Interval <= 0 || c.Timeout <= 0 {
		return errors.New("heartbeat interval and timeout must be positive")
	}
	if c.Timeout >= c.Interval {
		return fmt.Errorf("heartbeat timeout %s must be shorter than interval %s", c.Timeout, c.Interval)
	}
	return nil
}

type watch struct {
	cancel context.CancelFunc
	pong   chan struct{}

	mu    sync.Mutex
	state State
}

func (w *watch) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *watch) getState() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Monitor runs one probe loop per watched connection.
type Monitor struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger

	mu      sync.Mutex
	watches map[string]*watch
	stopped bool
	wg      sync.WaitGroup
}

// New creates a monitor. Zero durations in cfg fall back to the defaults.
func New(cfg Config, transport Transport, logger *slog.Logger) (*Monitor, error) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		watches:   make(map[string]*watch),
	}, nil
}

// Watch starts probing id. Watching an id twice is a no-op; watching after
// StopAll fails with ErrStopped.
func (m *Monitor) Watch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if _, ok := m.watches[id]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &watch{
		cancel: cancel,
		pong:   make(chan struct{}, 1),
		state:  StateAwaitingProbe,
	}
	m.watches[id] = w

	m.wg.Add(1)
	go m.run(ctx, id, w)
	return nil
}

// Stop cancels every timer for id. Safe to call for unknown ids.
func (m *Monitor) Stop(id string) {
	m.mu.Lock()
	w, ok := m.watches[id]
	if ok {
		delete(m.watches, id)
	}
	m.mu.Unlock()

	if ok {
		w.cancel()
	}
}

// StopAll cancels every watch and waits for the probe loops to exit.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	m.stopped = true
	watches := m.watches
	m.watches = make(map[string]*watch)
	m.mu.Unlock()

	for _, w := range watches {
		w.cancel()
	}
	m.wg.Wait()
}

// Pong records a liveness reply from id.
func (m *Monitor) Pong(id string) {
	m.mu.Lock()
	w, ok := m.watches[id]
	m.mu.Unlock()

	if !ok {
		return
	}
	select {
	case w.pong <- struct{}{}:
	default:
	}
}

// State returns the current liveness state of id.
func (m *Monitor) State(id string) State {
	m.mu.Lock()
	w, ok := m.watches[id]
	m.mu.Unlock()

	if !ok {
		return StateUnknown
	}
	return w.getState()
}

// Watching returns the number of watched connections.
func (m *Monitor) Watching() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}

func (m *Monitor) run(ctx context.Context, id string, w *watch) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Replies that arrive outside a probe window do not count.
		select {
		case <-w.pong:
		default:
		}

		w.setState(StateProbeSent)
		_ = m.transport.Send(id, []byte(models.PingToken))

		timer := time.NewTimer(m.cfg.Timeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.pong:
			timer.Stop()
			w.setState(StateAwaitingProbe)
		case <-timer.C:
			w.setState(StateEvicted)
			m.logger.Info("no pong received, evicting connection", "conn_id", id, "timeout", m.cfg.Timeout)
			m.Stop(id)
			m.transport.Evict(id, CloseCodeTimeout, fmt.Sprintf("No pong received within %s", m.cfg.Timeout))
			return
		}
	}
}
