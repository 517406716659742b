package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	pings   map[string]int
	evicted map[string]int
	onPing  func(id string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		pings:   make(map[string]int),
		evicted: make(map[string]int),
	}
}

func (f *fakeTransport) Send(id string, payload []byte) error {
	f.mu.Lock()
	f.pings[id]++
	onPing := f.onPing
	f.mu.Unlock()
	if onPing != nil {
		onPing(id)
	}
	return nil
}

func (f *fakeTransport) Evict(id string, code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted[id] = code
}

func (f *fakeTransport) counts(id string) (int, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.evicted[id]
	return f.pings[id], code, ok
}

func fastConfig() Config {
	return Config{Interval: 30 * time.Millisecond, Timeout: 15 * time.Millisecond}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{Interval: DefaultInterval, Timeout: DefaultTimeout}},
		{name: "timeout equals interval", cfg: Config{Interval: time.Second, Timeout: time.Second}, wantErr: true},
		{name: "negative", cfg: Config{Interval: -1, Timeout: time.Millisecond}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMonitor_EvictsSilentConnection(t *testing.T) {
	transport := newFakeTransport()
	mon, err := New(fastConfig(), transport, nil)
	require.NoError(t, err)
	defer mon.StopAll()

	mon.Watch("conn-1")
	assert.Equal(t, StateAwaitingProbe, mon.State("conn-1"))

	require.Eventually(t, func() bool {
		_, _, evicted := transport.counts("conn-1")
		return evicted
	}, time.Second, 5*time.Millisecond)

	pings, code, _ := transport.counts("conn-1")
	assert.Equal(t, 1, pings)
	assert.Equal(t, CloseCodeTimeout, code)
	assert.Equal(t, StateUnknown, mon.State("conn-1"))
	assert.Equal(t, 0, mon.Watching())
}

func TestMonitor_PongKeepsConnectionAlive(t *testing.T) {
	transport := newFakeTransport()
	mon, err := New(fastConfig(), transport, nil)
	require.NoError(t, err)
	defer mon.StopAll()

	transport.onPing = func(id string) {
		go mon.Pong(id)
	}
	mon.Watch("conn-1")

	require.Eventually(t, func() bool {
		pings, _, _ := transport.counts("conn-1")
		return pings >= 3
	}, time.Second, 5*time.Millisecond)

	_, _, evicted := transport.counts("conn-1")
	assert.False(t, evicted)
}

func TestMonitor_StopCancelsTimers(t *testing.T) {
	transport := newFakeTransport()
	mon, err := New(fastConfig(), transport, nil)
	require.NoError(t, err)

	stopped := make(chan struct{})
	transport.onPing = func(id string) {
		mon.Stop(id)
		close(stopped)
	}
	mon.Watch("conn-1")

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("probe never sent")
	}

	mon.StopAll()
	time.Sleep(2 * fastConfig().Timeout)

	_, _, evicted := transport.counts("conn-1")
	assert.False(t, evicted)
}

func TestMonitor_PongOutsideProbeIgnored(t *testing.T) {
	transport := newFakeTransport()
	mon, err := New(fastConfig(), transport, nil)
	require.NoError(t, err)
	defer mon.StopAll()

	mon.Watch("conn-1")
	mon.Pong("conn-1")
	mon.Pong("unknown")

	require.Eventually(t, func() bool {
		_, _, evicted := transport.counts("conn-1")
		return evicted
	}, time.Second, 5*time.Millisecond)
}

func TestMonitor_WatchAfterStopAll(t *testing.T) {
	transport := newFakeTransport()
	mon, err := New(fastConfig(), transport, nil)
	require.NoError(t, err)

	require.NoError(t, mon.Watch("conn-1"))
	mon.StopAll()

	assert.ErrorIs(t, mon.Watch("conn-2"), ErrStopped)
	assert.Equal(t, 0, mon.Watching())
	assert.Equal(t, StateUnknown, mon.State("conn-2"))

	// Stop and Pong stay harmless after shutdown.
	mon.Stop("conn-1")
	mon.Pong("conn-2")
	mon.StopAll()
}
