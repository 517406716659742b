package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, 25*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 20*time.Second, cfg.Heartbeat.Timeout)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.False(t, cfg.Redis.Enabled())
	require.Len(t, cfg.ICEServers, 1)
	assert.Len(t, cfg.ICEServers[0].URLs, 10)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("HEARTBEAT_INTERVAL", "10s")
	t.Setenv("HEARTBEAT_TIMEOUT", "5s")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("STUN_URLS", "stun:stun.example.org:3478")
	t.Setenv("TURN_URLS", "turn:turn.example.org:3478")
	t.Setenv("TURN_USERNAME", "user")
	t.Setenv("TURN_CREDENTIAL", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 5*time.Second, cfg.Heartbeat.Timeout)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, 2, cfg.Redis.DB)
	require.Len(t, cfg.ICEServers, 2)
	assert.Equal(t, "user", cfg.ICEServers[1].Username)
	assert.Equal(t, "secret", cfg.ICEServers[1].Credential)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad duration", env: map[string]string{"HEARTBEAT_INTERVAL": "soon"}},
		{name: "bad int", env: map[string]string{"SEND_BUFFER": "lots"}},
		{name: "timeout not shorter than interval", env: map[string]string{"HEARTBEAT_INTERVAL": "5s", "HEARTBEAT_TIMEOUT": "5s"}},
		{name: "production default secret", env: map[string]string{"ENVIRONMENT": "production"}},
		{name: "turn without credentials", env: map[string]string{"TURN_URLS": "turn:turn.example.org"}},
		{name: "bad ice json", env: map[string]string{"ICE_SERVERS_JSON": "[{"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseICEServersJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr string
	}{
		{
			name:    "single url string",
			raw:     `[{"urls":"stun:stun.example.org"}]`,
			wantLen: 1,
		},
		{
			name:    "url list with turn",
			raw:     `[{"urls":["turn:a.example","turns:b.example"],"username":"u","credential":"p"}]`,
			wantLen: 1,
		},
		{
			name:    "unsupported scheme",
			raw:     `[{"urls":"http://example.org"}]`,
			wantErr: "unsupported url scheme",
		},
		{
			name:    "turn without username",
			raw:     `[{"urls":"turn:a.example","credential":"p"}]`,
			wantErr: "require username",
		},
		{
			name:    "empty urls",
			raw:     `[{"urls":[]}]`,
			wantErr: "missing urls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			servers, err := ParseICEServersJSON(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, servers, tt.wantLen)
		})
	}
}
