package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

type Config struct {
	Port            string
	Environment     string
	AllowedOrigins  []string
	JWTSecret       string
	SendBuffer      int
	ShutdownTimeout time.Duration
	Heartbeat       HeartbeatConfig
	ICEServers      []webrtc.ICEServer
	Redis           RedisConfig
}

type HeartbeatConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether the presence mirror should connect to Redis.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	// Parse allowed origins (comma-separated)
	origins := splitCommaSeparated(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"))

	iceServers, err := parseICEServersFromValues(
		os.Getenv(envICEServersJSON),
		getEnv(envStunURLs, defaultStunURLs),
		os.Getenv(envTurnURLs),
		os.Getenv(envTurnUsername),
		os.Getenv(envTurnCredential),
	)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		AllowedOrigins:  origins,
		JWTSecret:       getEnv("JWT_SECRET", "change-me-in-production"),
		ShutdownTimeout: 30 * time.Second,
		SendBuffer:      256,
		Heartbeat: HeartbeatConfig{
			Interval: 25 * time.Second,
			Timeout:  20 * time.Second,
		},
		ICEServers: iceServers,
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			TTL:      24 * time.Hour,
		},
	}

	var errs []error
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout, &errs)
	cfg.SendBuffer = getInt("SEND_BUFFER", cfg.SendBuffer, &errs)
	cfg.Heartbeat.Interval = getDuration("HEARTBEAT_INTERVAL", cfg.Heartbeat.Interval, &errs)
	cfg.Heartbeat.Timeout = getDuration("HEARTBEAT_TIMEOUT", cfg.Heartbeat.Timeout, &errs)
	cfg.Redis.DB = getInt("REDIS_DB", 0, &errs)
	cfg.Redis.TTL = getDuration("REDIS_TTL", cfg.Redis.TTL, &errs)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT must not be empty")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	if c.Heartbeat.Interval <= 0 || c.Heartbeat.Timeout <= 0 {
		return errors.New("HEARTBEAT_INTERVAL and HEARTBEAT_TIMEOUT must be positive")
	}
	if c.Heartbeat.Timeout >= c.Heartbeat.Interval {
		return fmt.Errorf("HEARTBEAT_TIMEOUT (%s) must be shorter than HEARTBEAT_INTERVAL (%s)", c.Heartbeat.Timeout, c.Heartbeat.Interval)
	}
	if c.Environment == "production" && c.JWTSecret == "change-me-in-production" {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func splitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
