// Package config loads coordinator.yml and applies environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where commands look for a config file when --config is not given.
const DefaultPath = "coordinator.yml"

// Defaults applied by Validate.
const (
	DefaultHost         = "localhost"
	DefaultPort         = 3030
	DefaultPingInterval = 30 * time.Second
	DefaultPongWait     = 5 * time.Second
	DefaultSendBuffer   = 64
	DefaultQueueSize    = 256
)

// CoordinatorConfig represents the top-level coordinator.yml configuration
type CoordinatorConfig struct {
	Version string         `yaml:"version"`
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Redis   *RedisConfig   `yaml:"redis,omitempty"` // Optional event mirror
}

// ServerConfig specifies where and how the hub accepts connections
type ServerConfig struct {
	Host              string        `yaml:"host,omitempty"`
	Port              int           `yaml:"port,omitempty"`
	PingInterval      time.Duration `yaml:"ping_interval,omitempty"`       // e.g. "30s"
	PongWait          time.Duration `yaml:"pong_wait,omitempty"`           // Grace after a ping before dropping the client
	SendBuffer        int           `yaml:"send_buffer,omitempty"`         // Outbound messages queued per connection
	LeaveOnDisconnect bool          `yaml:"leave_on_disconnect,omitempty"` // Remove an agent when its connection drops
}

// SessionConfig pins the session identifier, which is otherwise generated
type SessionConfig struct {
	ID string `yaml:"id,omitempty"`
}

// RedisConfig enables the Redis event mirror
type RedisConfig struct {
	URL           string `yaml:"url"`
	ChannelPrefix string `yaml:"channel_prefix,omitempty"`
	QueueSize     int    `yaml:"queue_size,omitempty"`
}

// Default returns a validated configuration with no file behind it.
func Default() *CoordinatorConfig {
	c := &CoordinatorConfig{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return c
}

// Validate performs strict validation and fills in defaults
func (c *CoordinatorConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}

	if c.Session != nil && c.Session.ID != "" && !coordination.IsValidID(c.Session.ID) {
		return fmt.Errorf("session.id must be a UUID, got %q", c.Session.ID)
	}

	if c.Redis != nil {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks the server section and applies its defaults
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	}

	if s.PingInterval == 0 {
		s.PingInterval = DefaultPingInterval
	}
	if s.PongWait == 0 {
		s.PongWait = DefaultPongWait
	}
	if s.PingInterval < 0 || s.PongWait < 0 {
		return fmt.Errorf("server.ping_interval and server.pong_wait must be positive")
	}

	if s.SendBuffer == 0 {
		s.SendBuffer = DefaultSendBuffer
	}
	if s.SendBuffer < 1 {
		return fmt.Errorf("server.send_buffer must be >= 1, got %d", s.SendBuffer)
	}

	return nil
}

// Validate checks the redis section and applies its defaults
func (r *RedisConfig) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("redis.url is required when the redis section is present")
	}
	if _, err := redis.ParseURL(r.URL); err != nil {
		return fmt.Errorf("invalid redis.url: %w", err)
	}

	if r.ChannelPrefix == "" {
		r.ChannelPrefix = coordination.DefaultChannelPrefix
	}
	if strings.ContainsAny(r.ChannelPrefix, ":*") {
		return fmt.Errorf("redis.channel_prefix must not contain ':' or '*': %s", r.ChannelPrefix)
	}

	if r.QueueSize == 0 {
		r.QueueSize = DefaultQueueSize
	}
	if r.QueueSize < 1 {
		return fmt.Errorf("redis.queue_size must be >= 1, got %d", r.QueueSize)
	}

	return nil
}

// ApplyEnv overrides file values with HOST, PORT, COORDINATOR_SESSION_ID and
// REDIS_URL when they are set, then revalidates.
func (c *CoordinatorConfig) ApplyEnv(getenv func(string) string) error {
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}

	if host := getenv("HOST"); host != "" {
		c.Server.Host = host
	}
	if port := getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		c.Server.Port = p
	}
	if id := getenv("COORDINATOR_SESSION_ID"); id != "" {
		c.Session = &SessionConfig{ID: id}
	}
	if url := getenv("REDIS_URL"); url != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = url
	}

	return c.Validate()
}

// Addr returns the host:port the hub listens on.
func (c *CoordinatorConfig) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// URL returns the WebSocket URL clients dial.
func (c *CoordinatorConfig) URL() string {
	return "ws://" + c.Addr()
}

// SessionID returns the pinned session identifier, or "" to generate one.
func (c *CoordinatorConfig) SessionID() string {
	if c.Session == nil {
		return ""
	}
	return c.Session.ID
}

// Load reads and validates coordinator.yml from the specified path.
// Unknown keys are rejected.
func Load(path string) (*CoordinatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config CoordinatorConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config file is empty: %s", path)
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path if given. With no path, DefaultPath is used if it
// exists and the built-in defaults otherwise.
func LoadOrDefault(path string) (*CoordinatorConfig, error) {
	if path != "" {
		return Load(path)
	}

	config, err := Load(DefaultPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}
