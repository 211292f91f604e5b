package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Default values, matching the reference server's port and the usual
// gorilla/websocket keepalive timings.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 3000
	DefaultReadLimit       = 64 * 1024
	DefaultSendBuffer      = 16
	DefaultWriteWait       = 10 * time.Second
	DefaultPongWait        = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Duration is a time.Duration that reads and writes Go duration strings in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Plain numbers are taken as seconds
		var secs float64
		if err := json.Unmarshal(data, &secs); err != nil {
			return fmt.Errorf("invalid duration %s", data)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the listener and per-connection settings.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// Maximum size in bytes of one inbound frame.
	ReadLimit int64 `json:"read_limit"`

	// Number of responses that may be queued for one connection's writer.
	SendBuffer int `json:"send_buffer"`

	WriteWait  Duration `json:"write_wait"`
	PongWait   Duration `json:"pong_wait"`
	PingPeriod Duration `json:"ping_period"`

	// Echo the first subprotocol a client offers during the handshake.
	AcceptSubprotocol bool `json:"accept_subprotocol"`

	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		ReadLimit:         DefaultReadLimit,
		SendBuffer:        DefaultSendBuffer,
		WriteWait:         Duration(DefaultWriteWait),
		PongWait:          Duration(DefaultPongWait),
		PingPeriod:        Duration(DefaultPongWait * 9 / 10),
		AcceptSubprotocol: true,
		ShutdownTimeout:   Duration(DefaultShutdownTimeout),
	}
}

// Load reads a JSON file on top of the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// ping_period follows pong_wait unless the file sets it
	var probe struct {
		PingPeriod *Duration `json:"ping_period"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.PingPeriod == nil {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.ReadLimit <= 0 {
		return fmt.Errorf("%w: read_limit must be positive", ErrInvalidConfig)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%w: send_buffer must be positive", ErrInvalidConfig)
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 || c.PingPeriod <= 0 {
		return fmt.Errorf("%w: write_wait, pong_wait and ping_period must be positive", ErrInvalidConfig)
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("%w: ping_period (%s) must be less than pong_wait (%s)",
			ErrInvalidConfig, time.Duration(c.PingPeriod), time.Duration(c.PongWait))
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: shutdown_timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
