// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli"
)

// DefaultAddress is the TCP address the chat listener binds by default.
const DefaultAddress = ":5555"

// RateLimitConfig defines the parameters for per-session message rate limiting.
// A Burst of zero disables limiting.
type RateLimitConfig struct {
	Burst          int           `toml:"burst"`
	RefillInterval time.Duration `toml:"refill_interval"`
}

// Config holds the server configuration settings.
type Config struct {
	// Address is the TCP listen address of the line protocol.
	Address string `toml:"address"`
	// WebSocketAddress enables the WebSocket gateway when not empty.
	WebSocketAddress string   `toml:"websocket_address"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	// MaxLineLength bounds one inbound line in bytes.
	MaxLineLength   int             `toml:"max_line_length"`
	WriteTimeout    time.Duration   `toml:"write_timeout"`
	ShutdownTimeout time.Duration   `toml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `toml:"rate_limit"`
	Debug           bool            `toml:"debug"`
}

func defaultConfig() Config {
	return Config{
		Address:          DefaultAddress,
		WebSocketAddress: "",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxLineLength:   4096,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}

	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = 4096
	}

	if cfg.WriteTimeout < 0 {
		cfg.WriteTimeout = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()
	cfg.LoadFromEnv()
	return cfg
}

// LoadFromEnv overrides settings with the CHAT_* environment variables that are set.
func (c *Config) LoadFromEnv() {
	if addr := os.Getenv("CHAT_ADDRESS"); addr != "" {
		c.Address = addr
	}

	if addr := os.Getenv("CHAT_WS_ADDRESS"); addr != "" {
		c.WebSocketAddress = addr
	}

	if origins := os.Getenv("CHAT_ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = parseOrigins(origins)
	}

	if maxLine := os.Getenv("CHAT_MAX_LINE"); maxLine != "" {
		c.MaxLineLength = parseIntValue(maxLine, c.MaxLineLength)
	}

	if timeout := os.Getenv("CHAT_WRITE_TIMEOUT"); timeout != "" {
		c.WriteTimeout = parseDuration(timeout, c.WriteTimeout)
	}

	if burst := os.Getenv("CHAT_RATE_BURST"); burst != "" {
		c.RateLimit.Burst = parseIntValue(burst, c.RateLimit.Burst)
	}

	if interval := os.Getenv("CHAT_RATE_INTERVAL"); interval != "" {
		c.RateLimit.RefillInterval = parseRefillInterval(interval, c.RateLimit.RefillInterval)
	}
}

// LoadFromFile decodes a TOML configuration file over the current settings.
func (c *Config) LoadFromFile(filename string) error {
	if _, err := os.Stat(filename); err != nil {
		return fmt.Errorf("config file '%s' is not found", filename)
	}

	if _, err := toml.DecodeFile(filename, c); err != nil {
		return fmt.Errorf("config file '%s': %w", filename, err)
	}
	return nil
}

// LoadFromContext overrides settings with the command line flags that were
// given explicitly.
func (c *Config) LoadFromContext(ctx *cli.Context) {
	if ctx.IsSet("address") {
		c.Address = ctx.String("address")
	}
	if ctx.IsSet("websocket-address") {
		c.WebSocketAddress = ctx.String("websocket-address")
	}
	if ctx.IsSet("allowed-origin") {
		c.AllowedOrigins = ctx.StringSlice("allowed-origin")
	}
	if ctx.IsSet("max-line") {
		c.MaxLineLength = ctx.Int("max-line")
	}
	if ctx.IsSet("write-timeout") {
		c.WriteTimeout = ctx.Duration("write-timeout")
	}
	if ctx.IsSet("rate-burst") {
		c.RateLimit.Burst = ctx.Int("rate-burst")
	}
	if ctx.IsSet("rate-interval") {
		c.RateLimit.RefillInterval = ctx.Duration("rate-interval")
	}
	if ctx.IsSet("shutdown-timeout") {
		c.ShutdownTimeout = ctx.Duration("shutdown-timeout")
	}
	if ctx.IsSet("debug") {
		c.Debug = ctx.Bool("debug")
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts a Go duration or a number of seconds. Zero is valid
// and disables the timeout.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// parseRefillInterval accepts a Go duration ("500ms") or a number of seconds.
func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// Flags returns the command line flags understood by LoadFromContext.
func Flags() []cli.Flag {
	defaults := defaultConfig()
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "TOML configuration file",
		},
		cli.StringFlag{
			Name:  "address, a",
			Usage: "TCP listen address of the chat",
			Value: defaults.Address,
		},
		cli.StringFlag{
			Name:  "websocket-address, w",
			Usage: "Listen address of the WebSocket gateway (disabled when empty)",
		},
		cli.StringSliceFlag{
			Name:  "allowed-origin",
			Usage: "Origin allowed to open WebSocket sessions, '*' for any (repeatable)",
		},
		cli.IntFlag{
			Name:  "max-line",
			Usage: "Longest accepted line in bytes",
			Value: defaults.MaxLineLength,
		},
		cli.DurationFlag{
			Name:  "write-timeout",
			Usage: "Deadline for one write to a client, 0 disables it",
			Value: defaults.WriteTimeout,
		},
		cli.IntFlag{
			Name:  "rate-burst",
			Usage: "Chat lines allowed per refill interval, 0 disables limiting",
			Value: defaults.RateLimit.Burst,
		},
		cli.DurationFlag{
			Name:  "rate-interval",
			Usage: "Refill interval of the rate limiter",
			Value: defaults.RateLimit.RefillInterval,
		},
		cli.DurationFlag{
			Name:  "shutdown-timeout",
			Usage: "How long to wait for sessions to end on shutdown",
			Value: defaults.ShutdownTimeout,
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "Enable debug output",
		},
	}
}
