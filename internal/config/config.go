// Package config provides the configuration schema, loader, and stream
// source registry for the glyphwing voice engine.
package config

import "time"

// Config is the root configuration structure for glyphwing.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Discord DiscordConfig `yaml:"discord"`
	Voice   VoiceConfig   `yaml:"voice"`
	Sources []SourceEntry `yaml:"sources"`
}

// ServerConfig holds process-wide network and logging settings.
type ServerConfig struct {
	// MetricsAddr is the TCP address the Prometheus /metrics endpoint
	// listens on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel names a log/slog verbosity level accepted in configuration.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels, or empty
// (meaning "use the default").
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// DiscordConfig holds the credentials the control shard needs to open a
// gateway session.
type DiscordConfig struct {
	// BotToken authenticates the gateway session. Required.
	BotToken string `yaml:"bot_token"`
}

// VoiceConfig holds the settings applied to every GuildEngine; there is no
// per-guild override.
type VoiceConfig struct {
	// ReconnectMaxRetries bounds the Connection Supervisor's budget before
	// a guild engine gives up and tears itself down. Defaults to 10.
	ReconnectMaxRetries int `yaml:"reconnect_max_retries"`

	// ReconnectBackoff is the initial backoff between reconnect attempts,
	// doubling up to ReconnectMaxBackoff. Defaults to 1s.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// ReconnectMaxBackoff caps the doubling backoff. Defaults to 30s.
	ReconnectMaxBackoff time.Duration `yaml:"reconnect_max_backoff"`

	// RingCapacityBytes must be a power of two; defaults to 16384. It is
	// validated but not applied: the datagram channel's input and output
	// rings always use the fixed datagram.RingSize.
	RingCapacityBytes int `yaml:"ring_capacity_bytes"`

	// ForwardTarget is loaded but not read by cmd/glyphwing, which starts
	// every GuildEngine without a forwarding sink; inbound audio is then
	// decoded into the speaker jitter stacks but never mixed or forwarded.
	ForwardTarget string `yaml:"forward_target"`
}

// SourceEntry declares one streaming source to register with
// internal/streamsource at startup.
type SourceEntry struct {
	// Name selects the source implementation: "youtube" or "soundcloud".
	Name string `yaml:"name"`

	// Enabled toggles the source without removing its configuration.
	Enabled bool `yaml:"enabled"`
}
