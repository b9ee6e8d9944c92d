package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidSourceNames lists the streaming source implementations
// internal/streamsource knows how to construct.
var ValidSourceNames = []string{"youtube", "soundcloud"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the voice engine's defaults
// (the reconnect budget, and a sane ring size).
func applyDefaults(cfg *Config) {
	if cfg.Voice.ReconnectMaxRetries <= 0 {
		cfg.Voice.ReconnectMaxRetries = 10
	}
	if cfg.Voice.ReconnectBackoff <= 0 {
		cfg.Voice.ReconnectBackoff = time.Second
	}
	if cfg.Voice.ReconnectMaxBackoff <= 0 {
		cfg.Voice.ReconnectMaxBackoff = 30 * time.Second
	}
	if cfg.Voice.RingCapacityBytes <= 0 {
		cfg.Voice.RingCapacityBytes = 16384
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.BotToken == "" {
		errs = append(errs, errors.New("discord.bot_token is required"))
	}

	if cfg.Voice.RingCapacityBytes&(cfg.Voice.RingCapacityBytes-1) != 0 {
		errs = append(errs, fmt.Errorf("voice.ring_capacity_bytes %d must be a power of two", cfg.Voice.RingCapacityBytes))
	}

	seen := make(map[string]int, len(cfg.Sources))
	for i, src := range cfg.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[src.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of sources[%d]", prefix, src.Name, prev))
		}
		seen[src.Name] = i
		if !validSourceName(src.Name) {
			slog.Warn("unknown streaming source name — may be a typo or third-party source",
				"name", src.Name, "known", ValidSourceNames)
		}
	}

	if len(cfg.Sources) == 0 {
		slog.Warn("no streaming sources configured; the song pipeline will have nothing to enqueue")
	}

	return errors.Join(errs...)
}

func validSourceName(name string) bool {
	for _, known := range ValidSourceNames {
		if known == name {
			return true
		}
	}
	return false
}
