package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// EngineRegistry owns a GuildEngine per guild and runs each in its own
// goroutine, replacing the per-guild global singleton the original engine
// relied on: a work-stealing pool returning a future becomes one owned,
// independently cancellable GuildEngine per guild, looked up from a
// mutex-guarded map and tracked by a sync.WaitGroup so Shutdown can wait
// for every engine goroutine to return.
type EngineRegistry struct {
	logger *slog.Logger

	mu       sync.Mutex
	engines  map[string]*GuildEngine
	runGroup sync.WaitGroup
}

// NewRegistry returns an empty EngineRegistry.
func NewRegistry(logger *slog.Logger) *EngineRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineRegistry{logger: logger, engines: make(map[string]*GuildEngine)}
}

// Join creates, starts, and registers a GuildEngine for cfg.GuildID. It is
// an error to Join a guild that already has a running engine; call Leave
// first.
func (r *EngineRegistry) Join(ctx context.Context, cfg Config) error {
	r.mu.Lock()
	if _, exists := r.engines[cfg.GuildID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("voice: engine already running for guild %s", cfg.GuildID)
	}
	engine, err := New(cfg)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("voice: create engine: %w", err)
	}
	r.engines[cfg.GuildID] = engine
	r.mu.Unlock()

	r.runGroup.Add(1)
	go func() {
		defer r.runGroup.Done()
		if err := engine.Run(ctx); err != nil {
			r.logger.Warn("voice registry: engine exited", "guild_id", cfg.GuildID, "error", err)
		}
		r.mu.Lock()
		delete(r.engines, cfg.GuildID)
		r.mu.Unlock()
	}()
	return nil
}

// Engine returns the running engine for guildID, if any.
func (r *EngineRegistry) Engine(guildID string) (*GuildEngine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[guildID]
	return e, ok
}

// Leave stops and unregisters the engine for guildID, if running.
func (r *EngineRegistry) Leave(guildID string) {
	r.mu.Lock()
	engine, ok := r.engines[guildID]
	r.mu.Unlock()
	if !ok {
		return
	}
	engine.Stop()
}

// Shutdown stops every running engine and waits for their goroutines to
// return.
func (r *EngineRegistry) Shutdown() {
	r.mu.Lock()
	guildIDs := make([]string, 0, len(r.engines))
	for id := range r.engines {
		guildIDs = append(guildIDs, id)
	}
	r.mu.Unlock()

	for _, id := range guildIDs {
		r.Leave(id)
	}
	r.runGroup.Wait()
}
