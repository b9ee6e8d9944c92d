package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/glyphwing/glyphwing/pkg/voice/producer"
)

// ErrSourceNotRegistered is returned by CreateSource when no factory has
// been registered under the requested name.
var ErrSourceNotRegistered = errors.New("config: streaming source not registered")

// SourceNameToType maps the names accepted in SourceEntry.Name to the
// producer.SongType the built-in sources resolve to.
var SourceNameToType = map[string]producer.SongType{
	"youtube":    producer.SongYouTube,
	"soundcloud": producer.SongSoundCloud,
}

// SourceSearchOrder fixes the round-robin order producer.Search merges
// results in when every source is enabled.
var SourceSearchOrder = []producer.SongType{producer.SongYouTube, producer.SongSoundCloud}

// Registry maps streaming source names to their constructor functions, a
// factory-registry pattern applied here to producer.Source instead of
// the dropped LLM/STT/TTS provider kinds.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]func(SourceEntry) (producer.Source, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]func(SourceEntry) (producer.Source, error))}
}

// RegisterSource registers a streaming source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory func(SourceEntry) (producer.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// CreateSource instantiates a streaming source using the factory
// registered under entry.Name.
func (r *Registry) CreateSource(entry SourceEntry) (producer.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotRegistered, entry.Name)
	}
	return factory(entry)
}

// BuildSources instantiates every enabled entry in cfg.Sources, keyed by
// producer.SongType, ready to hand to voice.Config.Sources.
func BuildSources(reg *Registry, cfg *Config, nameToType map[string]producer.SongType) (map[producer.SongType]producer.Source, error) {
	out := make(map[producer.SongType]producer.Source)
	for _, entry := range cfg.Sources {
		if !entry.Enabled {
			continue
		}
		songType, ok := nameToType[entry.Name]
		if !ok {
			return nil, fmt.Errorf("config: no song type mapped for source %q", entry.Name)
		}
		src, err := reg.CreateSource(entry)
		if err != nil {
			return nil, err
		}
		out[songType] = src
	}
	return out, nil
}
