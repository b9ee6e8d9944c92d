// Package voice is the public entry point to the guild voice transport and
// mixing engine: it wires the session, producer, speaker, and supervisor
// components into a single per-guild worker group and exposes a registry
// over them keyed by guild ID.
package voice

import (
	"github.com/glyphwing/glyphwing/pkg/voice/frame"
	"github.com/glyphwing/glyphwing/pkg/voice/producer"
)

// AudioFrame is one unit of audio moving through a GuildEngine, either raw
// PCM awaiting encode or an already-encoded Opus payload.
type AudioFrame = frame.AudioFrame

// CompletionEvent reports that a song finished, naturally or by failure.
type CompletionEvent = frame.CompletionEvent

// Song is a single producer queue entry.
type Song = producer.Song

// SongType names a streaming source a Song resolves through.
type SongType = producer.SongType

// SongPlaylist is the per-guild song queue and loop-mode state.
type SongPlaylist = producer.Playlist

// Re-export the frame kinds so callers outside this module
// don't need to import the leaf packages directly.
const (
	FrameRawPCM      = frame.RawPCM
	FrameEncodedOpus = frame.EncodedOpus
	FrameSkip        = frame.Skip
)
