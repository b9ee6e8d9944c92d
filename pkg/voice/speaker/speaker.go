// Package speaker implements the Speaker Registry & Mixer: per-SSRC
// decoder state, the per-speaker jitter stack, and the downmix that feeds
// an optional forwarded stream.
package speaker

import (
	"log/slog"
	"sync"

	"github.com/glyphwing/glyphwing/pkg/voice/codec"
)

// mixSamples is the accumulator length per tick: one 20ms frame of
// interleaved stereo PCM at 48kHz (960 samples/channel * 2 channels).
const mixSamples = codec.FrameSamples * codec.Channels

// Speaker is one remote participant's decode state. The jitter stack is
// LIFO by construction: new payloads are pushed to the front, and the
// mixer pops from the back once per tick.
//
// This is the source engine's documented choice, not a FIFO: under load
// the stack can grow faster than it drains, and older payloads at the
// back are popped first — meaning a burst of late-arriving audio is
// played in the order it was queued, while just-pushed samples wait
// behind it. The open question of whether this is intended or should be
// last-writer-wins is called out in DESIGN.md; this implementation keeps
// the literal LIFO-push/pop-from-back behavior, deliberately preserved
// from the original engine rather than redesigned.
type Speaker struct {
	SSRC    uint32
	UserID  string
	decoder *codec.Decoder
	stack   [][]int16
}

// Mix reports a tick with no contributing speaker through its bool result
// (nil, false) rather than an error; callers skip writing a forwarded
// frame for that tick.

// Registry tracks active speakers keyed by SSRC and mixes their decoded
// audio once per tick.
type Registry struct {
	mu       sync.Mutex
	bySSRC   map[uint32]*Speaker
	logger   *slog.Logger
	decoder  func() (*codec.Decoder, error)
	encoder  *codec.Encoder
}

// New returns an empty Registry. newDecoder is injected so tests can use a
// fake codec instead of gopus.
func New(newDecoder func() (*codec.Decoder, error), encoder *codec.Encoder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		bySSRC:  make(map[uint32]*Speaker),
		logger:  logger,
		decoder: newDecoder,
		encoder: encoder,
	}
}

// OnSpeakerStart implements session.SpeakerEvents: opcode 5 creates a
// Speaker entry keyed by SSRC with a fresh decoder.
func (r *Registry) OnSpeakerStart(ssrc uint32, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySSRC[ssrc]; exists {
		return
	}
	dec, err := r.decoder()
	if err != nil {
		r.logger.Error("speaker: create decoder failed", "ssrc", ssrc, "error", err)
		return
	}
	r.bySSRC[ssrc] = &Speaker{SSRC: ssrc, UserID: userID, decoder: dec}
}

// OnSpeakerStop implements session.SpeakerEvents: opcode 13 removes the
// entry for that user id. Speakers are scanned by user id, not SSRC, since
// only the user id is provided on speaker-stop.
func (r *Registry) OnSpeakerStop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ssrc, sp := range r.bySSRC {
		if sp.UserID == userID {
			delete(r.bySSRC, ssrc)
		}
	}
}

// Len reports the number of active speakers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySSRC)
}

// PushPayload decodes an inbound Opus payload for ssrc and pushes it to
// the front of that speaker's jitter stack. A decode error for one
// speaker is logged and skipped; other speakers continue.
func (r *Registry) PushPayload(ssrc uint32, opusPayload []byte) {
	r.mu.Lock()
	sp, ok := r.bySSRC[ssrc]
	r.mu.Unlock()
	if !ok {
		return
	}
	pcm, err := sp.decoder.Decode(opusPayload)
	if err != nil {
		r.logger.Warn("speaker: decode error, dropping frame", "ssrc", ssrc, "error", err)
		return
	}
	r.mu.Lock()
	sp.stack = append([][]int16{pcm}, sp.stack...)
	r.mu.Unlock()
}

// Mix pops one payload per active speaker from the back of its jitter
// stack, sums into a shared accumulator, divides by the contributor count
// to prevent clipping, and re-encodes with Opus. Returns nil, false when
// there are no active speakers this tick. An encode error aborts the tick
// but not the session: the caller should simply drop this frame and
// continue.
func (r *Registry) Mix() ([]byte, bool) {
	r.mu.Lock()
	var contributions [][]int16
	for _, sp := range r.bySSRC {
		if len(sp.stack) == 0 {
			continue
		}
		last := len(sp.stack) - 1
		contributions = append(contributions, sp.stack[last])
		sp.stack = sp.stack[:last]
	}
	r.mu.Unlock()

	if len(contributions) == 0 {
		return nil, false
	}

	var acc [mixSamples]int32
	for _, pcm := range contributions {
		for i, s := range pcm {
			if i >= mixSamples {
				break
			}
			acc[i] += int32(s)
		}
	}
	out := make([]int16, mixSamples)
	n := int32(len(contributions))
	for i, v := range acc {
		out[i] = int16(v / n)
	}

	opusFrame, err := r.encoder.Encode(out)
	if err != nil {
		r.logger.Warn("speaker: mix encode error, dropping tick", "error", err)
		return nil, false
	}
	return opusFrame, true
}
