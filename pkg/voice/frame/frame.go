// Package frame defines the AudioFrame tagged union and the FrameMailbox
// that carries frames from the Audio Producer to the session worker. It is
// a leaf package so every other voice component can depend on it without
// creating an import cycle back to the root engine package.
package frame

import "sync"

// Kind tags the variant carried by an AudioFrame, replacing the
// inheritance hierarchy the original engine used for this purpose.
type Kind int

const (
	// Unset means no frame is available; the session worker should ask
	// the producer to advance.
	Unset Kind = iota
	// RawPCM carries uncompressed interleaved 16-bit PCM, which the
	// session worker still has to Opus-encode.
	RawPCM
	// EncodedOpus carries an already Opus-encoded payload, ready for
	// packetization.
	EncodedOpus
	// Skip is a sentinel meaning "advance the producer, emit nothing
	// this tick".
	Skip
)

// AudioFrame is produced by the Audio Producer and consumed exactly once
// by the session worker.
type AudioFrame struct {
	Kind    Kind
	Payload []byte
	Samples int    // sample count per channel, used to advance the RTP timestamp
	Member  string // originating guild-member id, empty for locally produced audio
}

// CompletionEvent is delivered exactly once per currentSong that reaches
// end-of-stream without being skipped.
type CompletionEvent struct {
	GuildID     string
	GuildMember string
	WasFailure  bool
}

// Mailbox is an unbounded FIFO of AudioFrame shared between the Audio
// Producer (writer) and the session worker (sole reader), satisfying the
// invariant that exactly one consumer ever drains it.
type Mailbox struct {
	mu     sync.Mutex
	frames []AudioFrame
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Send appends a frame to the tail. Never blocks and never fails; the
// mailbox is unbounded by design since it only ever holds a few seconds of
// encoded audio at most.
func (m *Mailbox) Send(f AudioFrame) {
	m.mu.Lock()
	m.frames = append(m.frames, f)
	m.mu.Unlock()
}

// TryReceive pops the oldest frame without blocking. ok is false when the
// mailbox is empty.
func (m *Mailbox) TryReceive() (f AudioFrame, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		return AudioFrame{}, false
	}
	f = m.frames[0]
	m.frames[0] = AudioFrame{}
	m.frames = m.frames[1:]
	return f, true
}

// Clear destructively discards all buffered frames, used when the
// producer reassigns currentSong so the session worker never plays stale
// audio from a cancelled song.
func (m *Mailbox) Clear() {
	m.mu.Lock()
	m.frames = nil
	m.mu.Unlock()
}

// Len reports the number of buffered frames. Intended for tests and
// metrics, not for control flow.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}
