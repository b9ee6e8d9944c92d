// Package codec wraps the Opus codec consumed by the RTP path and the
// mixer behind small stateful types, grounded on layeh.com/gopus.
package codec

import "layeh.com/gopus"

const (
	// SampleRate is the fixed Opus sample rate used throughout the engine.
	SampleRate = 48000
	// Channels is the fixed channel count (stereo).
	Channels = 2
	// FrameSamples is the number of samples per channel in one 20 ms frame.
	FrameSamples = 960
	// MaxDecodeSamples bounds a single decoder call: the Opus codec's
	// largest defined frame is 120ms, i.e. up to 5760 samples per
	// channel-pair at 48kHz.
	MaxDecodeSamples = 5760
)

// Encoder produces one opaque Opus frame per 20 ms of PCM input.
type Encoder struct {
	enc *gopus.Encoder
}

// NewEncoder returns an Encoder at the fixed sample rate and channel count.
func NewEncoder() (*Encoder, error) {
	enc, err := gopus.NewEncoder(SampleRate, Channels, gopus.Audio)
	if err != nil {
		return nil, err
	}
	return &Encoder{enc: enc}, nil
}

// Encode compresses one frame of interleaved 16-bit PCM samples
// (len(pcm) == FrameSamples*Channels) into an Opus packet.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	return e.enc.Encode(pcm, FrameSamples, FrameSamples*Channels*2)
}

// Decoder decodes Opus packets from a single speaker into interleaved PCM.
type Decoder struct {
	dec *gopus.Decoder
}

// NewDecoder returns a Decoder at the fixed sample rate and channel count.
func NewDecoder() (*Decoder, error) {
	dec, err := gopus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, err
	}
	return &Decoder{dec: dec}, nil
}

// Decode expands one Opus packet into interleaved 16-bit PCM samples.
func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	return d.dec.Decode(packet, MaxDecodeSamples, false)
}

// Int16ToBytes converts interleaved PCM samples to little-endian bytes,
// the wire representation written into raw AudioFrame payloads.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// BytesToInt16 converts little-endian PCM bytes back to samples.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}
