// Package rtp implements the RTP header layout, sequence/timestamp state,
// and the authenticated-encryption framing the engine uses to carry audio
// over the Secure Datagram Channel.
package rtp

import (
	"encoding/binary"
	"errors"

	"github.com/glyphwing/glyphwing/pkg/voice/aead"
)

// HeaderSize is the fixed RTP header length in bytes.
const HeaderSize = 12

// fixedVersion and fixedFlags are the constant header bytes the engine
// always emits; no extension, no padding, no marker on outbound packets.
const (
	fixedVersion = 0x80
	fixedFlags   = 0x78
)

// rtcpPayloadTypeLow and rtcpPayloadTypeHigh bound the platform's RTCP
// payload-type quirk range; inbound packets in this range are rejected.
const (
	rtcpPayloadTypeLow  = 72
	rtcpPayloadTypeHigh = 76
)

// ErrShortPacket is returned when a buffer is too small to contain a valid
// RTP header.
var ErrShortPacket = errors.New("rtp: packet shorter than header")

// ErrRTCPPayloadType is returned when an inbound packet's payload type
// falls in the platform's RTCP quirk range and must be silently dropped.
var ErrRTCPPayloadType = errors.New("rtp: rtcp payload type, dropped")

// State holds the per-session sequence/timestamp counters and SSRC. It is
// reset on every reconnect.
type State struct {
	Sequence  uint16
	Timestamp uint32
	SSRC      uint32
}

// Reset zeroes the sequence and timestamp, keeping SSRC (reassigned
// explicitly by the session state machine on Ready).
func (s *State) Reset() {
	s.Sequence = 0
	s.Timestamp = 0
}

// Packetizer builds encrypted RTP packets from plaintext audio payloads.
type Packetizer struct {
	cipher aead.Cipher
	state  *State
	out    []byte // reusable output buffer
}

// NewPacketizer returns a Packetizer writing into state and sealing with
// cipher.
func NewPacketizer(state *State, cipher aead.Cipher) *Packetizer {
	return &Packetizer{cipher: cipher, state: state, out: make([]byte, HeaderSize, HeaderSize+4096)}
}

// Packetize advances the sequence/timestamp counters, builds the header,
// seals payload under a nonce derived from the header, and returns
// header||ciphertext||tag. key must be 32 bytes. The returned slice is
// owned by the Packetizer and is overwritten by the next call.
func (p *Packetizer) Packetize(payload []byte, sampleCount int, key []byte) ([]byte, error) {
	p.state.Sequence++
	p.state.Timestamp += uint32(sampleCount)

	p.out = p.out[:HeaderSize]
	p.out[0] = fixedVersion
	p.out[1] = fixedFlags
	binary.BigEndian.PutUint16(p.out[2:4], p.state.Sequence)
	binary.BigEndian.PutUint32(p.out[4:8], p.state.Timestamp)
	binary.BigEndian.PutUint32(p.out[8:12], p.state.SSRC)

	var nonce [aead.NonceSize]byte
	copy(nonce[:HeaderSize], p.out)

	sealed, err := p.cipher.Seal(p.out, payload, nonce[:], key)
	if err != nil {
		return nil, err
	}
	p.out = sealed
	return p.out, nil
}

// Parsed is the result of De-packetizing an inbound RTP packet.
type Parsed struct {
	SSRC      uint32
	Sequence  uint16
	Timestamp uint32
	Marker    bool
	Payload   []byte // decrypted, with CSRC/extension prefix already skipped
}

// Depacketizer reverses Packetizer's framing for inbound traffic.
type Depacketizer struct {
	cipher aead.Cipher
}

// NewDepacketizer returns a Depacketizer opening ciphertext with cipher.
func NewDepacketizer(cipher aead.Cipher) *Depacketizer {
	return &Depacketizer{cipher: cipher}
}

// Depacketize parses and decrypts packet under key, returning
// ErrRTCPPayloadType for the platform's RTCP quirk range (callers must
// drop these without touching speaker state) and ErrShortPacket for
// malformed input.
func (d *Depacketizer) Depacketize(packet []byte, key []byte) (*Parsed, error) {
	if len(packet) < HeaderSize {
		return nil, ErrShortPacket
	}

	payloadType := packet[1] & 0x7F
	if payloadType >= rtcpPayloadTypeLow && payloadType <= rtcpPayloadTypeHigh {
		return nil, ErrRTCPPayloadType
	}

	csrcCount := int(packet[0] & 0x0F)
	hasExtension := packet[0]&0x10 == 0x10
	marker := packet[1]&0x80 != 0

	seq := binary.BigEndian.Uint16(packet[2:4])
	ts := binary.BigEndian.Uint32(packet[4:8])
	ssrc := binary.BigEndian.Uint32(packet[8:12])

	var nonce [aead.NonceSize]byte
	copy(nonce[:HeaderSize], packet[:HeaderSize])

	ciphertext := packet[HeaderSize:]
	plain, err := d.cipher.Open(nil, ciphertext, nonce[:], key)
	if err != nil {
		return nil, err
	}

	skip := 4 * csrcCount
	if skip > len(plain) {
		skip = len(plain)
	}
	plain = plain[skip:]

	if hasExtension && len(plain) >= 4 {
		extLen := int(binary.BigEndian.Uint16(plain[2:4]))
		extSkip := 4 + 4*extLen
		if extSkip > len(plain) {
			extSkip = len(plain)
		}
		plain = plain[extSkip:]
	}

	return &Parsed{SSRC: ssrc, Sequence: seq, Timestamp: ts, Marker: marker, Payload: plain}, nil
}
