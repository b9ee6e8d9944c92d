// Package signaling implements the Secure Signalling Channel: a minimal
// text-frame transport over a TLS stream, carrying only the framing the
// voice handshake needs (FIN bit, opcode, client masking, 7/16/64-bit
// payload length).
package signaling

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
)

// opcodeText is the only frame opcode the engine ever emits or expects;
// control opcodes (ping/pong/close) are out of scope for this minimal
// transport.
const opcodeText = 0x1

const (
	finBit  = 0x80
	maskBit = 0x80
)

const (
	lengthMagic16 = 126
	lengthMagic64 = 127
)

// ErrIncompleteFrame is returned by Decode when the buffer does not yet
// contain a full frame; the caller should buffer more input and retry.
var ErrIncompleteFrame = errors.New("signaling: incomplete frame")

// ErrUnsupportedOpcode is returned when a decoded frame does not carry
// opcodeText.
var ErrUnsupportedOpcode = errors.New("signaling: unsupported opcode")

// Encode frames payload as a masked text frame ready to write to the
// socket. Outbound frames are always masked, per the platform's
// requirement for client-originated frames.
func Encode(payload []byte) []byte {
	var header []byte
	n := len(payload)

	switch {
	case n < lengthMagic16:
		header = []byte{finBit | opcodeText, maskBit | byte(n)}
	case n <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = finBit | opcodeText
		header[1] = maskBit | lengthMagic16
		binary.BigEndian.PutUint16(header[2:4], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = finBit | opcodeText
		header[1] = maskBit | lengthMagic64
		binary.BigEndian.PutUint64(header[2:10], uint64(n))
	}

	var maskKey [4]byte
	binary.BigEndian.PutUint32(maskKey[:], rand.Uint32())

	out := make([]byte, 0, len(header)+4+n)
	out = append(out, header...)
	out = append(out, maskKey[:]...)
	masked := make([]byte, n)
	for i, b := range payload {
		masked[i] = b ^ maskKey[i%4]
	}
	out = append(out, masked...)
	return out
}

// Decode attempts to parse one frame from the front of buf. It returns the
// unmasked payload, the number of bytes consumed from buf, and an error.
// ErrIncompleteFrame means the caller should wait for more bytes; it is
// not a fatal condition.
func Decode(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < 2 {
		return nil, 0, ErrIncompleteFrame
	}

	opcode := buf[0] & 0x0F
	masked := buf[1]&maskBit != 0
	lenField := int(buf[1] &^ maskBit)

	offset := 2
	var payloadLen int
	switch lenField {
	case lengthMagic16:
		if len(buf) < offset+2 {
			return nil, 0, ErrIncompleteFrame
		}
		payloadLen = int(binary.BigEndian.Uint16(buf[offset : offset+2]))
		offset += 2
	case lengthMagic64:
		if len(buf) < offset+8 {
			return nil, 0, ErrIncompleteFrame
		}
		payloadLen = int(binary.BigEndian.Uint64(buf[offset : offset+8]))
		offset += 8
	default:
		payloadLen = lenField
	}

	maskLen := 0
	if masked {
		maskLen = 4
	}
	if len(buf) < offset+maskLen+payloadLen {
		return nil, 0, ErrIncompleteFrame
	}

	var maskKey [4]byte
	if masked {
		copy(maskKey[:], buf[offset:offset+4])
		offset += 4
	}

	raw := buf[offset : offset+payloadLen]
	out := make([]byte, payloadLen)
	if masked {
		for i, b := range raw {
			out[i] = b ^ maskKey[i%4]
		}
	} else {
		copy(out, raw)
	}
	consumed = offset + payloadLen

	if opcode != opcodeText {
		return nil, consumed, ErrUnsupportedOpcode
	}
	return out, consumed, nil
}
