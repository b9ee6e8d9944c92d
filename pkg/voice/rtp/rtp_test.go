package rtp

import (
	"encoding/binary"
	"testing"

	"github.com/glyphwing/glyphwing/pkg/voice/aead"
)

func testKey() []byte {
	k := make([]byte, aead.KeySize)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestPacketizeDepacketizeRoundTrip(t *testing.T) {
	cipher := aead.New()
	key := testKey()
	state := &State{SSRC: 42}
	pktz := NewPacketizer(state, cipher)
	dpktz := NewDepacketizer(cipher)

	payload := []byte("opus frame bytes")
	packet, err := pktz.Packetize(payload, 960, key)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}

	parsed, err := dpktz.Depacketize(packet, key)
	if err != nil {
		t.Fatalf("Depacketize: %v", err)
	}
	if parsed.SSRC != 42 {
		t.Errorf("SSRC = %d, want 42", parsed.SSRC)
	}
	if parsed.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", parsed.Sequence)
	}
	if parsed.Timestamp != 960 {
		t.Errorf("Timestamp = %d, want 960", parsed.Timestamp)
	}
	if string(parsed.Payload) != string(payload) {
		t.Errorf("Payload = %q, want %q", parsed.Payload, payload)
	}
}

func TestSequenceAndTimestampMonotonicity(t *testing.T) {
	cipher := aead.New()
	key := testKey()
	state := &State{SSRC: 1}
	pktz := NewPacketizer(state, cipher)

	var lastSeq uint16
	var lastTS uint32
	for i := 0; i < 5; i++ {
		packet, err := pktz.Packetize([]byte("x"), 960, key)
		if err != nil {
			t.Fatalf("Packetize: %v", err)
		}
		seq := binary.BigEndian.Uint16(packet[2:4])
		ts := binary.BigEndian.Uint32(packet[4:8])
		if i > 0 {
			if seq != lastSeq+1 {
				t.Errorf("iteration %d: sequence = %d, want %d", i, seq, lastSeq+1)
			}
			if ts != lastTS+960 {
				t.Errorf("iteration %d: timestamp = %d, want %d", i, ts, lastTS+960)
			}
		}
		lastSeq, lastTS = seq, ts
	}
}

func TestDepacketizeRejectsRTCPPayloadType(t *testing.T) {
	cipher := aead.New()
	key := testKey()
	state := &State{SSRC: 1}
	pktz := NewPacketizer(state, cipher)
	dpktz := NewDepacketizer(cipher)

	packet, err := pktz.Packetize([]byte("x"), 960, key)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}
	// Force the payload type into the RTCP quirk range [72, 76], keeping
	// the marker bit as-is.
	packet[1] = (packet[1] & 0x80) | 74

	if _, err := dpktz.Depacketize(packet, key); err != ErrRTCPPayloadType {
		t.Errorf("err = %v, want ErrRTCPPayloadType", err)
	}
}

func TestDepacketizeRejectsShortPacket(t *testing.T) {
	dpktz := NewDepacketizer(aead.New())
	if _, err := dpktz.Depacketize(make([]byte, HeaderSize-1), testKey()); err != ErrShortPacket {
		t.Errorf("err = %v, want ErrShortPacket", err)
	}
}

func TestDepacketizeSkipsCSRCAndExtension(t *testing.T) {
	cipher := aead.New()
	key := testKey()

	payload := []byte("hello-audio")
	// Hand-build a plaintext body: 2 CSRC identifiers (8 bytes) + a
	// 1-word extension header (profile + length=1, i.e. 4 bytes of
	// extension data) + the actual payload.
	var body []byte
	body = append(body, make([]byte, 8)...) // 2 CSRCs
	ext := make([]byte, 8)                  // profile(2) + length(2) + 1 word of data(4)
	binary.BigEndian.PutUint16(ext[2:4], 1)
	body = append(body, ext...)
	body = append(body, payload...)

	header := make([]byte, HeaderSize)
	header[0] = 0x80 | 0x10 | 2 // version, extension bit, CSRC count = 2
	header[1] = 0x78
	binary.BigEndian.PutUint16(header[2:4], 7)
	binary.BigEndian.PutUint32(header[4:8], 7680)
	binary.BigEndian.PutUint32(header[8:12], 99)

	var nonce [aead.NonceSize]byte
	copy(nonce[:HeaderSize], header)
	sealed, err := cipher.Seal(append([]byte{}, header...), body, nonce[:], key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	dpktz := NewDepacketizer(cipher)
	parsed, err := dpktz.Depacketize(sealed, key)
	if err != nil {
		t.Fatalf("Depacketize: %v", err)
	}
	if string(parsed.Payload) != string(payload) {
		t.Errorf("Payload = %q, want %q", parsed.Payload, payload)
	}
}

func TestStateResetKeepsSSRC(t *testing.T) {
	s := &State{Sequence: 5, Timestamp: 9600, SSRC: 777}
	s.Reset()
	if s.Sequence != 0 || s.Timestamp != 0 {
		t.Errorf("Reset left Sequence=%d Timestamp=%d, want both 0", s.Sequence, s.Timestamp)
	}
	if s.SSRC != 777 {
		t.Errorf("Reset changed SSRC to %d, want 777 preserved", s.SSRC)
	}
}
