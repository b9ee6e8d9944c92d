package signaling

import (
	"bytes"
	"testing"
)

func TestSendTextQueuesEncodedFrame(t *testing.T) {
	c := New()
	c.SendText([]byte("hello"))
	if len(c.out) != 1 {
		t.Fatalf("out queue len = %d, want 1", len(c.out))
	}
	payload, _, err := Decode(c.out[0])
	if err != nil {
		t.Fatalf("Decode queued frame: %v", err)
	}
	if !bytes.Equal(payload, []byte("hello")) {
		t.Errorf("queued payload = %q, want %q", payload, "hello")
	}
}

func TestDrainPendingAccumulatesMultipleFrames(t *testing.T) {
	c := New()
	c.pending = append(Encode([]byte("first")), Encode([]byte("second"))...)

	out, err := c.drainPending()
	if err != nil {
		t.Fatalf("drainPending: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d frames, want 2", len(out))
	}
	if !bytes.Equal(out[0], []byte("first")) || !bytes.Equal(out[1], []byte("second")) {
		t.Errorf("frames = %q, %q", out[0], out[1])
	}
	if len(c.pending) != 0 {
		t.Errorf("pending after full drain = %d bytes, want 0", len(c.pending))
	}
}

func TestDrainPendingLeavesPartialFrameBuffered(t *testing.T) {
	c := New()
	full := Encode([]byte("complete"))
	partial := Encode([]byte("incomplete-tail"))
	c.pending = append(full, partial[:len(partial)-3]...)

	out, err := c.drainPending()
	if err != nil {
		t.Fatalf("drainPending: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d frames, want 1", len(out))
	}
	if len(c.pending) == 0 {
		t.Error("partial frame should remain buffered in pending")
	}
}

func TestDrainPendingReturnsWouldBlockWhenNothingReady(t *testing.T) {
	c := New()
	if _, err := c.drainPending(); err != ErrWouldBlock {
		t.Errorf("err = %v, want ErrWouldBlock", err)
	}
}

func TestDrainPendingSkipsUnsupportedOpcodeFrames(t *testing.T) {
	c := New()
	ping := []byte{finBit | 0x9, 0x00}
	c.pending = append(ping, Encode([]byte("payload"))...)

	out, err := c.drainPending()
	if err != nil {
		t.Fatalf("drainPending: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d frames, want 1 (ping should be skipped)", len(out))
	}
	if !bytes.Equal(out[0], []byte("payload")) {
		t.Errorf("frame = %q, want %q", out[0], "payload")
	}
}

func TestProcessIORejectsWhenNotConnected(t *testing.T) {
	c := New()
	if _, err := c.ProcessIO(0); err == nil {
		t.Error("ProcessIO should fail before Dial")
	}
}
