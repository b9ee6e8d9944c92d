package ring

import (
	"bytes"
	"testing"
)

func TestNewRoundsCapacityToPowerOfTwo(t *testing.T) {
	b := New(10)
	if b.Cap() != 16 {
		t.Errorf("Cap() = %d, want 16", b.Cap())
	}
}

func TestNewPanicsOnNonPositiveCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for capacity <= 0")
		}
	}()
	New(0)
}

func TestPushAndPopView(t *testing.T) {
	b := New(8)
	if !b.Push([]byte("abcd")) {
		t.Fatal("Push should succeed within capacity")
	}
	if b.Len() != 4 {
		t.Errorf("Len() = %d, want 4", b.Len())
	}
	got := b.PopView(4)
	if !bytes.Equal(got, []byte("abcd")) {
		t.Errorf("PopView() = %q, want %q", got, "abcd")
	}
	// PopView must not consume.
	if b.Len() != 4 {
		t.Errorf("Len() after PopView = %d, want 4 (unchanged)", b.Len())
	}
}

func TestPushRejectsOverflow(t *testing.T) {
	b := New(4)
	if !b.Push([]byte("abcd")) {
		t.Fatal("Push should fill exactly to capacity")
	}
	if b.Push([]byte("e")) {
		t.Error("Push should reject writes beyond remaining capacity")
	}
}

func TestConsumeAdvancesReadCursor(t *testing.T) {
	b := New(8)
	b.Push([]byte("abcdef"))
	b.Consume(3)
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	got := b.PopView(3)
	if !bytes.Equal(got, []byte("def")) {
		t.Errorf("PopView() after Consume = %q, want %q", got, "def")
	}
}

func TestWraparound(t *testing.T) {
	b := New(4)
	b.Push([]byte("ab"))
	b.Consume(2)
	// head/tail are now both at offset 2; pushing 4 bytes wraps around.
	b.Push([]byte("cdef"))
	if b.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", b.Len())
	}
	got := b.PopView(4)
	if !bytes.Equal(got, []byte("cdef")) {
		t.Errorf("PopView() after wraparound = %q, want %q", got, "cdef")
	}
}

func TestClearResetsState(t *testing.T) {
	b := New(8)
	b.Push([]byte("abcd"))
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", b.Len())
	}
	if !b.Push([]byte("12345678")) {
		t.Error("Push should succeed at full capacity after Clear")
	}
}

func TestConsumeClampsToLen(t *testing.T) {
	b := New(8)
	b.Push([]byte("ab"))
	b.Consume(10)
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after over-consuming", b.Len())
	}
}

func TestPopViewClampsToLen(t *testing.T) {
	b := New(8)
	b.Push([]byte("ab"))
	got := b.PopView(10)
	if !bytes.Equal(got, []byte("ab")) {
		t.Errorf("PopView(10) = %q, want %q", got, "ab")
	}
}
