package frame

import "testing"

func TestMailboxSendAndTryReceiveFIFO(t *testing.T) {
	m := NewMailbox()
	m.Send(AudioFrame{Kind: RawPCM, Payload: []byte("1")})
	m.Send(AudioFrame{Kind: RawPCM, Payload: []byte("2")})

	f, ok := m.TryReceive()
	if !ok || string(f.Payload) != "1" {
		t.Fatalf("first TryReceive = %v, %v", f, ok)
	}
	f, ok = m.TryReceive()
	if !ok || string(f.Payload) != "2" {
		t.Fatalf("second TryReceive = %v, %v", f, ok)
	}
	if _, ok := m.TryReceive(); ok {
		t.Error("TryReceive on empty mailbox should report false")
	}
}

func TestMailboxClearDiscardsBuffered(t *testing.T) {
	m := NewMailbox()
	m.Send(AudioFrame{Kind: RawPCM})
	m.Send(AudioFrame{Kind: RawPCM})
	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", m.Len())
	}
}

func TestMailboxLenTracksBuffered(t *testing.T) {
	m := NewMailbox()
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
	m.Send(AudioFrame{Kind: RawPCM})
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	m.TryReceive()
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}
