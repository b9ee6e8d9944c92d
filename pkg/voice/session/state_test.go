package session

import "testing"

func TestStateStringCoversAllStates(t *testing.T) {
	states := []State{
		CollectingInitData, InitializingWebSocket, CollectingHello,
		SendingIdentify, CollectingReady, InitializingDatagramSocket,
		SendingSelectProtocol, CollectingSessionDescription, Connected, Reconnect,
	}
	seen := make(map[string]bool)
	for _, s := range states {
		str := s.String()
		if str == "unknown" {
			t.Errorf("State(%d).String() = unknown", s)
		}
		if seen[str] {
			t.Errorf("duplicate String() output %q", str)
		}
		seen[str] = true
	}
}

func TestStateStringUnknown(t *testing.T) {
	if got := State(999).String(); got != "unknown" {
		t.Errorf("State(999).String() = %q, want unknown", got)
	}
}
