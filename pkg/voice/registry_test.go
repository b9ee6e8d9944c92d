package voice

import (
	"context"
	"testing"
	"time"

	"github.com/glyphwing/glyphwing/pkg/voice/codec"
)

func testConfig(guildID string) Config {
	return Config{
		GuildID:    guildID,
		ChannelID:  "chan-1",
		UserID:     "user-1",
		Shard:      fakeShard{},
		NewDecoder: codec.NewDecoder,
	}
}

func waitForVoice(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestJoinRegistersEngine(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Join(context.Background(), testConfig("guild-a")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, ok := r.Engine("guild-a"); !ok {
		t.Fatal("Engine() should find the just-joined guild")
	}
	r.Shutdown()
}

func TestJoinDuplicateGuildErrors(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Join(context.Background(), testConfig("guild-b")); err != nil {
		t.Fatalf("first Join: %v", err)
	}
	if err := r.Join(context.Background(), testConfig("guild-b")); err == nil {
		t.Error("second Join for the same guild should error")
	}
	r.Shutdown()
}

func TestEngineReportsNotFoundForUnknownGuild(t *testing.T) {
	r := NewRegistry(nil)
	if _, ok := r.Engine("nonexistent"); ok {
		t.Error("Engine() should report false for an unjoined guild")
	}
}

func TestLeaveRemovesEngine(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Join(context.Background(), testConfig("guild-c")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	waitForVoice(t, func() bool {
		e, ok := r.Engine("guild-c")
		return ok && e != nil
	})

	r.Leave("guild-c")
	waitForVoice(t, func() bool {
		_, ok := r.Engine("guild-c")
		return !ok
	})
}

func TestLeaveUnknownGuildIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	r.Leave("nonexistent") // must not panic
}

func TestShutdownStopsEveryEngine(t *testing.T) {
	r := NewRegistry(nil)
	for _, id := range []string{"guild-d", "guild-e", "guild-f"} {
		if err := r.Join(context.Background(), testConfig(id)); err != nil {
			t.Fatalf("Join(%s): %v", id, err)
		}
	}
	r.Shutdown()
	for _, id := range []string{"guild-d", "guild-e", "guild-f"} {
		if _, ok := r.Engine(id); ok {
			t.Errorf("Engine(%s) still present after Shutdown", id)
		}
	}
}
