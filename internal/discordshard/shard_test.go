package discordshard

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func newTestShard(t *testing.T) *Shard {
	t.Helper()
	sess, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	sess.State.User = &discordgo.User{ID: "bot-self"}
	return New(sess)
}

func TestInitDataChannelReusesSameMailbox(t *testing.T) {
	s := newTestShard(t)
	a := s.InitDataChannel("guild-1")
	b := s.InitDataChannel("guild-1")
	if a != b {
		t.Error("InitDataChannel should return the same channel for repeated calls on the same guild")
	}
}

func TestDeliveryWaitsForBothEvents(t *testing.T) {
	s := newTestShard(t)
	ch := s.InitDataChannel("guild-1")

	s.onVoiceServerUpdate(nil, &discordgo.VoiceServerUpdate{
		GuildID:  "guild-1",
		Token:    "tok",
		Endpoint: "endpoint.example.com",
	})
	select {
	case <-ch:
		t.Fatal("InitData should not be delivered before VOICE_STATE_UPDATE arrives too")
	default:
	}
}

func TestDeliveryAfterBothEventsArrive(t *testing.T) {
	s := newTestShard(t)
	ch := s.InitDataChannel("guild-1")

	s.onVoiceServerUpdate(nil, &discordgo.VoiceServerUpdate{
		GuildID:  "guild-1",
		Token:    "tok",
		Endpoint: "endpoint.example.com",
	})
	s.onVoiceStateUpdate(s.sess, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID:   "guild-1",
			UserID:    "bot-self",
			SessionID: "sess-abc",
		},
	})

	select {
	case data := <-ch:
		if data.Token != "tok" || data.Endpoint != "endpoint.example.com" || data.SessionID != "sess-abc" {
			t.Errorf("data = %+v, missing an expected field", data)
		}
	case <-time.After(time.Second):
		t.Fatal("InitData was never delivered after both events arrived")
	}
}

func TestVoiceStateUpdateIgnoresOtherUsers(t *testing.T) {
	s := newTestShard(t)
	ch := s.InitDataChannel("guild-1")

	s.onVoiceServerUpdate(nil, &discordgo.VoiceServerUpdate{
		GuildID:  "guild-1",
		Token:    "tok",
		Endpoint: "endpoint.example.com",
	})
	s.onVoiceStateUpdate(s.sess, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID:   "guild-1",
			UserID:    "someone-else",
			SessionID: "sess-abc",
		},
	})

	select {
	case data := <-ch:
		t.Fatalf("InitData should not be delivered for another user's voice state, got %+v", data)
	default:
	}
}

func TestDeliveryDrainsStaleUnreadData(t *testing.T) {
	s := newTestShard(t)
	ch := s.InitDataChannel("guild-1")

	deliver := func(token, sessionID string) {
		s.onVoiceServerUpdate(nil, &discordgo.VoiceServerUpdate{
			GuildID:  "guild-1",
			Token:    token,
			Endpoint: "endpoint.example.com",
		})
		s.onVoiceStateUpdate(s.sess, &discordgo.VoiceStateUpdate{
			VoiceState: &discordgo.VoiceState{
				GuildID:   "guild-1",
				UserID:    "bot-self",
				SessionID: sessionID,
			},
		})
	}

	deliver("stale-token", "stale-session")
	deliver("fresh-token", "fresh-session")

	select {
	case data := <-ch:
		if data.Token != "fresh-token" {
			t.Errorf("Token = %q, want the most recent delivery to win", data.Token)
		}
	case <-time.After(time.Second):
		t.Fatal("InitData was never delivered")
	}

	select {
	case <-ch:
		t.Fatal("mailbox should only hold the single freshest InitData")
	default:
	}
}

func TestRequestJoinPropagatesGatewayError(t *testing.T) {
	s := newTestShard(t)
	// An unopened session has no voice-gateway wiring, so ChannelVoiceJoinManual
	// must fail rather than hang.
	if err := s.RequestJoin(nil, "guild-1", "chan-1"); err == nil {
		t.Error("RequestJoin on an unopened session should return an error")
	}
}
