// Package discordshard adapts a *discordgo.Session gateway connection into
// the session.ControlShard interface the voice engine depends on. It
// confines discordgo's own voice transport to the gateway/REST boundary
// this engine deliberately bypasses: it never calls
// discordgo.ChannelVoiceJoin or touches discordgo's VoiceConnection type,
// only the manual join request and the two gateway events that carry
// voice-server assignment.
package discordshard

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/glyphwing/glyphwing/pkg/voice/session"
)

// Shard wraps a discordgo gateway session and fans VOICE_SERVER_UPDATE /
// VOICE_STATE_UPDATE events out to per-guild InitData mailboxes.
type Shard struct {
	sess *discordgo.Session

	mu        sync.Mutex
	mailboxes map[string]chan session.InitData
	pending   map[string]session.InitData // partially assembled per guild
}

// New registers gateway handlers on sess and returns a Shard implementing
// session.ControlShard. sess must already be opened (Session.Open called)
// before any RequestJoin.
func New(sess *discordgo.Session) *Shard {
	s := &Shard{
		sess:      sess,
		mailboxes: make(map[string]chan session.InitData),
		pending:   make(map[string]session.InitData),
	}
	sess.AddHandler(s.onVoiceServerUpdate)
	sess.AddHandler(s.onVoiceStateUpdate)
	return s
}

// RequestJoin sends the gateway op-4 voice state update to join channelID
// in guildID without invoking discordgo's own voice transport
// (ChannelVoiceJoinManual only signals intent; the VOICE_SERVER_UPDATE and
// VOICE_STATE_UPDATE events that follow are what actually deliver the
// InitData this engine needs).
func (s *Shard) RequestJoin(ctx context.Context, guildID, channelID string) error {
	if err := s.sess.ChannelVoiceJoinManual(guildID, channelID, false, false); err != nil {
		return fmt.Errorf("discordshard: request voice join: %w", err)
	}
	return nil
}

// InitDataChannel returns the per-guild mailbox that receives InitData
// once both the VOICE_SERVER_UPDATE and VOICE_STATE_UPDATE events for a
// pending join have arrived.
func (s *Shard) InitDataChannel(guildID string) <-chan session.InitData {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.mailboxes[guildID]
	if !ok {
		ch = make(chan session.InitData, 1)
		s.mailboxes[guildID] = ch
	}
	return ch
}

func (s *Shard) onVoiceServerUpdate(_ *discordgo.Session, v *discordgo.VoiceServerUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.pending[v.GuildID]
	data.Token = v.Token
	data.Endpoint = v.Endpoint
	s.pending[v.GuildID] = data
	s.deliverLocked(v.GuildID)
}

func (s *Shard) onVoiceStateUpdate(sess *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if sess.State == nil || sess.State.User == nil || v.UserID != sess.State.User.ID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.pending[v.GuildID]
	data.SessionID = v.SessionID
	s.pending[v.GuildID] = data
	s.deliverLocked(v.GuildID)
}

// deliverLocked publishes pending InitData to the guild's mailbox once
// every field has been populated by its corresponding event, and clears
// the pending entry so a later reconnect starts from a clean slate.
// Caller must hold s.mu.
func (s *Shard) deliverLocked(guildID string) {
	data := s.pending[guildID]
	if data.Token == "" || data.Endpoint == "" || data.SessionID == "" {
		return
	}
	ch, ok := s.mailboxes[guildID]
	if !ok {
		ch = make(chan session.InitData, 1)
		s.mailboxes[guildID] = ch
	}
	select {
	case ch <- data:
	default:
		// drain stale, unread data before publishing the fresh assignment
		select {
		case <-ch:
		default:
		}
		ch <- data
	}
	delete(s.pending, guildID)
}
