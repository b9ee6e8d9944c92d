package voice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glyphwing/glyphwing/pkg/voice/clock"
	"github.com/glyphwing/glyphwing/pkg/voice/codec"
	"github.com/glyphwing/glyphwing/pkg/voice/frame"
	"github.com/glyphwing/glyphwing/pkg/voice/producer"
	"github.com/glyphwing/glyphwing/pkg/voice/session"
	"github.com/glyphwing/glyphwing/pkg/voice/speaker"
	"github.com/glyphwing/glyphwing/pkg/voice/supervisor"
)

// GuildEngine owns one guild's voice session, song producer, speaker
// mixer, and reconnect supervisor, and runs the three cooperating workers
// (voice, bridge, decode) that move audio between them. The decode worker
// itself lives inside Producer as the per-song decode-and-stream
// goroutine; GuildEngine supervises the other two alongside it through a
// shared errgroup, replacing the per-guild global singleton the original
// engine used with an owned, independently cancellable unit.
type GuildEngine struct {
	guildID string
	logger  *slog.Logger

	sess       *session.Session
	prod       *producer.Producer
	speakers   *speaker.Registry
	supervisor *supervisor.Supervisor

	mailbox *frame.Mailbox
	encoder *codec.Encoder

	// mixed carries each tick's freshly mixed remote audio from the voice
	// worker (the only goroutine allowed to touch the speaker mixer and
	// the datagram channel) to the bridge worker, which only ever forwards
	// it onward. Buffered to one: a forwarding sink that falls behind
	// loses the stale frame rather than stalling the RTP hot path.
	mixed chan []byte

	forward func([]byte)

	// lastSilence is when drainOutbound last sent an idle silence heartbeat.
	lastSilence time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Config bundles everything New needs to assemble one guild's engine.
type Config struct {
	GuildID   string
	ChannelID string
	UserID    string
	Shard     session.ControlShard
	Sources   map[producer.SongType]producer.Source
	NewDecoder func() (*codec.Decoder, error)
	Forward   func(opusFrame []byte) // optional: receives mixed remote audio
	Logger    *slog.Logger

	// MaxRetries, Backoff, and MaxBackoff configure the connection
	// supervisor's reconnect budget. Zero values fall back to
	// supervisor.Config's own defaults.
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// New assembles a GuildEngine in its idle state; call Run to start it.
func New(cfg Config) (*GuildEngine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	encoder, err := codec.NewEncoder()
	if err != nil {
		return nil, err
	}
	mailbox := frame.NewMailbox()
	speakers := speaker.New(cfg.NewDecoder, encoder, logger)

	g := &GuildEngine{
		guildID:    cfg.GuildID,
		logger:     logger,
		prod:       producer.New(cfg.GuildID, mailbox, cfg.Sources, logger),
		speakers:   speakers,
		supervisor: supervisor.New(supervisor.Config{
			GuildID:    cfg.GuildID,
			Logger:     logger,
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.Backoff,
			MaxBackoff: cfg.MaxBackoff,
		}),
		mailbox:    mailbox,
		encoder:    encoder,
		mixed:      make(chan []byte, 1),
		forward:    cfg.Forward,
	}
	g.sess = session.New(session.Config{
		GuildID:   cfg.GuildID,
		ChannelID: cfg.ChannelID,
		UserID:    cfg.UserID,
		Shard:     cfg.Shard,
		Speakers:  speakers,
		Logger:    logger,
	})
	return g, nil
}

// Producer returns the song producer, for command handlers to drive.
func (g *GuildEngine) Producer() *producer.Producer { return g.prod }

// GuildID reports the guild this engine serves.
func (g *GuildEngine) GuildID() string { return g.guildID }

// Run performs the initial handshake and then drives the voice worker
// (and, if a forwarding sink is configured, the bridge worker) until ctx
// is cancelled or the reconnect budget is exhausted. It blocks for the
// engine's full lifetime.
func (g *GuildEngine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})
	defer close(g.done)

	if err := g.sess.Handshake(runCtx); err != nil {
		return err
	}

	grp, grpCtx := errgroup.WithContext(runCtx)
	grp.Go(func() error { return g.voiceWorker(grpCtx) })
	if g.forward != nil {
		grp.Go(func() error { return g.bridgeWorker(grpCtx) })
	}
	return grp.Wait()
}

// Stop cancels the engine's workers and tears down its session.
func (g *GuildEngine) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	if g.done != nil {
		<-g.done
	}
	g.sess.Teardown()
}

// voiceWorker paces the 20 ms handshake/heartbeat/RTP tick and drives
// supervised reconnects. It is the sole owner of the session's datagram
// channel: outbound frames are queued, the channel's socket I/O is
// pumped, and inbound packets are depacketized and mixed, all within the
// same goroutine and tick. Failures never escape this loop directly:
// they are folded into a reconnect attempt or, once the budget is
// exhausted, a terminated errgroup.
func (g *GuildEngine) voiceWorker(ctx context.Context) error {
	pacer := clock.New()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if g.supervisor.TakeReconnect() {
			if err := g.supervisor.Recover(ctx, g.sess); err != nil {
				return err
			}
			g.supervisor.Reset()
		}

		g.drainOutbound()

		err := g.sess.Tick(ctx)
		if err != nil {
			if errors.Is(err, session.ErrReconnect) {
				g.logger.Warn("voice engine: tick requested reconnect", "guild_id", g.guildID, "error", err)
				g.supervisor.RequestReconnect()
			} else {
				return err
			}
		}

		g.drainInbound()

		pacer.Sleep()
	}
}

// bridgeWorker only forwards already-mixed audio the voice worker hands
// it over g.mixed; it never touches the datagram channel, the speaker
// mixer, or anything else the voice worker owns. Only started when a
// forwarding sink is configured.
func (g *GuildEngine) bridgeWorker(ctx context.Context) error {
	pacer := clock.New()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		select {
		case mixed := <-g.mixed:
			g.forward(mixed)
		default:
		}
		pacer.Sleep()
	}
}

// drainOutbound sends at most one locally produced frame per tick,
// encoding RawPCM to Opus first. While the producer is paused the mailbox
// is left undrained. When paused, or idle with nothing queued, it sends an
// idle silence heartbeat at most once per session.SilenceInterval.
func (g *GuildEngine) drainOutbound() {
	paused := g.prod.Paused()
	if paused || g.mailbox.Len() == 0 {
		if (paused || g.prod.CurrentSong() == nil) && time.Since(g.lastSilence) >= session.SilenceInterval() {
			g.lastSilence = time.Now()
			if err := g.sess.SendSilenceHeartbeat(); err != nil {
				g.logger.Debug("voice engine: silence heartbeat failed", "guild_id", g.guildID, "error", err)
			}
		}
		return
	}
	f, ok := g.mailbox.TryReceive()
	if !ok {
		return
	}
	switch f.Kind {
	case frame.RawPCM:
		opusFrame, err := g.encoder.Encode(codec.BytesToInt16(f.Payload))
		if err != nil {
			g.logger.Warn("voice engine: encode failed, dropping frame", "guild_id", g.guildID, "error", err)
			return
		}
		f.Kind = frame.EncodedOpus
		f.Payload = opusFrame
	case frame.Skip:
		return
	}
	if err := g.sess.SendFrame(f); err != nil {
		g.logger.Warn("voice engine: send frame failed", "guild_id", g.guildID, "error", err)
	}
}

// drainInbound depacketizes every buffered remote RTP packet, feeds it to
// the speaker mixer, mixes down once, and hands the result to the bridge
// worker if a forwarding sink is configured.
func (g *GuildEngine) drainInbound() {
	for _, parsed := range g.sess.PollInbound() {
		g.speakers.PushPayload(parsed.SSRC, parsed.Payload)
	}
	if g.forward == nil {
		return
	}
	mixed, ok := g.speakers.Mix()
	if !ok {
		return
	}
	select {
	case g.mixed <- mixed:
	default:
		// bridge worker hasn't drained the previous frame yet: drop it
		// and hand off the fresher one instead of blocking the hot path.
		select {
		case <-g.mixed:
		default:
		}
		g.mixed <- mixed
	}
}
