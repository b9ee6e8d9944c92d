package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glyphwing/glyphwing/pkg/voice/aead"
	"github.com/glyphwing/glyphwing/pkg/voice/codec"
	"github.com/glyphwing/glyphwing/pkg/voice/datagram"
	"github.com/glyphwing/glyphwing/pkg/voice/frame"
	"github.com/glyphwing/glyphwing/pkg/voice/rtp"
	"github.com/glyphwing/glyphwing/pkg/voice/signaling"
)

// silenceMarker is the 3-byte Opus silence frame the original engine
// repeats while idle, to keep the platform's jitter buffer and any edge
// proxies from timing out the UDP mapping.
var silenceMarker = []byte{0xF8, 0xFF, 0xFE}

// monotonicEpoch anchors the heartbeat nonce to a monotonic reading:
// time.Since against a fixed reference keeps the runtime's monotonic
// clock reading alive, so a wall-clock step (NTP, DST, manual change)
// can never produce a value the gateway mistakes for a duplicate or
// out-of-order heartbeat.
var monotonicEpoch = time.Now()

// silenceInterval is how often SendSilenceHeartbeat should be called by an
// idle voice worker.
const silenceInterval = 5 * time.Second

// SilenceInterval reports the configured idle-heartbeat cadence.
func SilenceInterval() time.Duration { return silenceInterval }

// initDataTimeout bounds how long CollectingInitData waits for the
// external control shard before giving up and reconnecting.
const initDataTimeout = 10 * time.Second

// ioTimeout bounds a single ProcessIO pass on the signalling channel.
const ioTimeout = 50 * time.Millisecond

// ErrReconnect signals the supervisor that the session hit a condition
// requiring full teardown and re-handshake.
var ErrReconnect = errors.New("session: reconnect required")

// SpeakerEvents receives speaker lifecycle notifications observed on the
// signalling channel while Connected.
type SpeakerEvents interface {
	OnSpeakerStart(ssrc uint32, userID string)
	OnSpeakerStop(userID string)
}

// Config bundles the fixed identity and collaborators a Session needs for
// its lifetime.
type Config struct {
	GuildID   string
	ChannelID string
	UserID    string
	Shard     ControlShard
	Speakers  SpeakerEvents
	Logger    *slog.Logger
}

// Session drives the voice handshake, heartbeat, and the RTP hot path for
// one guild's voice connection.
type Session struct {
	cfg    Config
	logger *slog.Logger

	state State

	sig *signaling.Channel
	dg  *datagram.Channel

	cipher       aead.Cipher
	rtpState     rtp.State
	packetizer   *rtp.Packetizer
	depacketizer *rtp.Depacketizer
	key          []byte // 32 bytes once installed, nil otherwise

	sessionID string
	token     string
	endpoint  string

	endpointHost string
	endpointPort int

	heartbeatInterval time.Duration
	lastHeartbeat     time.Time
	ackPending        bool

	externalIP   string
	externalPort uint16

	ReconnectCount int
}

// New returns a Session in its initial state, ready for Run.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cipher := aead.New()
	s := &Session{
		cfg:          cfg,
		logger:       logger,
		state:        CollectingInitData,
		sig:          signaling.New(),
		dg:           datagram.New(),
		cipher:       cipher,
		depacketizer: rtp.NewDepacketizer(cipher),
	}
	s.packetizer = rtp.NewPacketizer(&s.rtpState, cipher)
	return s
}

// State returns the current handshake state.
func (s *Session) State() State { return s.state }

// Key reports the negotiated session key: 32 bytes once
// SessionDescription has been received, empty otherwise.
func (s *Session) Key() []byte { return s.key }

// Handshake drives the session from CollectingInitData through Connected,
// blocking until it reaches Connected or a reconnect condition is hit.
func (s *Session) Handshake(ctx context.Context) error {
	for s.state != Connected {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) step(ctx context.Context) error {
	switch s.state {
	case CollectingInitData:
		return s.collectInitData(ctx)
	case InitializingWebSocket:
		return s.initializeWebSocket(ctx)
	case CollectingHello:
		return s.collectHello(ctx)
	case SendingIdentify:
		return s.sendIdentify()
	case CollectingReady:
		return s.collectReady(ctx)
	case InitializingDatagramSocket:
		return s.initializeDatagramSocket()
	case SendingSelectProtocol:
		return s.sendSelectProtocol()
	case CollectingSessionDescription:
		return s.collectSessionDescription(ctx)
	default:
		return fmt.Errorf("session: unexpected state %s in handshake", s.state)
	}
}

func (s *Session) collectInitData(ctx context.Context) error {
	ch := s.cfg.Shard.InitDataChannel(s.cfg.GuildID)
	if err := s.cfg.Shard.RequestJoin(ctx, s.cfg.GuildID, s.cfg.ChannelID); err != nil {
		return fmt.Errorf("%w: request join: %v", ErrReconnect, err)
	}
	select {
	case data := <-ch:
		s.endpoint = data.Endpoint
		s.sessionID = data.SessionID
		s.token = data.Token
		s.state = InitializingWebSocket
		return nil
	case <-time.After(initDataTimeout):
		return fmt.Errorf("%w: timed out waiting for init data", ErrReconnect)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) initializeWebSocket(ctx context.Context) error {
	if err := s.sig.Dial(ctx, s.endpoint); err != nil {
		return fmt.Errorf("%w: %v", ErrReconnect, err)
	}
	s.state = CollectingHello
	return nil
}

func (s *Session) collectHello(ctx context.Context) error {
	deadline := time.Now().Add(initDataTimeout)
	for time.Now().Before(deadline) {
		payloads, err := s.sig.ProcessIO(ioTimeout)
		if err != nil && !errors.Is(err, signaling.ErrWouldBlock) {
			return fmt.Errorf("%w: %v", ErrReconnect, err)
		}
		for _, raw := range payloads {
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			if env.Op != opHello {
				continue
			}
			var hello helloPayload
			if err := json.Unmarshal(env.Data, &hello); err != nil {
				continue
			}
			s.heartbeatInterval = time.Duration(hello.HeartbeatIntervalMs) * time.Millisecond
			s.state = SendingIdentify
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: timed out waiting for hello", ErrReconnect)
}

func (s *Session) sendIdentify() error {
	payload, err := json.Marshal(envelope{Op: opIdentify, Data: mustMarshal(identifyPayload{
		ServerID:  s.cfg.GuildID,
		UserID:    s.cfg.UserID,
		SessionID: s.sessionID,
		Token:     s.token,
	})})
	if err != nil {
		return err
	}
	s.sig.SendText(payload)
	s.state = CollectingReady
	return nil
}

func (s *Session) collectReady(ctx context.Context) error {
	deadline := time.Now().Add(initDataTimeout)
	var ready readyPayload
	for time.Now().Before(deadline) {
		payloads, err := s.sig.ProcessIO(ioTimeout)
		if err != nil && !errors.Is(err, signaling.ErrWouldBlock) {
			return fmt.Errorf("%w: %v", ErrReconnect, err)
		}
		for _, raw := range payloads {
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			if env.Op != opReady {
				continue
			}
			if err := json.Unmarshal(env.Data, &ready); err != nil {
				continue
			}
			if !containsMode(ready.Modes, negotiatedMode) {
				return fmt.Errorf("%w: server does not support %s", ErrReconnect, negotiatedMode)
			}
			s.rtpState.SSRC = ready.SSRC
			s.endpointHost = ready.IP
			s.endpointPort = ready.Port
			s.state = InitializingDatagramSocket
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: timed out waiting for ready", ErrReconnect)
}

func (s *Session) initializeDatagramSocket() error {
	if err := s.dg.Connect(s.endpointHost, s.endpointPort); err != nil {
		return fmt.Errorf("%w: %v", ErrReconnect, err)
	}
	discovery := datagram.BuildDiscoveryPacket(s.rtpState.SSRC)
	if !s.dg.Write(discovery) {
		return fmt.Errorf("%w: discovery write ring full", ErrReconnect)
	}
	if err := s.dg.ProcessIO(datagram.Write); err != nil {
		return fmt.Errorf("%w: %v", ErrReconnect, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := s.dg.ProcessIO(datagram.Read); err != nil {
			return fmt.Errorf("%w: %v", ErrReconnect, err)
		}
		if reply, ok := s.dg.ReadPacket(); ok {
			ip, port, err := datagram.ParseDiscoveryReply(reply)
			if err != nil {
				continue
			}
			s.externalIP = ip
			s.externalPort = port
			s.state = SendingSelectProtocol
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("%w: timed out waiting for ip discovery reply", ErrReconnect)
}

func (s *Session) sendSelectProtocol() error {
	payload, err := json.Marshal(envelope{Op: opSelectProtocol, Data: mustMarshal(selectProtocolPayload{
		Protocol: "udp",
		Data: selectProtocolData{
			Address: s.externalIP,
			Port:    int(s.externalPort),
			Mode:    negotiatedMode,
		},
	})})
	if err != nil {
		return err
	}
	s.sig.SendText(payload)
	s.state = CollectingSessionDescription
	return nil
}

func (s *Session) collectSessionDescription(ctx context.Context) error {
	deadline := time.Now().Add(initDataTimeout)
	for time.Now().Before(deadline) {
		payloads, err := s.sig.ProcessIO(ioTimeout)
		if err != nil && !errors.Is(err, signaling.ErrWouldBlock) {
			return fmt.Errorf("%w: %v", ErrReconnect, err)
		}
		for _, raw := range payloads {
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				continue
			}
			if env.Op != opSessionDesc {
				continue
			}
			var desc sessionDescriptionPayload
			if err := json.Unmarshal(env.Data, &desc); err != nil {
				continue
			}
			if len(desc.SecretKey) != aead.KeySize {
				return fmt.Errorf("%w: secret_key wrong size %d", ErrReconnect, len(desc.SecretKey))
			}
			s.key = desc.SecretKey
			s.rtpState.Reset()
			s.state = Connected
			s.lastHeartbeat = time.Now()
			s.ackPending = false
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: timed out waiting for session description", ErrReconnect)
}

// Tick drives one 20ms pass of the Connected state: heartbeat, inbound
// signalling opcodes, and inbound RTP. It must only be called while
// State() == Connected.
func (s *Session) Tick(ctx context.Context) error {
	if err := s.maybeHeartbeat(); err != nil {
		return err
	}
	payloads, err := s.sig.ProcessIO(0)
	if err != nil && !errors.Is(err, signaling.ErrWouldBlock) {
		return fmt.Errorf("%w: %v", ErrReconnect, err)
	}
	for _, raw := range payloads {
		s.handleConnectedOpcode(raw)
	}
	return s.dg.ProcessIO(datagram.Both)
}

func (s *Session) handleConnectedOpcode(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("session: malformed signalling frame", "error", err)
		return
	}
	switch env.Op {
	case opHeartbeatAck:
		s.ackPending = false
	case opSpeaking:
		var sp speakerStartPayload
		if err := json.Unmarshal(env.Data, &sp); err == nil && s.cfg.Speakers != nil {
			s.cfg.Speakers.OnSpeakerStart(sp.SSRC, sp.UserID)
		}
	case opSpeakerStop:
		var sp speakerStopPayload
		if err := json.Unmarshal(env.Data, &sp); err == nil && s.cfg.Speakers != nil {
			s.cfg.Speakers.OnSpeakerStop(sp.UserID)
		}
	case opResumed:
		s.state = InitializingDatagramSocket
	default:
		s.logger.Debug("session: unhandled opcode", "op", env.Op)
	}
}

func (s *Session) maybeHeartbeat() error {
	if s.heartbeatInterval <= 0 {
		return nil
	}
	if time.Since(s.lastHeartbeat) < s.heartbeatInterval {
		return nil
	}
	if s.ackPending {
		return fmt.Errorf("%w: heartbeat ack missed", ErrReconnect)
	}
	payload, err := json.Marshal(envelope{Op: opHeartbeat, Data: mustMarshal(time.Since(monotonicEpoch).Nanoseconds())})
	if err != nil {
		return err
	}
	s.sig.SendText(payload)
	s.lastHeartbeat = time.Now()
	s.ackPending = true
	return nil
}

// SendFrame packetizes and enqueues an outbound audio frame. f.Kind must
// be RawPCM-already-encoded (EncodedOpus) or the call is a no-op; the
// session worker is responsible for Opus-encoding RawPCM before calling
// this.
func (s *Session) SendFrame(f frame.AudioFrame) error {
	if f.Kind != frame.EncodedOpus || len(s.key) == 0 {
		return nil
	}
	packet, err := s.packetizer.Packetize(f.Payload, f.Samples, s.key)
	if err != nil {
		return fmt.Errorf("session: packetize: %w", err)
	}
	if !s.dg.Write(packet) {
		s.logger.Warn("session: output ring full, dropping frame")
	}
	return nil
}

// PollInbound depacketizes every RTP packet currently buffered from the
// datagram channel, returning the parsed results in arrival order.
func (s *Session) PollInbound() []*rtp.Parsed {
	var out []*rtp.Parsed
	for {
		packet, ok := s.dg.ReadPacket()
		if !ok {
			return out
		}
		if len(s.key) == 0 {
			continue
		}
		parsed, err := s.depacketizer.Depacketize(packet, s.key)
		if err != nil {
			if !errors.Is(err, rtp.ErrRTCPPayloadType) {
				s.logger.Debug("session: drop inbound packet", "error", err)
			}
			continue
		}
		out = append(out, parsed)
	}
}

// SendSilenceHeartbeat packetizes and writes one silence marker wrapped in
// a speaking-state toggle, matching the original engine's idle-keepalive
// behavior while the producer is Stopped or Paused.
func (s *Session) SendSilenceHeartbeat() error {
	if len(s.key) == 0 {
		return nil
	}
	if err := s.SetSpeaking(true); err != nil {
		return err
	}
	if err := s.SendFrame(frame.AudioFrame{Kind: frame.EncodedOpus, Payload: silenceMarker, Samples: codec.FrameSamples}); err != nil {
		return err
	}
	return s.SetSpeaking(false)
}

// SetSpeaking sends the opcode-5 speaking state used to mark the local
// source as actively transmitting.
func (s *Session) SetSpeaking(speaking bool) error {
	bit := 0
	if speaking {
		bit = 1
	}
	payload, err := json.Marshal(envelope{Op: opSpeaking, Data: mustMarshal(speakingPayload{
		Speaking: bit,
		SSRC:     s.rtpState.SSRC,
	})})
	if err != nil {
		return err
	}
	s.sig.SendText(payload)
	return nil
}

// Teardown closes both transports and resets handshake-scoped state, but
// preserves the caller-visible ReconnectCount so the supervisor can keep
// its own budget.
func (s *Session) Teardown() {
	s.sig.Close()
	s.dg.Disconnect()
	s.key = nil
	s.heartbeatInterval = 0
	s.ackPending = false
	s.state = CollectingInitData
}

func containsMode(modes []string, want string) bool {
	for _, m := range modes {
		if m == want {
			return true
		}
	}
	return false
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// these values are always simple structs/ints; marshal cannot
		// realistically fail
		panic(err)
	}
	return b
}
