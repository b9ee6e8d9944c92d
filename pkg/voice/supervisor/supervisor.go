// Package supervisor implements the Connection Supervisor: it owns the
// reconnect budget for a voice session and drives the exponential-backoff
// retry loop when the session signals a transport failure.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrBudgetExhausted is returned once current_reconnect_tries exceeds
// max_reconnect_tries: the guild engine should tear itself down rather
// than attempt another handshake.
var ErrBudgetExhausted = errors.New("supervisor: reconnect budget exhausted")

// Handshaker is the minimal surface the Supervisor needs from a voice
// session: (re)establish the signalling/datagram handshake from scratch.
type Handshaker interface {
	Handshake(ctx context.Context) error
	Teardown()
}

// Supervisor tracks the reconnect budget for one guild's voice session and
// performs the backoff-and-retry loop on request.
type Supervisor struct {
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	guildID string
	tries   int

	// pending is the one-slot "pending reconnect" mailbox: RequestReconnect
	// signals it instead of recovering inline, so a failure detected deep
	// inside a single I/O call unwinds back to the run loop before any
	// teardown happens, mirroring the original engine's
	// checkForConnections/connections deferral.
	pending chan struct{}
}

// Config configures a Supervisor. Zero values fall back to the package
// defaults (10 retries, 1s initial backoff doubling up to 30s).
type Config struct {
	GuildID    string
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

// New returns a Supervisor with an empty retry counter.
func New(cfg Config) *Supervisor {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
		maxBackoff: maxBackoff,
		guildID:    cfg.GuildID,
		pending:    make(chan struct{}, 1),
	}
}

// RequestReconnect marks that the next pass through the run loop should
// call Recover, without tearing anything down immediately. Safe to call
// multiple times before the request is consumed.
func (s *Supervisor) RequestReconnect() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// TakeReconnect reports and clears a pending reconnect request.
func (s *Supervisor) TakeReconnect() bool {
	select {
	case <-s.pending:
		return true
	default:
		return false
	}
}

// Tries reports the current reconnect attempt count.
func (s *Supervisor) Tries() int { return s.tries }

// Reset zeroes the retry counter; callers should do this once a
// handshake reaches the Connected state and stays up for a reasonable
// interval, so a single isolated drop doesn't consume the whole budget
// over a long session lifetime.
func (s *Supervisor) Reset() { s.tries = 0 }

// Recover tears down the current session and retries Handshake with
// exponential backoff, doubling from the configured initial backoff up to
// maxBackoff, until either the handshake succeeds, the budget is
// exhausted, or ctx is cancelled. On success the retry counter is left at
// its pre-exhaustion value; callers should call Reset once the session
// has proven stable.
func (s *Supervisor) Recover(ctx context.Context, h Handshaker) error {
	h.Teardown()

	currentBackoff := s.backoff
	for {
		s.tries++
		if s.tries > s.maxRetries {
			s.logger.Error("supervisor: reconnect budget exhausted",
				"guild_id", s.guildID, "max_retries", s.maxRetries)
			return ErrBudgetExhausted
		}

		s.logger.Info("supervisor: attempting reconnect",
			"guild_id", s.guildID, "attempt", s.tries, "max_retries", s.maxRetries, "backoff", currentBackoff)

		err := h.Handshake(ctx)
		if err == nil {
			s.logger.Info("supervisor: reconnect successful", "guild_id", s.guildID, "attempt", s.tries)
			return nil
		}

		s.logger.Warn("supervisor: reconnect attempt failed",
			"guild_id", s.guildID, "attempt", s.tries, "error", err)
		h.Teardown()

		select {
		case <-ctx.Done():
			return fmt.Errorf("supervisor: recover cancelled: %w", ctx.Err())
		case <-time.After(currentBackoff):
		}

		currentBackoff *= 2
		if currentBackoff > s.maxBackoff {
			currentBackoff = s.maxBackoff
		}
	}
}
