// Package clock implements the fixed-cadence deadline scheduler shared by
// the voice and bridge workers.
package clock

import "time"

// FrameInterval is the fixed audio frame cadence used throughout the
// engine: 20 ms, the Opus frame duration at 48 kHz/960 samples.
const FrameInterval = 20 * time.Millisecond

// spinGuard is how far ahead of the deadline the coarse sleep stops,
// leaving the remainder to a non-suspending spin-wait.
const spinGuard = 1500 * time.Microsecond

// Pacer produces successive 20 ms deadlines from a monotonic clock, with a
// leaky correction that folds each frame's overrun into the next target so
// sub-millisecond jitter does not accumulate into drift.
//
// Pacer is not safe for concurrent use; each worker owns one.
type Pacer struct {
	interval time.Duration
	target   time.Time
	overrun  time.Duration
	frames   int64
}

// New returns a Pacer with the default 20 ms cadence, armed for the first
// tick one interval from now.
func New() *Pacer {
	return NewWithInterval(FrameInterval)
}

// NewWithInterval returns a Pacer ticking at the given interval. Tests use
// this to run the pacer faster than real time.
func NewWithInterval(interval time.Duration) *Pacer {
	return &Pacer{interval: interval, target: time.Now().Add(interval)}
}

// Sleep blocks until the current deadline, then advances to the next one.
// The suspension point is the coarse sleep only; the residual is absorbed
// by a non-suspending spin-wait so wakeups land within microseconds of the
// deadline.
func (p *Pacer) Sleep() {
	now := time.Now()
	sleepUntil := p.target.Add(-spinGuard)
	if d := sleepUntil.Sub(now); d > 0 {
		time.Sleep(d)
	}
	for time.Now().Before(p.target) {
		// non-suspending spin-wait for the residual under spinGuard
	}

	overshoot := time.Since(p.target)
	p.frames++
	p.overrun += overshoot
	correction := p.overrun / time.Duration(p.frames)
	p.target = p.target.Add(p.interval - correction)
	if p.frames >= 1<<20 {
		// reset the running average periodically so it cannot grow unbounded
		p.frames = 1
		p.overrun = correction
	}
}

// Reset re-arms the pacer for a fresh deadline one interval from now and
// clears accumulated drift statistics. Used after a reconnect.
func (p *Pacer) Reset() {
	p.target = time.Now().Add(p.interval)
	p.overrun = 0
	p.frames = 0
}
