// Package datagram implements the Secure Datagram Channel: a connected UDP
// socket to the negotiated voice peer, backed by preallocated ring buffers
// so the hot path makes no per-frame allocation.
package datagram

import (
	"encoding/binary"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/glyphwing/glyphwing/pkg/voice/ring"
)

// RingSize is the preallocated capacity for both the input and output
// rings (16 KiB is comfortably more than one tick's worth of RTP traffic).
const RingSize = 16 * 1024

// maxDatagram is large enough for any single RTP packet the engine emits
// or expects to receive.
const maxDatagram = 1500

// IOMode selects which direction process_io drives in a single pass.
type IOMode int

const (
	Read IOMode = iota
	Write
	Both
)

// ErrNotConnected is returned by operations attempted before Connect.
var ErrNotConnected = errors.New("datagram: not connected")

// Channel is a connected UDP socket with preallocated input/output rings.
// Not safe for concurrent use from more than one goroutine at a time;
// the voice worker is the sole owner.
type Channel struct {
	conn    *net.UDPConn
	in      *ring.Buffer
	out     *ring.Buffer
	scratch [maxDatagram]byte
}

// New returns an unconnected Channel with fresh rings.
func New() *Channel {
	return &Channel{in: ring.New(RingSize), out: ring.New(RingSize)}
}

// Connect dials a connected UDP socket to host:port. A connected socket
// means the kernel filters inbound datagrams by peer address, and Write
// needs no destination argument.
func (c *Channel) Connect(host string, port int) error {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	if addr.IP == nil {
		resolved, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return err
		}
		addr = resolved
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	c.conn = conn
	c.in.Clear()
	c.out.Clear()
	return nil
}

// Connected reports whether the channel currently owns a live socket.
func (c *Channel) Connected() bool { return c.conn != nil }

// Disconnect closes the socket and clears both rings. Safe to call when
// already disconnected.
func (c *Channel) Disconnect() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.in.Clear()
	c.out.Clear()
}

// Write enqueues bytes onto the output ring for the next Write-mode
// ProcessIO pass. Returns false if the ring is full.
func (c *Channel) Write(b []byte) bool {
	return c.out.Push(b)
}

// ProcessIO performs one non-blocking pass in the requested direction(s).
// Transient errors (deadline exceeded, EAGAIN-equivalent) are swallowed;
// the caller is expected to retry on the next tick. Hard errors are
// returned so the supervisor can reconnect.
func (c *Channel) ProcessIO(mode IOMode) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if mode == Write || mode == Both {
		if err := c.drainOutput(); err != nil {
			return err
		}
	}
	if mode == Read || mode == Both {
		if err := c.pollInput(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) drainOutput() error {
	for c.out.Len() > 0 {
		n := c.out.Len()
		view := c.out.PopView(n)
		_ = c.conn.SetWriteDeadline(time.Now())
		written, err := c.conn.Write(view)
		if err != nil {
			if isTransient(err) {
				return nil
			}
			return err
		}
		c.out.Consume(written)
	}
	return nil
}

// pollInput drains as many pending datagrams as are already queued at the
// socket, each prefixed with its own 2-byte length so ReadPacket can
// recover message boundaries from the byte ring.
func (c *Channel) pollInput() error {
	for {
		_ = c.conn.SetReadDeadline(time.Now())
		n, err := c.conn.Read(c.scratch[:])
		if err != nil {
			if isTransient(err) {
				return nil
			}
			return err
		}
		var lenPrefix [2]byte
		binary.BigEndian.PutUint16(lenPrefix[:], uint16(n))
		if c.in.Cap()-c.in.Len() < n+2 {
			// ring full: drop this datagram, voice loss is acceptable
			continue
		}
		c.in.Push(lenPrefix[:])
		c.in.Push(c.scratch[:n])
	}
}

// ReadPacket pops the oldest queued datagram, if any. The returned slice
// is only valid until the next call into the Channel.
func (c *Channel) ReadPacket() ([]byte, bool) {
	if c.in.Len() < 2 {
		return nil, false
	}
	header := c.in.PopView(2)
	n := int(binary.BigEndian.Uint16(header))
	if c.in.Len() < 2+n {
		return nil, false
	}
	packet := c.in.PopView(2 + n)[2:]
	c.in.Consume(2 + n)
	return packet, true
}

func isTransient(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
