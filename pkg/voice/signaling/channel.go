package signaling

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/glyphwing/glyphwing/pkg/voice/ring"
)

// readRingSize holds one full signalling frame; heartbeats and handshake
// payloads are small JSON objects, never more than a few KiB.
const readRingSize = 64 * 1024

// ErrWouldBlock is returned by ProcessIO when no more I/O can be done
// without blocking, distinguishing it from a real error.
var ErrWouldBlock = errors.New("signaling: would block")

// Channel is a TLS stream carrying framed text messages.
type Channel struct {
	conn    *tls.Conn
	in      *ring.Buffer
	out     [][]byte
	pending []byte // unconsumed bytes read from the socket, awaiting a full frame
}

// New returns an unconnected Channel.
func New() *Channel {
	return &Channel{in: ring.New(readRingSize)}
}

// Dial opens a TLS connection to endpoint and performs the minimal HTTP
// upgrade handshake (a GET request with no further negotiation beyond the
// host header; the platform does not require the full RFC 6455 upgrade
// dance for this transport).
func (c *Channel) Dial(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("signaling: parse endpoint: %w", err)
	}
	host := u.Host
	if u.Scheme == "" {
		host = endpoint
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	var d tls.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("signaling: tls dial: %w", err)
	}
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		_ = conn.Close()
		return fmt.Errorf("signaling: expected tls.Conn")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/?v=8", nil)
	if err != nil {
		_ = tlsConn.Close()
		return err
	}
	req.Host = host
	if err := req.Write(tlsConn); err != nil {
		_ = tlsConn.Close()
		return fmt.Errorf("signaling: write upgrade request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(tlsConn), req)
	if err != nil {
		_ = tlsConn.Close()
		return fmt.Errorf("signaling: read upgrade response: %w", err)
	}
	_ = resp.Body.Close()

	c.conn = tlsConn
	c.in.Clear()
	c.out = nil
	c.pending = nil
	return nil
}

// Close tears down the underlying socket.
func (c *Channel) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// SendText enqueues a text frame for the next ProcessIO pass.
func (c *Channel) SendText(payload []byte) {
	c.out = append(c.out, Encode(payload))
}

// ProcessIO drives both the outbound queue and the inbound frame buffer
// for up to timeout. It returns decoded payloads received this pass,
// ErrWouldBlock if nothing was ready, or a fatal error.
func (c *Channel) ProcessIO(timeout time.Duration) ([][]byte, error) {
	if c.conn == nil {
		return nil, errors.New("signaling: not connected")
	}

	for _, frame := range c.out {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if _, err := c.conn.Write(frame); err != nil {
			return nil, fmt.Errorf("signaling: write: %w", err)
		}
	}
	c.out = c.out[:0]

	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 4096)
	n, err := c.conn.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return c.drainPending()
		}
		return nil, fmt.Errorf("signaling: read: %w", err)
	}
	c.pending = append(c.pending, buf[:n]...)
	return c.drainPending()
}

func (c *Channel) drainPending() ([][]byte, error) {
	var out [][]byte
	for {
		payload, consumed, err := Decode(c.pending)
		if errors.Is(err, ErrIncompleteFrame) {
			break
		}
		c.pending = c.pending[consumed:]
		if errors.Is(err, ErrUnsupportedOpcode) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, payload)
	}
	if len(out) == 0 {
		return nil, ErrWouldBlock
	}
	return out, nil
}
