// Package transport implements the length-prefixed framing every message on
// the wire uses: a 4-byte big-endian length followed by exactly that many
// payload bytes. Grounded on original_source/server.py's
// `struct.unpack('!I', conn.recv(4))` loop, translated to encoding/binary and
// given the timeout discipline spec.md §4.1 requires.
package transport

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	controlReadTimeout  = 5 * time.Second
	drainTimeout        = 5 * time.Second
	inGameLengthTimeout = 800 * time.Millisecond
	inGameBodyTimeout   = 500 * time.Millisecond
	probeTimeout        = 1 * time.Second

	maxPayloadBytes = 1 << 20 // sanity cap against a malicious length prefix
)

// ReadOutcome classifies the result of an in-game read: the three sentinels
// the game-session loop reacts to, distinct from an ordinary payload.
type ReadOutcome int

const (
	// ReadOK: a payload was read within the window.
	ReadOK ReadOutcome = iota
	// ReadNoUpdate: the peer sent nothing this tick (in-game read only).
	ReadNoUpdate
	// ReadClosed: control-read timeout, short read, or connection fault.
	ReadClosed
	// ReadConnectionLost: in-game read fault distinct from a mere timeout.
	ReadConnectionLost
)

// ErrClosed is returned by callers that need a Go error alongside ReadClosed.
var ErrClosed = errors.New("transport: connection closed")

// Conn wraps a net.Conn with the framed read/write protocol and the two read
// modes spec.md §4.1 distinguishes.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader
}

// NewConn wraps an already-accepted net.Conn.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, r: bufio.NewReader(nc)}
}

// SetGameSocketOptions enables TCP_NODELAY before any in-game traffic, as
// spec.md §4.1 requires.
func (c *Conn) SetGameSocketOptions() {
	if tc, ok := c.nc.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the peer address for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// ReadControl performs a control read: up to 5s for the length, up to 5s for
// the body. Returns ReadOK with the payload, or ReadClosed on any timeout,
// short read, or fault.
func (c *Conn) ReadControl() ([]byte, ReadOutcome) {
	c.nc.SetReadDeadline(time.Now().Add(controlReadTimeout))
	length, err := c.readLength()
	if err != nil {
		return nil, ReadClosed
	}

	c.nc.SetReadDeadline(time.Now().Add(controlReadTimeout))
	payload, err := c.readBody(length)
	if err != nil {
		return nil, ReadClosed
	}
	return payload, ReadOK
}

// ReadInGame performs an in-game read: up to 0.8s for the length, up to 0.5s
// for the body. A length-read timeout means the player sent nothing this
// tick (ReadNoUpdate); any other fault is ReadConnectionLost.
func (c *Conn) ReadInGame() ([]byte, ReadOutcome) {
	c.nc.SetReadDeadline(time.Now().Add(inGameLengthTimeout))
	length, err := c.readLength()
	if err != nil {
		if isTimeout(err) {
			return nil, ReadNoUpdate
		}
		return nil, ReadConnectionLost
	}

	c.nc.SetReadDeadline(time.Now().Add(inGameBodyTimeout))
	payload, err := c.readBody(length)
	if err != nil {
		return nil, ReadConnectionLost
	}
	return payload, ReadOK
}

// Probe sends a one-shot "check" message and waits up to 1s for the exact
// echoed reply, per §4.7. Any failure or mismatch means dead.
func (c *Conn) Probe(codec interface{ Encode(any) ([]byte, error) }) bool {
	payload, err := codec.Encode(map[string]any{"check": "check"})
	if err != nil {
		return false
	}
	if err := c.write(payload, probeTimeout); err != nil {
		return false
	}

	c.nc.SetReadDeadline(time.Now().Add(probeTimeout))
	length, err := c.readLength()
	if err != nil {
		return false
	}
	reply, err := c.readBody(length)
	if err != nil {
		return false
	}

	var m map[string]any
	if err := json.Unmarshal(reply, &m); err != nil {
		return false
	}
	v, ok := m["check"].(string)
	return ok && v == "check"
}

// Write sends a single length-prefixed message, bounded by a 5s drain
// timeout. Faults fail silently to the caller's bool return; the caller is
// expected to disconnect the peer on false.
func (c *Conn) Write(payload []byte) bool {
	return c.write(payload, drainTimeout) == nil
}

func (c *Conn) write(payload []byte, timeout time.Duration) error {
	c.nc.SetWriteDeadline(time.Now().Add(timeout))
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := c.nc.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := c.nc.Write(payload); err != nil {
		return err
	}
	return nil
}

func (c *Conn) readLength() (uint32, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(hdr[:]), nil
}

func (c *Conn) readBody(length uint32) ([]byte, error) {
	if length > maxPayloadBytes {
		return nil, fmt.Errorf("transport: payload too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(c.r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
