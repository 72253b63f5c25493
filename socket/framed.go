package socket

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"
)

// chunkedBit marks a length-prefixed frame as non-final: more chunks follow
// before the logical message is complete. Folded into the top bit of the
// 16-bit length header instead of a separate flags byte.
const (
	chunkedBit   = uint16(1) << 15
	maxChunkSize = int(chunkedBit - 1)
)

// framedConn speaks the length-prefixed "moon" wire protocol: a 2-byte
// big-endian header whose top bit signals continuation and whose low 15
// bits give the chunk length, letting messages larger than 32KB be split
// across several writes/reads while still reassembling into one DataRecv
// completion.
type framedConn struct {
	fd  uint32
	nc  net.Conn
	r   *bufio.Reader
	srv *Server

	owner   uint32
	session int64

	mu      sync.Mutex
	lastIO  time.Time
	closed  bool
	pending []byte
}

func newFramedConn(fd uint32, nc net.Conn, srv *Server) *framedConn {
	return &framedConn{fd: fd, nc: nc, r: bufio.NewReader(nc), srv: srv, lastIO: time.Now()}
}

func (c *framedConn) FD() uint32      { return c.fd }
func (c *framedConn) Kind() Kind      { return KindFramed }
func (c *framedConn) Address() string { return c.nc.RemoteAddr().String() }
func (c *framedConn) Bind(owner uint32, session int64) { c.owner, c.session = owner, session }

func (c *framedConn) Start() { go c.readLoop() }

func (c *framedConn) readLoop() {
	var hdr [2]byte
	for {
		if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
			c.fail(err)
			return
		}
		raw := binary.BigEndian.Uint16(hdr[:])
		more := raw&chunkedBit != 0
		n := int(raw &^ chunkedBit)
		chunk := make([]byte, n)
		if _, err := io.ReadFull(c.r, chunk); err != nil {
			c.fail(err)
			return
		}
		c.touch()
		c.pending = append(c.pending, chunk...)
		if !more {
			body := c.pending
			c.pending = nil
			c.srv.deliverTo(c.owner, KindFramed, DataRecv, c.session, body)
		}
	}
}

func (c *framedConn) fail(err error) {
	if err == io.EOF {
		c.srv.deliverTo(c.owner, KindFramed, DataClose, c.session, []byte{})
	} else {
		c.srv.deliverError(c.owner, KindFramed, c.session, err)
	}
	c.Close()
}

func (c *framedConn) touch() {
	c.mu.Lock()
	c.lastIO = time.Now()
	c.mu.Unlock()
}

func (c *framedConn) IdleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastIO, true
}

// Send frames data into one or more chunks no larger than maxChunkSize.
func (c *framedConn) Send(data []byte) error {
	c.touch()
	for len(data) > 0 {
		n := len(data)
		more := false
		if n > maxChunkSize {
			n = maxChunkSize
			more = true
		}
		hdr := uint16(n)
		if more {
			hdr |= chunkedBit
		}
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], hdr)
		if _, err := c.nc.Write(b[:]); err != nil {
			return err
		}
		if _, err := c.nc.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (c *framedConn) SetTimeout(d time.Duration) {
	if d <= 0 {
		c.nc.SetDeadline(time.Time{})
		return
	}
	c.nc.SetDeadline(time.Now().Add(d))
}

func (c *framedConn) SetNoDelay(b bool) {
	if tc, ok := c.nc.(*net.TCPConn); ok {
		tc.SetNoDelay(b)
	}
}

func (c *framedConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.srv.forget(c.fd)
	return c.nc.Close()
}
