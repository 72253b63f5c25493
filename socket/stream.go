package socket

import (
	"io"
	"net"
	"sync"
	"time"
)

// streamConn is the raw, unframed connection flavor: every successful Read
// becomes one DataRecv completion carrying exactly the bytes read; no
// framing is applied, the caller does its own delimiting.
type streamConn struct {
	fd      uint32
	nc      net.Conn
	srv     *Server
	owner   uint32
	session int64

	mu       sync.Mutex
	lastIO   time.Time
	closed   bool
	sendErrN int
}

func newStreamConn(fd uint32, nc net.Conn, srv *Server) *streamConn {
	return &streamConn{fd: fd, nc: nc, srv: srv, lastIO: time.Now()}
}

func (c *streamConn) FD() uint32  { return c.fd }
func (c *streamConn) Kind() Kind  { return KindStream }
func (c *streamConn) Address() string {
	if c.nc == nil {
		return ""
	}
	return c.nc.RemoteAddr().String()
}

// Bind attaches the completion target for this connection (set once by the
// caller who owns the fd, typically right after accept/connect).
func (c *streamConn) Bind(owner uint32, session int64) {
	c.owner, c.session = owner, session
}

func (c *streamConn) Start() {
	go c.readLoop()
}

func (c *streamConn) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.nc.Read(buf)
		c.touch()
		if n > 0 {
			body := make([]byte, n)
			copy(body, buf[:n])
			c.srv.deliverTo(c.owner, KindStream, DataRecv, c.session, body)
		}
		if err != nil {
			if err != io.EOF {
				c.srv.deliverError(c.owner, KindStream, c.session, err)
			} else {
				c.srv.deliverTo(c.owner, KindStream, DataClose, c.session, []byte{})
			}
			c.Close()
			return
		}
	}
}

func (c *streamConn) touch() {
	c.mu.Lock()
	c.lastIO = time.Now()
	c.mu.Unlock()
}

func (c *streamConn) IdleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastIO, true
}

func (c *streamConn) Send(data []byte) error {
	c.touch()
	_, err := c.nc.Write(data)
	if err != nil {
		c.mu.Lock()
		c.sendErrN++
		c.mu.Unlock()
	}
	return err
}

func (c *streamConn) SetTimeout(d time.Duration) {
	if d <= 0 {
		c.nc.SetDeadline(time.Time{})
		return
	}
	c.nc.SetDeadline(time.Now().Add(d))
}

func (c *streamConn) SetNoDelay(b bool) {
	if tc, ok := c.nc.(*net.TCPConn); ok {
		tc.SetNoDelay(b)
	}
}

func (c *streamConn) Close() error {
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
