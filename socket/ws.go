package socket

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"
)

const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// wsConn is the RFC6455 connection flavor: frames are masked on the wire
// from the client and unmasked from this (server) side; close/ping/pong
// control frames are answered automatically and only text/binary payloads
// (plus ping/pong, for services that want to observe keepalive traffic)
// are surfaced as completions.
type wsConn struct {
	fd  uint32
	nc  net.Conn
	r   *bufio.Reader
	srv *Server

	owner   uint32
	session int64

	mu     sync.Mutex
	lastIO time.Time
	closed bool
}

func newWSConn(fd uint32, nc net.Conn, srv *Server) *wsConn {
	return &wsConn{fd: fd, nc: nc, r: bufio.NewReader(nc), srv: srv, lastIO: time.Now()}
}

func (c *wsConn) FD() uint32              { return c.fd }
func (c *wsConn) Kind() Kind              { return KindWebSocket }
func (c *wsConn) Address() string         { return c.nc.RemoteAddr().String() }
func (c *wsConn) Bind(owner uint32, session int64) { c.owner, c.session = owner, session }

func (c *wsConn) Start() {
	go func() {
		if err := serverHandshake(c.r, c.nc); err != nil {
			c.srv.deliverError(c.owner, KindWebSocket, c.session, err)
			c.Close()
			return
		}
		c.readLoop()
	}()
}

func (c *wsConn) readLoop() {
	for {
		f, err := readWSFrame(c.r)
		if err != nil {
			c.srv.deliverTo(c.owner, KindWebSocket, DataClose, c.session, []byte{})
			c.Close()
			return
		}
		c.touch()
		switch f.opcode {
		case opText, opBinary:
			c.srv.deliverTo(c.owner, KindWebSocket, DataRecv, c.session, f.payload)
		case opPing:
			writeWSFrame(c.nc, opPong, f.payload)
			c.srv.deliverTo(c.owner, KindWebSocket, DataPing, c.session, f.payload)
		case opPong:
			c.srv.deliverTo(c.owner, KindWebSocket, DataPong, c.session, f.payload)
		case opClose:
			writeWSFrame(c.nc, opClose, f.payload)
			c.srv.deliverTo(c.owner, KindWebSocket, DataClose, c.session, f.payload)
			c.Close()
			return
		}
	}
}

func (c *wsConn) touch() {
	c.mu.Lock()
	c.lastIO = time.Now()
	c.mu.Unlock()
}

func (c *wsConn) IdleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastIO, true
}

func (c *wsConn) Send(data []byte) error {
	c.touch()
	return writeWSFrame(c.nc, opBinary, data)
}

func (c *wsConn) SetTimeout(d time.Duration) {
	if d <= 0 {
		c.nc.SetDeadline(time.Time{})
		return
	}
	c.nc.SetDeadline(time.Now().Add(d))
}

func (c *wsConn) SetNoDelay(b bool) {
	if tc, ok := c.nc.(*net.TCPConn); ok {
		tc.SetNoDelay(b)
	}
}

func (c *wsConn) Close() error {
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

// serverHandshake reads the client's HTTP upgrade request line-by-line
// (no net/http dependency: this runs on a raw accepted net.Conn, before
// anything resembling an http.Server exists on it) and responds with the
// 101 Switching Protocols reply, following RFC6455 §4.2's handshake
// validation rules.
func serverHandshake(r *bufio.Reader, w net.Conn) error {
	tp := textproto.NewReader(r)
	if _, err := tp.ReadLine(); err != nil { // request line, unused
		return err
	}
	hdr, err := tp.ReadMIMEHeader()
	if err != nil {
		return err
	}
	if !strings.EqualFold(hdr.Get("Upgrade"), "websocket") {
		return fmt.Errorf("socket: missing websocket upgrade header")
	}
	key := hdr.Get("Sec-Websocket-Key")
	if key == "" {
		return fmt.Errorf("socket: missing Sec-WebSocket-Key")
	}
	h := sha1.New()
	h.Write([]byte(key + wsGUID))
	accept := base64.StdEncoding.EncodeToString(h.Sum(nil))

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	_, err = w.Write([]byte(resp))
	return err
}
