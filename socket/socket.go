// Package socket implements the async socket subsystem:
// TCP listeners/connectors and three connection flavors (raw stream, length
// framed, websocket) behind one capability interface, each owned by exactly
// one worker's tables. Connection completions never return directly to the
// caller; they are delivered as PTYPE_SOCKET / PTYPE_SOCKET_WS messages whose
// first payload byte is a DataType tag. The fd reply to an accept or connect
// is the exception: it arrives as a message.Integer carrying the new fd.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package socket

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-actor/buffer"
	"github.com/momentics/hioload-actor/fdtable"
	"github.com/momentics/hioload-actor/ids"
	"github.com/momentics/hioload-actor/log"
	"github.com/momentics/hioload-actor/message"
)

// Kind selects the wire framing a connection speaks.
type Kind int

const (
	KindStream Kind = iota
	KindFramed
	KindWebSocket
)

// DataType tags the first payload byte of every socket completion message.
// DataConnect/DataAccept are wire constants only: the accept/connect
// completion itself travels as a separate message.Integer reply (see
// Server.respondFD), not as a tagged Socket/SocketWS completion.
type DataType byte

const (
	DataConnect DataType = 1
	DataAccept  DataType = 2
	DataRecv    DataType = 3
	DataClose   DataType = 4
	DataError   DataType = 5
	DataPing    DataType = 6
	DataPong    DataType = 7
)

const (
	// WarnSize is the size in bytes of a single Send at or above which a
	// warning is logged. Pending bytes are not counted: there is no send
	// queue, each Send writes directly.
	WarnSize = 8 << 20
	// ErrorSize is the size in bytes of a single Send at or above which the
	// connection is closed and the Send returns an error.
	ErrorSize = 128 << 20

	idleSweepInterval = 10 * time.Second
)

var errClosed = errors.New("socket: connection closed")

// Conn is the capability surface every connection flavor implements.
type Conn interface {
	FD() uint32
	Kind() Kind
	Start()
	Close() error
	Send(data []byte) error
	SetTimeout(d time.Duration)
	SetNoDelay(b bool)
	Address() string
}

// Delivery is how a connection (or the listener) hands a completion back to
// its owning worker's single dispatch goroutine. worker.Worker implements
// this with its ordinary message-enqueue path, so socket completions are
// just another message arriving at the owner's queue.
type Delivery interface {
	Deliver(msg *message.Message)
}

// Registry locates another worker's Delivery and socket Server by worker id,
// used for cross-worker accept handoff.
type Registry interface {
	WorkerDelivery(workerID uint32) (Delivery, bool)
	SocketServer(workerID uint32) (*Server, bool)
}

// Server holds the fd-keyed tables owned by a single worker: acceptors,
// stream/framed/websocket connections, and UDP sockets. A live fd appears
// in exactly one of these tables on exactly one worker.
type Server struct {
	workerID uint32
	fds      *fdtable.Table
	deliver  Delivery
	reg      Registry
	logger   *log.Tagged

	mu          sync.Mutex
	acceptors   map[uint32]*acceptor
	connections map[uint32]Conn
	udps        map[uint32]*udpSocket

	closeSweep chan struct{}
}

// NewServer constructs a socket server owned by workerID. deliver is the
// owning worker's message sink; reg resolves other workers for handoff.
func NewServer(workerID uint32, fds *fdtable.Table, deliver Delivery, reg Registry, logger *log.Tagged) *Server {
	s := &Server{
		workerID:    workerID,
		fds:         fds,
		deliver:     deliver,
		reg:         reg,
		logger:      logger,
		acceptors:   make(map[uint32]*acceptor),
		connections: make(map[uint32]Conn),
		udps:        make(map[uint32]*udpSocket),
		closeSweep:  make(chan struct{}),
	}
	go s.sweepIdle()
	return s
}

// Shutdown closes every live acceptor, connection, and UDP socket owned by
// this server.
func (s *Server) Shutdown() {
	close(s.closeSweep)
	s.mu.Lock()
	accs := make([]*acceptor, 0, len(s.acceptors))
	for _, a := range s.acceptors {
		accs = append(accs, a)
	}
	conns := make([]Conn, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	udps := make([]*udpSocket, 0, len(s.udps))
	for _, u := range s.udps {
		udps = append(udps, u)
	}
	s.mu.Unlock()

	for _, a := range accs {
		a.close()
	}
	for _, c := range conns {
		c.Close()
	}
	for _, u := range udps {
		u.close()
	}
}

func (s *Server) adopt(fd uint32, c Conn) {
	s.mu.Lock()
	s.connections[fd] = c
	s.mu.Unlock()
}

func (s *Server) forget(fd uint32) {
	s.mu.Lock()
	delete(s.connections, fd)
	s.mu.Unlock()
	s.fds.Release(fd)
}

// Connection looks up a live connection by fd (used by Send/Close requests
// arriving as ordinary service calls).
func (s *Server) Connection(fd uint32) (Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[fd]
	return c, ok
}

// Send writes data to the connection fd synchronously, checking the size of
// this one write against the WarnSize/ErrorSize thresholds.
func (s *Server) Send(fd uint32, data []byte) error {
	c, ok := s.Connection(fd)
	if !ok {
		return errors.Errorf("socket: unknown fd %d", fd)
	}
	if len(data) >= ErrorSize {
		c.Close()
		return errors.Errorf("socket: fd %d send of %d bytes exceeds hard limit, closing", fd, len(data))
	}
	if len(data) >= WarnSize {
		s.logger.Warnf("socket: fd %d large send of %d bytes", fd, len(data))
	}
	return c.Send(data)
}

// CloseConn closes a live stream/framed/websocket connection by fd.
func (s *Server) CloseConn(fd uint32) bool {
	c, ok := s.Connection(fd)
	if !ok {
		return false
	}
	c.Close()
	return true
}

func (s *Server) sweepIdle() {
	t := time.NewTicker(idleSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.mu.Lock()
			stale := make([]Conn, 0)
			for _, c := range s.connections {
				if sc, ok := c.(interface{ IdleSince() (time.Time, bool) }); ok {
					if since, has := sc.IdleSince(); has && time.Since(since) > idleSweepInterval {
						stale = append(stale, c)
					}
				}
			}
			s.mu.Unlock()
			for _, c := range stale {
				s.logger.Warnf("socket: fd %d idle-timeout, closing", c.FD())
				c.Close()
			}
		case <-s.closeSweep:
			return
		}
	}
}

func messageTypeFor(k Kind) message.Type {
	if k == KindWebSocket {
		return message.SocketWS
	}
	return message.Socket
}

// buildCompletion assembles a socket completion payload: one DataType byte
// followed by body, wrapped in a buffer so it rides the normal message path.
func buildCompletion(dt DataType, body []byte) *buffer.Buffer {
	b := buffer.New(1 + len(body))
	b.WriteBack([]byte{byte(dt)})
	if len(body) > 0 {
		b.WriteBack(body)
	}
	return b
}

func (s *Server) deliverTo(owner uint32, k Kind, dt DataType, session int64, body []byte) {
	buf := buildCompletion(dt, body)
	msg := message.NewBytes(messageTypeFor(k), 0, owner, session, buf)
	if ids.WorkerOf(owner) == s.workerID {
		s.deliver.Deliver(msg)
		return
	}
	if d, ok := s.reg.WorkerDelivery(ids.WorkerOf(owner)); ok {
		d.Deliver(msg)
		return
	}
	s.logger.Warnf("socket: owner service %08x has no live worker, dropping completion", owner)
}

func (s *Server) deliverError(owner uint32, k Kind, session int64, err error) {
	s.deliverTo(owner, k, DataError, session, []byte(err.Error()))
}

// respondFD replies to an accept/connect request with the new fd as an
// INTEGER message, routed to owner's worker the same way deliverTo is.
func (s *Server) respondFD(owner uint32, session int64, fd uint32) {
	msg := message.NewInt(message.Integer, 0, owner, session, int64(fd))
	if ids.WorkerOf(owner) == s.workerID {
		s.deliver.Deliver(msg)
		return
	}
	if d, ok := s.reg.WorkerDelivery(ids.WorkerOf(owner)); ok {
		d.Deliver(msg)
		return
	}
	s.logger.Warnf("socket: owner service %08x has no live worker, dropping fd reply", owner)
}

func isTemporary(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
