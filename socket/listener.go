package socket

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-actor/ids"
)

// acceptor wraps a net.Listener handed off to whichever owner service the
// caller named, possibly on a different worker.
type acceptor struct {
	fd       uint32
	ln       net.Listener
	owner    uint32
	kind     Kind
	session  int64
	server   *Server
	stopping chan struct{}
}

// Listen opens a TCP listener on addr, registers it under a fresh fd, and
// starts the accept loop delivering new connections to owner.
func (s *Server) Listen(addr string, owner uint32, kind Kind, session int64) (uint32, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, errors.Wrap(err, "socket: listen")
	}
	fd := s.fds.Alloc()
	a := &acceptor{fd: fd, ln: ln, owner: owner, kind: kind, session: session, server: s, stopping: make(chan struct{})}
	s.mu.Lock()
	s.acceptors[fd] = a
	s.mu.Unlock()
	go a.run()
	return fd, nil
}

func (a *acceptor) run() {
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-a.stopping:
				return
			default:
			}
			a.server.deliverError(a.owner, a.kind, a.session, err)
			return
		}
		a.handle(conn)
	}
}

func (a *acceptor) handle(nc net.Conn) {
	_, srv, _ := a.ownerServer()
	fd := srv.fds.Alloc()
	c := newConn(fd, nc, a.kind, srv)
	bind(c, a.owner, a.session)
	srv.adopt(fd, c)
	c.Start()
	srv.respondFD(a.owner, a.session, fd)
}

// ownerServer resolves the Server table that must hold the new connection:
// the owner service's worker's socket server, which may not be this
// acceptor's own server (cross-worker handoff).
func (a *acceptor) ownerServer() (uint32, *Server, bool) {
	workerID := ids.WorkerOf(a.owner)
	if workerID == a.server.workerID {
		return workerID, a.server, true
	}
	if srv, ok := a.server.reg.SocketServer(workerID); ok {
		return workerID, srv, false
	}
	return workerID, a.server, true
}

func (a *acceptor) close() {
	select {
	case <-a.stopping:
	default:
		close(a.stopping)
	}
	a.ln.Close()
	a.server.mu.Lock()
	delete(a.server.acceptors, a.fd)
	a.server.mu.Unlock()
	a.server.fds.Release(a.fd)
}

// CloseAcceptor closes a live acceptor by fd.
func (s *Server) CloseAcceptor(fd uint32) bool {
	s.mu.Lock()
	a, ok := s.acceptors[fd]
	s.mu.Unlock()
	if !ok {
		return false
	}
	a.close()
	return true
}

// Connect dials addr with a bounded timeout, replying with the new fd as an
// INTEGER message on success or delivering DataError on failure/timeout.
func (s *Server) Connect(addr string, timeout time.Duration, owner uint32, kind Kind, session int64) {
	go func() {
		nc, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			s.deliverError(owner, kind, session, errors.Wrap(err, "socket: connect"))
			return
		}
		fd := s.fds.Alloc()
		c := newConn(fd, nc, kind, s)
		bind(c, owner, session)
		s.adopt(fd, c)
		c.Start()
		s.respondFD(owner, session, fd)
	}()
}
