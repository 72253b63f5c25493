package socket

import "net"

type bindable interface {
	Bind(owner uint32, session int64)
}

// newConn builds the connection flavor matching kind, wired to srv's table.
func newConn(fd uint32, nc net.Conn, kind Kind, srv *Server) Conn {
	switch kind {
	case KindFramed:
		return newFramedConn(fd, nc, srv)
	case KindWebSocket:
		return newWSConn(fd, nc, srv)
	default:
		return newStreamConn(fd, nc, srv)
	}
}

// bind attaches the owner/session completion target to a freshly built
// connection; acceptor.handle and Server.Connect call this right after
// construction, before Start().
func bind(c Conn, owner uint32, session int64) {
	if b, ok := c.(bindable); ok {
		b.Bind(owner, session)
	}
}
