package socket

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// udpSocket is a bound UDP endpoint (there is no connected mode; every send
// names its destination through SendTo). Datagrams arrive as
// DataRecv completions whose body is the encoded source endpoint followed
// by the payload.
type udpSocket struct {
	fd      uint32
	pc      net.PacketConn
	srv     *Server
	owner   uint32
	session int64
	closed  bool
}

// OpenUDP binds a UDP socket on addr (or an ephemeral port if addr is
// empty) and starts its receive loop.
func (s *Server) OpenUDP(addr string, owner uint32, session int64) (uint32, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return 0, errors.Wrap(err, "socket: udp listen")
	}
	fd := s.fds.Alloc()
	u := &udpSocket{fd: fd, pc: pc, srv: s, owner: owner, session: session}
	s.mu.Lock()
	s.udps[fd] = u
	s.mu.Unlock()
	go u.readLoop()
	return fd, nil
}

func (u *udpSocket) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := u.pc.ReadFrom(buf)
		if err != nil {
			if !u.closed {
				u.srv.deliverError(u.owner, KindStream, u.session, err)
			}
			return
		}
		ep, eerr := encodeEndpoint(addr)
		if eerr != nil {
			continue
		}
		body := append(ep, buf[:n]...)
		u.srv.deliverTo(u.owner, KindStream, DataRecv, u.session, body)
	}
}

// SendTo writes a datagram to the endpoint encoded in the leading bytes of
// dst: '4'|ipv4(4)|port(2) or '6'|ipv6(16)|port(2).
func (s *Server) SendTo(fd uint32, dst []byte, payload []byte) error {
	s.mu.Lock()
	u, ok := s.udps[fd]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("socket: unknown udp fd %d", fd)
	}
	addr, err := decodeEndpoint(dst)
	if err != nil {
		return err
	}
	_, err = u.pc.WriteTo(payload, addr)
	return err
}

func (u *udpSocket) close() error {
	u.closed = true
	u.srv.mu.Lock()
	delete(u.srv.udps, u.fd)
	u.srv.mu.Unlock()
	u.srv.fds.Release(u.fd)
	return u.pc.Close()
}

// CloseUDP closes a UDP socket by fd.
func (s *Server) CloseUDP(fd uint32) bool {
	s.mu.Lock()
	u, ok := s.udps[fd]
	s.mu.Unlock()
	if !ok {
		return false
	}
	u.close()
	return true
}

// encodeEndpoint packs addr as '4'|ip(4)|port(2) or '6'|ip(16)|port(2), port
// in host byte order (a raw memcpy of the port word on this runtime's
// little-endian deployment targets, not a wire-normalized field).
func encodeEndpoint(addr net.Addr) ([]byte, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("socket: not a udp address: %v", addr)
	}
	if ip4 := udpAddr.IP.To4(); ip4 != nil {
		out := make([]byte, 1+4+2)
		out[0] = '4'
		copy(out[1:5], ip4)
		binary.LittleEndian.PutUint16(out[5:7], uint16(udpAddr.Port))
		return out, nil
	}
	ip16 := udpAddr.IP.To16()
	if ip16 == nil {
		return nil, fmt.Errorf("socket: unrecognized ip %v", udpAddr.IP)
	}
	out := make([]byte, 1+16+2)
	out[0] = '6'
	copy(out[1:17], ip16)
	binary.LittleEndian.PutUint16(out[17:19], uint16(udpAddr.Port))
	return out, nil
}

func decodeEndpoint(b []byte) (*net.UDPAddr, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("socket: empty endpoint")
	}
	switch b[0] {
	case '4':
		if len(b) < 1+4+2 {
			return nil, fmt.Errorf("socket: short ipv4 endpoint")
		}
		ip := net.IP(b[1:5])
		port := binary.LittleEndian.Uint16(b[5:7])
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	case '6':
		if len(b) < 1+16+2 {
			return nil, fmt.Errorf("socket: short ipv6 endpoint")
		}
		ip := net.IP(b[1:17])
		port := binary.LittleEndian.Uint16(b[17:19])
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	default:
		return nil, fmt.Errorf("socket: unknown endpoint tag %q", b[0])
	}
}
