package socket

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-actor/fdtable"
	"github.com/momentics/hioload-actor/log"
	"github.com/momentics/hioload-actor/message"
)

type captureDeliver struct {
	ch chan *message.Message
}

func (c *captureDeliver) Deliver(msg *message.Message) { c.ch <- msg }

type noopRegistry struct{}

func (noopRegistry) WorkerDelivery(uint32) (Delivery, bool)  { return nil, false }
func (noopRegistry) SocketServer(uint32) (*Server, bool)     { return nil, false }

func newTestServer(t *testing.T) (*Server, *captureDeliver) {
	t.Helper()
	lg, err := log.New(log.Debug, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lg.Close() })
	cap := &captureDeliver{ch: make(chan *message.Message, 16)}
	s := NewServer(1, fdtable.New(), cap, noopRegistry{}, lg.Tagged("test"))
	t.Cleanup(s.Shutdown)
	return s, cap
}

func TestFramedConnSendRecvRoundTrip(t *testing.T) {
	server, cap := newTestServer(t)
	a, b := net.Pipe()

	serverFD := server.fds.Alloc()
	serverConn := newFramedConn(serverFD, a, server)
	serverConn.Bind(0x01000002, 42)
	server.adopt(serverFD, serverConn)
	serverConn.Start()

	clientFD := server.fds.Alloc()
	clientConn := newFramedConn(clientFD, b, server)

	payload := []byte("framed hello")
	go clientConn.Send(payload)

	select {
	case msg := <-cap.ch:
		body := msg.Data()
		if len(body) < 1 || DataType(body[0]) != DataRecv {
			t.Fatalf("expected DataRecv completion, got %+v", body)
		}
		if string(body[1:]) != string(payload) {
			t.Fatalf("payload mismatch: got %q", body[1:])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for framed completion")
	}
}

func TestFramedConnChunksLargeMessage(t *testing.T) {
	server, cap := newTestServer(t)
	a, b := net.Pipe()

	serverFD := server.fds.Alloc()
	serverConn := newFramedConn(serverFD, a, server)
	serverConn.Bind(0x01000002, 7)
	server.adopt(serverFD, serverConn)
	serverConn.Start()

	clientFD := server.fds.Alloc()
	clientConn := newFramedConn(clientFD, b, server)

	big := make([]byte, maxChunkSize*2+100)
	for i := range big {
		big[i] = byte(i)
	}
	go clientConn.Send(big)

	select {
	case msg := <-cap.ch:
		body := msg.Data()
		if len(body)-1 != len(big) {
			t.Fatalf("expected %d bytes reassembled, got %d", len(big), len(body)-1)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunked completion")
	}
}
