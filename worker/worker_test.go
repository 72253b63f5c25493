package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-actor/fdtable"
	"github.com/momentics/hioload-actor/log"
	"github.com/momentics/hioload-actor/message"
	"github.com/momentics/hioload-actor/service"
	"github.com/momentics/hioload-actor/socket"
)

type fakeBackend struct {
	mu      sync.Mutex
	unique  map[string]uint32
	types   map[string]func() service.Handler
	ready   bool
	resps   []fakeResp
}

type fakeResp struct {
	to      uint32
	session int64
	mtype   message.Type
	text    string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{unique: make(map[string]uint32), types: make(map[string]func() service.Handler), ready: true}
}

func (b *fakeBackend) MakeService(t string) (service.Handler, bool) {
	ctor, ok := b.types[t]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

func (b *fakeBackend) SetUniqueService(name string, id uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.unique[name]; exists {
		return false
	}
	b.unique[name] = id
	return true
}

func (b *fakeBackend) GetUniqueService(name string) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.unique[name]
	return id, ok
}

func (b *fakeBackend) Respond(to uint32, session int64, mtype message.Type, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resps = append(b.resps, fakeResp{to, session, mtype, text})
}

func (b *fakeBackend) Broadcast(sender uint32, t message.Type, text string) {}
func (b *fakeBackend) Ready() bool                                          { return b.ready }
func (b *fakeBackend) ServiceRemoved(serviceID uint32)                      {}

type echoHandler struct{ dispatched int }

func (h *echoHandler) Dispatch(msg *message.Message) bool { h.dispatched++; return false }

func newTestWorker(t *testing.T, id uint32, backend Backend) *Worker {
	t.Helper()
	lg, err := log.New(log.Debug, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lg.Close() })
	w := New(id, backend, fdtable.New(), noopRegistry{}, lg, time.Now().UnixMilli())
	go w.Run()
	t.Cleanup(w.Stop)
	return w
}

type noopRegistry struct{}

func (noopRegistry) WorkerDelivery(uint32) (socket.Delivery, bool) { return nil, false }
func (noopRegistry) SocketServer(uint32) (*socket.Server, bool)    { return nil, false }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestNewServiceAssignsIDAndReplies(t *testing.T) {
	backend := newFakeBackend()
	h := &echoHandler{}
	backend.types["echo"] = func() service.Handler { return h }
	w := newTestWorker(t, 1, backend)

	w.NewService(&service.Config{Type: "echo", Name: "svc", Creator: 0x99, Session: 7})

	waitFor(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.resps) == 1
	})

	backend.mu.Lock()
	resp := backend.resps[0]
	backend.mu.Unlock()
	if resp.to != 0x99 || resp.session != 7 || resp.mtype != message.Integer {
		t.Fatalf("unexpected reply: %+v", resp)
	}
	if resp.text == "0" {
		t.Fatal("expected non-zero service id")
	}
}

func TestDeadReceiverGetsErrorReply(t *testing.T) {
	backend := newFakeBackend()
	w := newTestWorker(t, 2, backend)

	msg := message.NewBytes(message.Text, 0x42, 0x02000001, 5, nil)
	w.Send(msg)

	waitFor(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.resps) == 1
	})
	backend.mu.Lock()
	resp := backend.resps[0]
	backend.mu.Unlock()
	if resp.to != 0x42 || resp.session != -5 || resp.mtype != message.Error {
		t.Fatalf("unexpected dead-receiver reply: %+v", resp)
	}
}

func TestBroadcastSkipsNonUniqueForSystemType(t *testing.T) {
	backend := newFakeBackend()
	uniqueHandler := &echoHandler{}
	plainHandler := &echoHandler{}
	backend.types["u"] = func() service.Handler { return uniqueHandler }
	backend.types["p"] = func() service.Handler { return plainHandler }
	w := newTestWorker(t, 3, backend)

	w.NewService(&service.Config{Type: "u", Name: "uniq", Unique: true})
	w.NewService(&service.Config{Type: "p", Name: "plain"})

	waitFor(t, func() bool { return w.Count() == 2 })

	w.Send(message.NewBytes(message.System, 0, 0, 0, nil))

	waitFor(t, func() bool { return uniqueHandler.dispatched == 1 })
	time.Sleep(20 * time.Millisecond)
	if plainHandler.dispatched != 0 {
		t.Fatalf("expected non-unique service to be skipped for broadcast SYSTEM, got %d calls", plainHandler.dispatched)
	}
}

func TestRemoveServiceNotFound(t *testing.T) {
	backend := newFakeBackend()
	w := newTestWorker(t, 4, backend)

	w.RemoveService(0x04000099, 0x10, 3)

	waitFor(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.resps) == 1
	})
	backend.mu.Lock()
	resp := backend.resps[0]
	backend.mu.Unlock()
	if resp.mtype != message.Error {
		t.Fatalf("expected error reply for missing service, got %+v", resp)
	}
}
