package router

import (
	"testing"
	"time"

	"github.com/momentics/hioload-actor/log"
	"github.com/momentics/hioload-actor/message"
	"github.com/momentics/hioload-actor/service"
)

type captureHandler struct {
	ch chan *message.Message
}

func newCaptureHandler() *captureHandler { return &captureHandler{ch: make(chan *message.Message, 16)} }

func (h *captureHandler) Dispatch(msg *message.Message) bool {
	h.ch <- msg
	return false
}

func newTestRouter(t *testing.T, workers int) *Server {
	t.Helper()
	lg, err := log.New(log.Debug, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lg.Close() })
	s := New(workers, lg)
	s.Start()
	t.Cleanup(func() { s.Stop(0, 200*time.Millisecond) })
	return s
}

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

func TestNewServicePinnedByThreadID(t *testing.T) {
	s := newTestRouter(t, 3)
	h := newCaptureHandler()
	s.RegisterFactory("cap", func() service.Handler { return h })

	s.NewService(&service.Config{Type: "cap", Name: "pinned", ThreadID: 2, Session: 1, Creator: 0x7})

	waitFor(t, func() bool { return s.Workers()[1].Count() == 1 })
	if s.Workers()[0].Count() != 0 || s.Workers()[2].Count() != 0 {
		t.Fatal("expected service pinned to worker 2 only")
	}
}

func TestNewServicePicksLeastLoadedShared(t *testing.T) {
	s := newTestRouter(t, 2)
	h1 := newCaptureHandler()
	h2 := newCaptureHandler()
	s.RegisterFactory("a", func() service.Handler { return h1 })
	s.RegisterFactory("b", func() service.Handler { return h2 })

	s.NewService(&service.Config{Type: "a", ThreadID: 1})
	waitFor(t, func() bool { return s.Workers()[0].Count() == 1 })

	s.NewService(&service.Config{Type: "b"})
	waitFor(t, func() bool { return s.Workers()[1].Count() == 1 })
}

func TestRemoveServiceUnknownWorkerReportsError(t *testing.T) {
	s := newTestRouter(t, 1)
	h := newCaptureHandler()
	s.RegisterFactory("echo", func() service.Handler { return h })
	recorder := newCaptureHandler()
	s.RegisterFactory("recorder", func() service.Handler { return recorder })
	s.NewService(&service.Config{Type: "recorder", ThreadID: 1, Creator: 0x01000001, Session: 0})

	// service id 0 belongs to no worker.
	s.RemoveService(0, 0x01000001, 9)
	select {
	case msg := <-recorder.ch:
		_ = msg
	case <-time.After(2 * time.Second):
		t.Fatal("expected an error reply routed to the recorder service")
	}
}

func TestBroadcastReachesEveryWorker(t *testing.T) {
	s := newTestRouter(t, 2)
	h1 := newCaptureHandler()
	h2 := newCaptureHandler()
	s.RegisterFactory("a", func() service.Handler { return h1 })
	s.RegisterFactory("b", func() service.Handler { return h2 })
	s.NewService(&service.Config{Type: "a", Name: "u1", Unique: true, ThreadID: 1})
	s.NewService(&service.Config{Type: "b", Name: "u2", Unique: true, ThreadID: 2})
	waitFor(t, func() bool { return s.Workers()[0].Count() == 1 && s.Workers()[1].Count() == 1 })

	s.Broadcast(0, message.Text, "hello-all")

	for _, ch := range []chan *message.Message{h1.ch, h2.ch} {
		select {
		case msg := <-ch:
			if string(msg.Data()) != "hello-all" {
				t.Fatalf("unexpected broadcast payload: %q", msg.Data())
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for broadcast delivery")
		}
	}
}

func TestNewServiceFromMapRejectsInvalidConf(t *testing.T) {
	s := newTestRouter(t, 1)
	recorder := newCaptureHandler()
	s.RegisterFactory("recorder", func() service.Handler { return recorder })
	s.NewService(&service.Config{Type: "recorder", ThreadID: 1})
	waitFor(t, func() bool { return len(s.Workers()[0].Snapshot()) == 1 })
	var recorderID uint32
	for _, svc := range s.Workers()[0].Snapshot() {
		recorderID = svc.ID
	}

	s.NewServiceFromMap(map[string]any{"memlimit": -1}, recorderID, 7)

	select {
	case msg := <-recorder.ch:
		if msg.Type != message.Integer || string(msg.Data()) != "0" {
			t.Fatalf("expected INTEGER 0 reply for invalid conf, got %+v data=%q", msg, msg.Data())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rejection reply")
	}
}

func TestTimeoutSynchronousFiresImmediately(t *testing.T) {
	s := newTestRouter(t, 1)
	h := newCaptureHandler()
	s.RegisterFactory("t", func() service.Handler { return h })
	s.NewService(&service.Config{Type: "t", ThreadID: 1})
	waitFor(t, func() bool { return len(s.Workers()[0].Snapshot()) == 1 })

	var id uint32
	for _, svc := range s.Workers()[0].Snapshot() {
		id = svc.ID
	}
	s.Timeout(id, 42, 0)

	select {
	case msg := <-h.ch:
		if msg.Type != message.Timer || msg.Int != 42 {
			t.Fatalf("expected timer message with id 42, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for synchronous timer fire")
	}
}
