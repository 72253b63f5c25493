package service

import (
	"testing"

	"github.com/momentics/hioload-actor/message"
)

type echoHandler struct{ calls int }

func (h *echoHandler) Dispatch(msg *message.Message) bool {
	h.calls++
	return false
}

func TestLifecycleTransitions(t *testing.T) {
	h := &echoHandler{}
	s := New(0x01000001, "bootstrap", true, h)
	if s.State() != StateInit {
		t.Fatal("expected initial state to be StateInit")
	}
	s.SetOK(true)
	if !s.OK() {
		t.Fatal("expected OK after SetOK(true)")
	}
	s.SetOK(false)
	if s.OK() {
		t.Fatal("expected not-OK after SetOK(false)")
	}
	if s.State() != StateExiting {
		t.Fatalf("expected StateExiting, got %v", s.State())
	}
	s.MarkDestroyed()
	if s.State() != StateDestroyed {
		t.Fatal("expected StateDestroyed after MarkDestroyed")
	}
}

func TestCPUAccumulation(t *testing.T) {
	s := New(1, "x", false, &echoHandler{})
	s.AddCPU(100)
	s.AddCPU(50)
	if s.CPU() != 150 {
		t.Fatalf("expected 150, got %d", s.CPU())
	}
}

func TestMemLimiterRefusesOverLimit(t *testing.T) {
	m := NewMemLimiter(100)
	if !m.Alloc(60) {
		t.Fatal("expected first alloc to succeed")
	}
	if m.Alloc(60) {
		t.Fatal("expected second alloc to be refused (would exceed cap)")
	}
	m.Free(60)
	if !m.Alloc(60) {
		t.Fatal("expected alloc to succeed after freeing")
	}
}

func TestMemLimiterReportCallback(t *testing.T) {
	m := NewMemLimiter(1000)
	var reports int
	m.OnReport(func(used, threshold int64) { reports++ })
	m.Alloc(200) // crosses initial threshold (125)
	if reports == 0 {
		t.Fatal("expected at least one report callback")
	}
}
