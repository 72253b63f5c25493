// Package router implements the global service registry and message
// router: the worker vector, the unique-name table, the type factory
// registry, and the operations (new_service, remove_service, send,
// broadcast, timeout, scan_services) that route across workers.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package router

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/momentics/hioload-actor/buffer"
	"github.com/momentics/hioload-actor/fdtable"
	"github.com/momentics/hioload-actor/ids"
	"github.com/momentics/hioload-actor/log"
	"github.com/momentics/hioload-actor/message"
	"github.com/momentics/hioload-actor/runtimestate"
	"github.com/momentics/hioload-actor/service"
	"github.com/momentics/hioload-actor/socket"
	"github.com/momentics/hioload-actor/timer"
	"github.com/momentics/hioload-actor/worker"
)

// Server is the global registry + message router. It implements
// worker.Backend (so each Worker can reach back into it) and
// socket.Registry (so each worker's socket.Server can hand off accepted
// connections across worker boundaries).
type Server struct {
	logger  *log.Logger
	workers []*worker.Worker
	fds     *fdtable.Table

	mu        sync.RWMutex
	factories map[string]func() service.Handler
	unique    map[string]uint32

	state     runtimestate.Atomic
	exitCode  int

	clockMu sync.Mutex
	nowMs   int64
}

// New constructs a router with workerCount workers, all initially marked
// shared (eligible for load-balanced placement).
func New(workerCount int, logger *log.Logger) *Server {
	if workerCount < 1 {
		workerCount = 1
	}
	nowMs := time.Now().UnixMilli()
	s := &Server{
		logger:    logger,
		fds:       fdtable.New(),
		factories: make(map[string]func() service.Handler),
		unique:    make(map[string]uint32),
		nowMs:     nowMs,
	}
	s.workers = make([]*worker.Worker, workerCount)
	for i := 0; i < workerCount; i++ {
		s.workers[i] = worker.New(uint32(i+1), s, s.fds, s, logger, nowMs)
	}
	return s
}

// RegisterFactory binds a service type name to a constructor so new_service
// requests naming it can be satisfied without static linkage.
func (s *Server) RegisterFactory(typeName string, ctor func() service.Handler) {
	s.mu.Lock()
	s.factories[typeName] = ctor
	s.mu.Unlock()
}

// Start launches every worker's dispatch loop and marks the router ready.
func (s *Server) Start() {
	for _, w := range s.workers {
		go w.Run()
	}
	s.state.Store(runtimestate.Ready)
}

// Stop broadcasts shutdown to every worker, waits for every worker's
// service table to empty (bounded by timeout), and stops every worker's
// dispatch goroutine. code becomes the process exit code.
func (s *Server) Stop(code int, timeout time.Duration) {
	s.mu.Lock()
	s.exitCode = code
	s.mu.Unlock()
	s.state.Store(runtimestate.Stopping)

	for _, w := range s.workers {
		w.BroadcastShutdown()
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.totalServices() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, w := range s.workers {
		w.Stop()
	}
	s.state.Store(runtimestate.Stopped)
}

func (s *Server) totalServices() int32 {
	var total int32
	for _, w := range s.workers {
		total += w.Count()
	}
	return total
}

// ExitCode returns the exit code last set by RequestExit or Stop.
func (s *Server) ExitCode() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitCode
}

// State returns the current runtime state.
func (s *Server) State() runtimestate.State { return s.state.Load() }

// Ready implements worker.Backend.
func (s *Server) Ready() bool { return s.state.Load() == runtimestate.Ready }

// Workers exposes the worker vector (read-only use: metrics, scan).
func (s *Server) Workers() []*worker.Worker { return s.workers }

// FDCount reports the number of live socket fds across every worker
// (metrics surface;).
func (s *Server) FDCount() int { return s.fds.Count() }

// NowMs returns the router's cached wall clock, refreshed by UpdateClock.
func (s *Server) NowMs() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.nowMs
}

// UpdateClock refreshes the cached clock and logs a warning if the wall
// clock jumped backward; the new value is stored either way. The timing
// wheels keep their own clock and are not affected by this one.
func (s *Server) UpdateClock(realNowMs int64) {
	s.clockMu.Lock()
	if realNowMs < s.nowMs {
		s.logger.Warnf("router: wall clock moved backward by %dms", s.nowMs-realNowMs)
	}
	s.nowMs = realNowMs
	s.clockMu.Unlock()
}

// MakeService implements worker.Backend.
func (s *Server) MakeService(typeName string) (service.Handler, bool) {
	s.mu.RLock()
	ctor, ok := s.factories[typeName]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// SetUniqueService implements worker.Backend.
func (s *Server) SetUniqueService(name string, id uint32) bool {
	if name == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.unique[name]; exists {
		return false
	}
	s.unique[name] = id
	return true
}

// GetUniqueService implements worker.Backend.
func (s *Server) GetUniqueService(name string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.unique[name]
	return id, ok
}

func (s *Server) clearUniqueByID(id uint32) {
	s.mu.Lock()
	for name, v := range s.unique {
		if v == id {
			delete(s.unique, name)
		}
	}
	s.mu.Unlock()
}

// ServiceRemoved implements worker.Backend: clears any unique-name
// reservation the service held, and — for the distinguished bootstrap
// service — transitions the runtime toward shutdown.
func (s *Server) ServiceRemoved(serviceID uint32) {
	s.clearUniqueByID(serviceID)
	if serviceID == ids.BootstrapAddr {
		s.RequestExit(0)
	}
}

// RequestExit sets the process exit code and begins the shutdown
// transition; any service can trigger it through the runtime-exit surface.
// A second call after the runtime has already left Ready is a no-op: the
// first caller's code wins.
func (s *Server) RequestExit(code int) {
	if !s.state.CAS(runtimestate.Ready, runtimestate.Stopping) {
		return
	}
	s.mu.Lock()
	s.exitCode = code
	s.mu.Unlock()
}

// workerFor resolves the worker owning a service id.
func (s *Server) workerFor(serviceID uint32) (*worker.Worker, bool) {
	return s.workerByID(ids.WorkerOf(serviceID))
}

func (s *Server) workerByID(workerID uint32) (*worker.Worker, bool) {
	if workerID == 0 || int(workerID) > len(s.workers) {
		return nil, false
	}
	return s.workers[workerID-1], true
}

// WorkerDelivery implements socket.Registry.
func (s *Server) WorkerDelivery(workerID uint32) (socket.Delivery, bool) {
	if workerID == 0 || int(workerID) > len(s.workers) {
		return nil, false
	}
	return s.workers[workerID-1], true
}

// SocketServer implements socket.Registry.
func (s *Server) SocketServer(workerID uint32) (*socket.Server, bool) {
	if workerID == 0 || int(workerID) > len(s.workers) {
		return nil, false
	}
	return s.workers[workerID-1].Sock, true
}

// Respond implements worker.Backend: builds a text/error/integer reply and
// routes it to `to`'s owning worker.
func (s *Server) Respond(to uint32, session int64, mtype message.Type, text string) {
	if to == 0 {
		return
	}
	buf := buffer.New(len(text))
	buf.WriteBack([]byte(text))
	msg := message.NewBytes(mtype, 0, to, session, buf)
	s.deliver(msg)
}

// Send routes msg to its receiver's owning worker.
func (s *Server) Send(msg *message.Message) {
	s.deliver(msg)
}

func (s *Server) deliver(msg *message.Message) {
	w, ok := s.workerFor(msg.Receiver)
	if !ok {
		s.logger.Warnf("router: message to %08x has no owning worker, dropping", msg.Receiver)
		return
	}
	w.Send(msg)
}

// Broadcast implements worker.Backend's broadcast operation: every worker
// gets an independent clone so each can apply its own SYSTEM/unique
// filtering without sharing mutable state.
func (s *Server) Broadcast(sender uint32, t message.Type, text string) {
	buf := buffer.New(len(text))
	buf.WriteBack([]byte(text))
	base := message.NewBytes(t, sender, 0, 0, buf)
	for _, w := range s.workers {
		w.Send(base.Clone())
	}
}

// Timeout schedules a timer for serviceID. delayMs<=0 fires synchronously
// (the timer.Context is delivered as a Timer message immediately);
// otherwise the entry is inserted into the owning service's worker's
// timing wheel.
func (s *Server) Timeout(serviceID uint32, timerID int64, delayMs int64) {
	if delayMs <= 0 {
		w, ok := s.workerFor(serviceID)
		if !ok {
			return
		}
		w.Send(message.NewInt(message.Timer, 0, serviceID, timerID, timerID))
		return
	}
	w, ok := s.workerFor(serviceID)
	if !ok {
		return
	}
	w.Wheel().Add(w.Wheel().Now()+delayMs, timer.Context{ServiceID: serviceID, TimerID: timerID})
}

// ScanServices implements "scan_services": a JSON-ish array of
// {"name":...,"serviceid":...} for every live service on workerID (or every
// worker, if workerID is 0).
func (s *Server) ScanServices(workerID uint32) string {
	var targets []*worker.Worker
	if workerID == 0 {
		targets = s.workers
	} else if w, ok := s.workerByID(workerID); ok {
		targets = []*worker.Worker{w}
	}
	var b strings.Builder
	b.WriteByte('[')
	first := true
	for _, w := range targets {
		for _, svc := range w.Snapshot() {
			if !first {
				b.WriteByte(',')
			}
			first = false
			fmt.Fprintf(&b, `{"name":"%s","serviceid":"%X"}`, svc.Name, svc.ID)
		}
	}
	b.WriteByte(']')
	return b.String()
}
