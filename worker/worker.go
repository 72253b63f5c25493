// Package worker implements the per-worker scheduler: a swap-on-read
// message queue, the service table it owns exclusively, and the dispatch
// loop that turns queued messages into Handler.Dispatch calls. Generalized
// from an asio io_context posting model to a goroutine + channel wake-up
// since Go does not have an equivalent single-threaded executor primitive.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package worker

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-actor/affinity"
	"github.com/momentics/hioload-actor/fdtable"
	"github.com/momentics/hioload-actor/ids"
	"github.com/momentics/hioload-actor/log"
	"github.com/momentics/hioload-actor/message"
	"github.com/momentics/hioload-actor/service"
	"github.com/momentics/hioload-actor/socket"
	"github.com/momentics/hioload-actor/timer"
)

// slowHandlerThreshold is the dispatch-duration warning threshold.
const slowHandlerThreshold = 100 * time.Millisecond

// tickInterval is the wheel's tick resolution.
const tickInterval = 10 * time.Millisecond

// Backend is the cross-worker/global surface a Worker needs from its owning
// registry: constructing services by type name, the unique-name table,
// sending a direct response, and fanning a message out to every worker.
// router.Server implements this; defining it here (rather than in router)
// lets worker avoid importing router and keeps the dependency one-directional.
type Backend interface {
	MakeService(serviceType string) (service.Handler, bool)
	SetUniqueService(name string, id uint32) bool
	GetUniqueService(name string) (uint32, bool)
	Respond(to uint32, session int64, mtype message.Type, text string)
	Broadcast(sender uint32, t message.Type, text string)
	Ready() bool
	// ServiceRemoved notifies the registry that serviceID has just been
	// torn down, so it can clear unique-name reservations and detect the
	// bootstrap service exiting.
	ServiceRemoved(serviceID uint32)
}

// Worker owns one OS-thread-equivalent goroutine, its own service table, its
// own timing wheel, and its own socket server.
type Worker struct {
	id      uint32
	backend Backend
	logger  *log.Tagged

	mu       sync.Mutex
	pending  []*message.Message
	tasks    []func()
	services map[uint32]*service.Service
	nextSeq  uint32
	count    atomic.Int32
	shared   atomic.Bool

	current atomic.Uint32
	cpuNs   atomic.Int64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	wheel *timer.Wheel
	Sock  *socket.Server
}

// New constructs a Worker with the given id, sharing fds with every other
// worker through fds, and wired to backend for cross-worker operations.
func New(id uint32, backend Backend, fds *fdtable.Table, reg socket.Registry, logger *log.Logger, nowMs int64) *Worker {
	w := &Worker{
		id:       id,
		backend:  backend,
		logger:   logger.Tagged(fmt.Sprintf("%02x", id)),
		services: make(map[uint32]*service.Service),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	w.shared.Store(true)
	w.wheel = timer.New(nowMs, w.fireTimer)
	w.Sock = socket.NewServer(id, fds, w, reg, w.logger)
	return w
}

func (w *Worker) ID() uint32    { return w.id }
func (w *Worker) Shared() bool  { return w.shared.Load() }
func (w *Worker) CPU() int64    { return w.cpuNs.Load() }
func (w *Worker) Count() int32  { return w.count.Load() }
func (w *Worker) Current() uint32 { return w.current.Load() }

// Deliver implements socket.Delivery: socket completions are ordinary
// messages pushed onto this worker's queue.
func (w *Worker) Deliver(msg *message.Message) { w.Send(msg) }

// Send enqueues msg and wakes the dispatch loop if the queue had been empty:
// the drain task is posted only on the empty->1 transition.
func (w *Worker) Send(msg *message.Message) {
	w.mu.Lock()
	w.pending = append(w.pending, msg)
	n := len(w.pending)
	w.mu.Unlock()
	if n == 1 {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// QueueDepth reports the current backlog (metrics surface).
func (w *Worker) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Worker) swap() []*message.Message {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()
	return batch
}

// PostTask schedules fn to run on this worker's own dispatch goroutine, the
// Go stand-in for posting a closure onto an asio io_context: every mutation of
// the service table happens this way so it is always single-threaded.
func (w *Worker) PostTask(fn func()) {
	w.mu.Lock()
	w.tasks = append(w.tasks, fn)
	n := len(w.tasks) + len(w.pending)
	w.mu.Unlock()
	if n <= 1 {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (w *Worker) swapTasks() []func() {
	w.mu.Lock()
	batch := w.tasks
	w.tasks = nil
	w.mu.Unlock()
	return batch
}

func (w *Worker) fireTimer(ctx timer.Context) {
	w.Send(message.NewInt(message.Timer, 0, ctx.ServiceID, ctx.TimerID, ctx.TimerID))
}

// Run drains the queue whenever woken and ticks the timing wheel every
// tickInterval, until Stop is called. It must run on its own goroutine; all
// service-table mutation and Handler.Dispatch calls happen here and only
// here, preserving the "one goroutine per worker" invariant.
func (w *Worker) Run() {
	defer close(w.done)
	runtime.LockOSThread()
	if err := affinity.Pin(w.id, int(w.id-1)%runtime.NumCPU()); err != nil {
		w.logger.Debugf("worker %d: cpu affinity unavailable: %v", w.id, err)
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	var current *service.Service
	for {
		select {
		case <-w.wake:
			for _, fn := range w.swapTasks() {
				fn()
			}
			for _, msg := range w.swap() {
				current = w.handleOne(current, msg)
			}
		case now := <-ticker.C:
			w.wheel.Update(now.UnixMilli())
		case <-w.stop:
			for _, fn := range w.swapTasks() {
				fn()
			}
			for _, msg := range w.swap() {
				current = w.handleOne(current, msg)
			}
			w.Sock.Shutdown()
			return
		}
	}
}

// BroadcastShutdown posts a task that dispatches a Shutdown message
// directly to every locally owned service, bypassing the ordinary queue so
// it runs promptly even with backlog.
func (w *Worker) BroadcastShutdown() {
	w.PostTask(func() {
		msg := message.NewBytes(message.Shutdown, 0, 0, 0, nil)
		for _, s := range w.Snapshot() {
			s.Dispatch(msg)
		}
	})
}

// Stop requests the dispatch loop to drain once more and exit, and blocks
// until it has.
func (w *Worker) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}

// Wheel exposes the per-worker timing wheel so a registry-level Timeout
// operation can insert an entry owned by this worker.
func (w *Worker) Wheel() *timer.Wheel { return w.wheel }

// FindService looks up a live service by id. Only safe to call from the
// dispatch goroutine itself, or for a best-effort snapshot (Scan/metrics).
func (w *Worker) FindService(id uint32) (*service.Service, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.services[id]
	return s, ok
}

// Snapshot returns a point-in-time copy of the service table for scan/JSON
// listing.
func (w *Worker) Snapshot() []*service.Service {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*service.Service, 0, len(w.services))
	for _, s := range w.services {
		out = append(out, s)
	}
	return out
}

// NewService allocates a fresh per-worker id, constructs the handler via
// backend.MakeService, and registers it. Grounded on worker::new_service:
// the id-allocation retry loop, the unique-name reservation, and the
// conf.Session-gated PTYPE_INTEGER reply to the creator.
func (w *Worker) NewService(conf *service.Config) {
	w.count.Add(1)
	w.PostTask(func() { w.createService(conf) })
}

func (w *Worker) createService(conf *service.Config) {
	var serviceID uint32
	w.mu.Lock()
	for counter := 0; counter < int(ids.WorkerMaxService); counter++ {
		w.nextSeq++
		if w.nextSeq >= ids.WorkerMaxService {
			w.nextSeq = 1
		}
		candidate := ids.Make(w.id, w.nextSeq)
		if _, exists := w.services[candidate]; !exists {
			serviceID = candidate
			break
		}
	}
	w.mu.Unlock()

	if serviceID == 0 {
		w.logger.Errorf("new service failed: worker %d exhausted service ids (%d live)", w.id, len(w.services))
		w.failNewService(conf)
		return
	}

	if conf.Unique && conf.Name != "" {
		if !w.backend.SetUniqueService(conf.Name, serviceID) {
			w.logger.Errorf("new service failed: unique name %q already registered", conf.Name)
			w.failNewService(conf)
			return
		}
	}

	handler, ok := w.backend.MakeService(conf.Type)
	if !ok {
		w.logger.Errorf("new service failed: type %q is not registered", conf.Type)
		w.failNewService(conf)
		return
	}

	svc := service.New(serviceID, conf.Name, conf.Unique, handler)
	if conf.MemLimit > 0 {
		svc.WithMemLimit(conf.MemLimit)
		svc.MemLimiter().OnReport(func(used, threshold int64) {
			w.logger.Warnf("service %08x memory usage %d crossed %d", serviceID, used, threshold)
		})
	}
	svc.SetOK(true)

	w.mu.Lock()
	w.services[serviceID] = svc
	w.shared.Store(false)
	w.mu.Unlock()

	if conf.Session != 0 {
		w.backend.Respond(conf.Creator, conf.Session, message.Integer, fmt.Sprintf("%d", serviceID))
	}
}

func (w *Worker) failNewService(conf *service.Config) {
	w.count.Add(-1)
	w.mu.Lock()
	empty := len(w.services) == 0
	w.mu.Unlock()
	if empty {
		w.shared.Store(true)
	}
	if conf.Session != 0 {
		w.backend.Respond(conf.Creator, conf.Session, message.Integer, "0")
	}
}

// RemoveService tears down serviceID, replying to sender and broadcasting
// an exit notice when the runtime is ready.
func (w *Worker) RemoveService(serviceID, sender uint32, session int64) {
	w.PostTask(func() { w.removeService(serviceID, sender, session) })
}

func (w *Worker) removeService(serviceID, sender uint32, session int64) {
	w.mu.Lock()
	svc, ok := w.services[serviceID]
	if ok {
		delete(w.services, serviceID)
	}
	empty := len(w.services) == 0
	w.mu.Unlock()

	if !ok {
		w.backend.Respond(sender, session, message.Error, fmt.Sprintf("service [%08X] not found", serviceID))
		return
	}

	w.count.Add(-1)
	if empty {
		w.shared.Store(true)
	}
	svc.MarkDestroyed()
	w.backend.Respond(sender, session, message.Text, "service destroy")

	if w.backend.Ready() {
		w.backend.Broadcast(serviceID, message.System,
			fmt.Sprintf("_service_exit,name:%s serviceid:%08X", svc.Name, serviceID))
	}

	w.backend.ServiceRemoved(serviceID)
}

// handleOne dispatches a single message, implementing the broadcast
// filtering, dead-receiver error reply, and cpu accounting from
// worker::handle_one.
func (w *Worker) handleOne(current *service.Service, msg *message.Message) *service.Service {
	if msg.IsBroadcast() {
		for _, s := range w.Snapshot() {
			if !s.Unique && msg.Type == message.System {
				continue
			}
			if s.OK() && s.ID != msg.Sender {
				w.dispatch(s, msg.Clone())
			}
		}
		return current
	}

	if current == nil || current.ID != msg.Receiver || !current.OK() {
		s, ok := w.FindService(msg.Receiver)
		if !ok || !s.OK() {
			if msg.Sender != 0 && msg.Type != message.Timer {
				hexBody := hex.EncodeToString(msg.Data())
				text := fmt.Sprintf("[%08X] attempt send to dead service [%08X]: %s.", msg.Sender, msg.Receiver, hexBody)
				w.backend.Respond(msg.Sender, -msg.Session, message.Error, text)
			}
			return s
		}
		current = s
	}

	w.dispatch(current, msg)
	return current
}

func (w *Worker) dispatch(s *service.Service, msg *message.Message) {
	w.current.Store(s.ID)
	start := time.Now()
	redirected := s.Dispatch(msg)
	elapsed := time.Since(start)
	s.AddCPU(elapsed.Nanoseconds())
	w.cpuNs.Add(elapsed.Nanoseconds())
	if elapsed > slowHandlerThreshold {
		w.logger.Warnf("worker %d handle one message(%d) cost %s, from %08X to %08X", w.id, msg.Type, elapsed, msg.Sender, msg.Receiver)
	}
	if redirected {
		w.Send(msg)
	}
}
