// Package service defines the addressable message handler abstraction: a
// service id, name, uniqueness flag, lifecycle state, cpu accounting, and an
// optional memory-limited allocator counter.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package service

import (
	"sync/atomic"

	"github.com/momentics/hioload-actor/message"
)

// State is the service lifecycle state.
type State int32

const (
	StateInit State = iota
	StateOK
	StateExiting
	StateDestroyed
)

// Handler is the one operation every service implements. The handler must
// not block and must not retain msg beyond the call. It may redirect the
// message by mutating Receiver/Type before returning; the worker re-submits
// a redirected message after Dispatch returns.
type Handler interface {
	Dispatch(msg *message.Message) (redirected bool)
}

// Config is the decoded, validated shape of a new_service request.
type Config struct {
	Type      string         `mapstructure:"type" validate:"required"`
	Name      string         `mapstructure:"name" validate:"omitempty,max=128"`
	File      string         `mapstructure:"file"`
	MemLimit  int64          `mapstructure:"memlimit" validate:"gte=0"`
	Unique    bool           `mapstructure:"unique"`
	ThreadID  int            `mapstructure:"threadid" validate:"gte=0"`
	Args      []string       `mapstructure:"args"`
	Extra     map[string]any `mapstructure:"-"`
	Creator   uint32         `mapstructure:"-"`
	Session   int64          `mapstructure:"-"`
}

// Service is the runtime record owned exclusively by its worker. Other
// components refer to it only by id; no other goroutine holds this pointer
// concurrently with the owning worker's dispatch loop, so the mutable
// fields below need only atomics for the handful of fields read from
// outside the worker goroutine (cpu, state, ok).
type Service struct {
	ID     uint32
	Name   string
	Unique bool

	handler Handler
	state   atomic.Int32
	cpuNs   atomic.Int64

	mem *MemLimiter
}

// New wraps a Handler into a Service record with the given id/name/unique
// flag, freshly in StateInit.
func New(id uint32, name string, unique bool, h Handler) *Service {
	s := &Service{ID: id, Name: name, Unique: unique, handler: h}
	s.state.Store(int32(StateInit))
	return s
}

// WithMemLimit attaches a memory-accounting limiter to the service.
func (s *Service) WithMemLimit(limit int64) *Service {
	if limit > 0 {
		s.mem = NewMemLimiter(limit)
	}
	return s
}

// MemLimiter returns the service's memory limiter, or nil if unlimited.
func (s *Service) MemLimiter() *MemLimiter { return s.mem }

// OK reports whether the service should still receive messages.
func (s *Service) OK() bool {
	return State(s.state.Load()) == StateOK
}

// SetOK transitions the service into StateOK (true) or StateExiting (false).
// A service clears its own ok bit from within Dispatch to request teardown.
func (s *Service) SetOK(v bool) {
	if v {
		s.state.Store(int32(StateOK))
	} else {
		s.state.CompareAndSwap(int32(StateOK), int32(StateExiting))
	}
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// MarkDestroyed finalizes the lifecycle; only the owning worker calls this,
// after the service has been removed from its services map.
func (s *Service) MarkDestroyed() {
	s.state.Store(int32(StateDestroyed))
}

// Dispatch invokes the underlying handler. Callers (the worker) are
// responsible for measuring wall-clock time around this call and feeding it
// to AddCPU; Dispatch itself does not time itself so the worker can also
// attribute that same measurement to its own cpu total.
func (s *Service) Dispatch(msg *message.Message) bool {
	return s.handler.Dispatch(msg)
}

// AddCPU accumulates nanoseconds of handler wall-time onto the service's
// cpu counter.
func (s *Service) AddCPU(ns int64) {
	s.cpuNs.Add(ns)
}

// CPU returns accumulated handler time in nanoseconds.
func (s *Service) CPU() int64 {
	return s.cpuNs.Load()
}
