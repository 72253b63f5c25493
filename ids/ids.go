// Package ids centralizes the service/worker id encoding shared by router,
// worker, and socket so the bit layout lives in exactly one place.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ids

const (
	// WorkerIDShift is the bit offset of the worker-id byte within a
	// service id: high byte is the worker id, low 24 bits are the
	// per-worker sequence.
	WorkerIDShift = 24

	// WorkerMaxService bounds the per-worker sequence space (low 24 bits).
	WorkerMaxService = 1<<WorkerIDShift - 1

	// MaxWorkers is the largest worker id representable in the high byte.
	MaxWorkers = 255

	// BootstrapAddr is the reserved id of the first service on worker 1; its
	// termination drives process shutdown.
	BootstrapAddr uint32 = 0x01000001
)

// WorkerOf extracts the owning worker id from a service id.
func WorkerOf(serviceID uint32) uint32 {
	return serviceID >> WorkerIDShift
}

// Make composes a service id from a worker id and a per-worker sequence.
func Make(workerID uint32, seq uint32) uint32 {
	return (workerID << WorkerIDShift) | (seq & WorkerMaxService)
}
