// Package affinity pins a worker's dispatch goroutine to a single logical
// CPU core for its lifetime. Each worker calls runtime.LockOSThread() then
// Pin once, at the top of its Run loop, so the OS scheduler never migrates
// it afterward — the Go analogue of the original runtime's one-thread-per-
// worker-with-affinity-set model. Platform mechanics live in
// affinity_linux.go / affinity_windows.go / affinity_stub.go behind build
// tags; this file only carries the worker-facing entry point.
package affinity

import "fmt"

// Pin binds the calling OS thread to cpuID on behalf of workerID. Call it
// only after runtime.LockOSThread(), from the goroutine that will run for
// the worker's entire lifetime. Returns an error (never fatal) on platforms
// or cores where pinning is unavailable; callers should log and continue
// unpinned rather than fail startup over it.
func Pin(workerID uint32, cpuID int) error {
	if err := setAffinityPlatform(cpuID); err != nil {
		return fmt.Errorf("affinity: worker %d pin to cpu %d: %w", workerID, cpuID, err)
	}
	return nil
}
