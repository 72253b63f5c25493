//go:build windows
// +build windows

package control

import (
	"runtime"
)

// RegisterPlatformProbes adds the Windows-specific debug probes: the
// logical CPU count workers are pinned across (see the affinity package)
// and the live goroutine count, a rough proxy for (workers + open socket
// connections) since this runtime spawns one goroutine per worker plus one
// per connection's read/write loop.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.goroutines", func() any {
		return runtime.NumGoroutine()
	})
}
