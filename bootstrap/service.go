// Package bootstrap wires the runtime's single distinguished entry-point
// service and the process-level startup/signal/shutdown loop around it.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package bootstrap

import (
	"github.com/momentics/hioload-actor/message"
	"github.com/momentics/hioload-actor/router"
	"github.com/momentics/hioload-actor/service"
)

// serviceTypeName is the registry key the root service is created under;
// it always runs as the unique service "bootstrap" pinned to worker 1, so
// its id is deterministically ids.BootstrapAddr. Its termination drives
// process shutdown.
const serviceTypeName = "bootstrap"

// rootService is the runtime's first service. It carries the `-e` init stat
// and trailing CLI args into the running process and, on receiving
// PTYPE_SHUTDOWN, requests its own removal so router.Stop's service-drain
// wait can observe the bootstrap service reaching zero.
type rootService struct {
	r        *router.Server
	initStat string
	args     []string
}

// newRootService is the factory signature router.RegisterFactory expects.
func newRootService(r *router.Server, initStat string, args []string) func() service.Handler {
	return func() service.Handler {
		return &rootService{r: r, initStat: initStat, args: args}
	}
}

func (b *rootService) Dispatch(msg *message.Message) bool {
	if msg.Type == message.Shutdown {
		if id, ok := b.r.GetUniqueService(serviceTypeName); ok {
			b.r.RemoveService(id, 0, 0)
		}
		return false
	}
	return false
}
