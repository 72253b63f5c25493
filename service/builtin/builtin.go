// Package builtin provides minimal service types with no embedded scripting
// runtime behind them, giving the registry's new_service code path
// something concrete to exercise end to end. A Handler is just a Dispatch
// method; these are the simplest possible implementations of it.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package builtin

import (
	"github.com/momentics/hioload-actor/message"
	"github.com/momentics/hioload-actor/router"
	"github.com/momentics/hioload-actor/service"
)

// Echo replies to every direct Text message with the same payload sent
// back to the sender, session flipped, and logs nothing else — useful for
// integration tests and as a liveness probe target.
type Echo struct {
	r *router.Server
}

// NewEcho is the factory signature expected by Server.RegisterFactory.
func NewEcho(r *router.Server) func() service.Handler {
	return func() service.Handler { return &Echo{r: r} }
}

func (e *Echo) Dispatch(msg *message.Message) bool {
	if msg.Sender == 0 || msg.Type != message.Text {
		return false
	}
	e.r.Respond(msg.Sender, -msg.Session, message.Text, string(msg.Data()))
	return false
}

// Null discards every message; used where a placeholder service is needed
// (e.g. reserving a unique name without behavior).
type Null struct{}

func NewNull() func() service.Handler {
	return func() service.Handler { return &Null{} }
}

func (Null) Dispatch(msg *message.Message) bool { return false }
