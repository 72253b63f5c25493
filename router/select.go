package router

import (
	"github.com/momentics/hioload-actor/message"
	"github.com/momentics/hioload-actor/service"
	"github.com/momentics/hioload-actor/worker"
)

// NewService picks a worker per the selection rule below and asks that
// worker to construct the service. Callers pass a *service.Config already
// populated; decoding from an untyped map happens in NewServiceFromMap.
func (s *Server) NewService(conf *service.Config) {
	w := s.pickWorker(conf)
	w.NewService(conf)
}

// NewServiceFromMap decodes and validates an untyped new_service conf (the
// shape a CLI/bootstrap caller produces) before dispatching it. A conf that
// fails decoding or validation replies with INTEGER id 0 to session, the
// same reply-but-fail shape used when service ids are exhausted.
func (s *Server) NewServiceFromMap(raw map[string]any, creator uint32, session int64) {
	conf, err := service.DecodeConfig(raw)
	if err != nil {
		s.logger.Warnf("router: new_service conf rejected: %v", err)
		s.Respond(creator, session, message.Integer, "0")
		return
	}
	conf.Creator = creator
	conf.Session = session
	s.NewService(conf)
}

// pickWorker implements the worker-selection rule: an explicit, in-range
// ThreadID pins placement to that worker; otherwise
// the least-loaded *shared* worker is chosen, ties broken by lowest worker
// id, falling back to the least-loaded worker overall if none are shared
// (a worker stops being shared once it hosts any service, and becomes
// shared again when its last service is removed).
func (s *Server) pickWorker(conf *service.Config) *worker.Worker {
	if conf.ThreadID > 0 && conf.ThreadID <= len(s.workers) {
		return s.workers[conf.ThreadID-1]
	}

	var best *worker.Worker
	for _, w := range s.workers {
		if !w.Shared() {
			continue
		}
		if best == nil || w.Count() < best.Count() {
			best = w
		}
	}
	if best != nil {
		return best
	}

	best = s.workers[0]
	for _, w := range s.workers[1:] {
		if w.Count() < best.Count() {
			best = w
		}
	}
	return best
}

// RemoveService routes a remove_service request to the owning worker.
func (s *Server) RemoveService(serviceID, sender uint32, session int64) {
	w, ok := s.workerFor(serviceID)
	if !ok {
		s.Respond(sender, session, message.Error, "unknown worker for service")
		return
	}
	w.RemoveService(serviceID, sender, session)
}
