package app

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// reap removes id from every session it takes part in and notifies the rest.
// It leaves the registry alone; callers unregister afterwards.
func (e *Engine) reap(id domain.UserID, reason string) []core.Outbound {
	var out []core.Outbound
	for _, s := range e.sessions.Of(id) {
		out = append(out, e.depart(s, id, reason)...)
	}
	return out
}
