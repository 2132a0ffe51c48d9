package app

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// relay forwards an opaque signaling payload. Anything unresolvable is dropped
// silently; delivery is best-effort and retries belong to the media layer.
func (e *Engine) relay(cmd core.Command) []core.Outbound {
	sender, ok := e.users.IdentityOf(cmd.Conn)
	if !ok {
		e.dropSignal(cmd, "sender not registered")
		return nil
	}
	ev := core.NewEvent(core.EventSignal, core.Signal{
		SenderID:      sender,
		SenderAddress: e.address(sender),
		SessionID:     cmd.SessionID,
		Payload:       cmd.Payload,
	})

	if cmd.Target != "" {
		target, ok := e.resolve(cmd.Target)
		if !ok {
			e.dropSignal(cmd, "target unknown")
			return nil
		}
		e.metrics.SignalsRelayed.Add(1)
		return e.notify(nil, target, ev)
	}

	s, ok := e.sessions.Get(cmd.SessionID)
	if !ok || !s.Has(sender) {
		e.dropSignal(cmd, "session unknown")
		return nil
	}
	var out []core.Outbound
	for _, p := range s.Others(sender) {
		out = e.notify(out, p, ev)
	}
	e.metrics.SignalsRelayed.Add(int64(len(out)))
	return out
}

// resolve treats target as a transport address first and a user id second.
func (e *Engine) resolve(target string) (domain.UserID, bool) {
	if id, ok := e.users.ResolveAddress(domain.TransportAddress(target)); ok {
		return id, true
	}
	id := domain.UserID(target)
	if _, ok := e.users.LookupConnection(id); ok {
		return id, true
	}
	return "", false
}

func (e *Engine) dropSignal(cmd core.Command, why string) {
	e.metrics.SignalsDropped.Add(1)
	log.Debug().Str("module", "app.relay").Str("conn", string(cmd.Conn)).Str("target", cmd.Target).Str("session", string(cmd.SessionID)).Str("why", why).Msg("signal dropped")
}
