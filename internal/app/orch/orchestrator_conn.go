package orch

import (
	"errors"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// deliver encodes and queues every outbound event, applying the backpressure
// policy to connections that cannot take more.
func (o *Orchestrator) deliver(out []core.Outbound) {
	for _, ob := range out {
		conn, ok := o.conns[ob.To]
		if !ok {
			o.engine.Metrics().EventsDropped.Add(1)
			log.Debug().Str("module", "orch").Str("conn", string(ob.To)).Str("event", string(ob.Event.Type)).Msg("no such connection")
			continue
		}
		frame, err := json.Marshal(ob.Event)
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Str("event", string(ob.Event.Type)).Msg("encode event")
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			o.onSendFailure(ob, err)
			continue
		}
		if ob.Disconnect {
			o.close(ob.To)
		}
	}
}

func (o *Orchestrator) onSendFailure(ob core.Outbound, err error) {
	o.engine.Metrics().EventsDropped.Add(1)
	if !errors.Is(err, core.ErrBackpressure) {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(ob.To)).Msg("send on closed connection")
		o.kick(ob.To)
		return
	}
	action := o.policy.OnBackPressure(ob.To, ob.Event)
	log.Warn().Str("module", "orch").Str("conn", string(ob.To)).Str("event", string(ob.Event.Type)).Int("action", int(action)).Msg("backpressure")
	switch action {
	case app.KickMember:
		o.kick(ob.To)
	case app.DropFrame, app.NoAction:
	}
	if ob.Disconnect {
		o.close(ob.To)
	}
}

// kick closes a connection and reaps its identity right away instead of
// waiting for the reader to notice.
func (o *Orchestrator) kick(id core.ConnID) {
	if !o.close(id) {
		return
	}
	o.engine.Metrics().Kicks.Add(1)
	o.deliver(o.engine.Disconnect(id))
}

func (o *Orchestrator) close(id core.ConnID) bool {
	conn, ok := o.conns[id]
	if !ok {
		return false
	}
	delete(o.conns, id)
	conn.Close()
	return true
}
