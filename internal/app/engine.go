package app

import (
	"errors"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Engine is the single owned coordination state: identity registry, session
// store and call policies. Every method runs one event to completion and
// returns the notifications to deliver; none of them touch the transport.
// Engine is not safe for concurrent use.
type Engine struct {
	users    *Registry
	sessions *SessionStore
	limits   Limits
	pick     Picker
	now      func() time.Time
	metrics  *Metrics
}

type Option func(*Engine)

func WithPicker(p Picker) Option { return func(e *Engine) { e.pick = p } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

func NewEngine(limits Limits, opts ...Option) *Engine {
	e := &Engine{
		users:    NewRegistry(),
		sessions: NewSessionStore(),
		limits:   limits,
		pick:     UniformPicker,
		now:      time.Now,
		metrics:  NewMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Metrics() *Metrics { return e.metrics }

// Handle applies one client command.
func (e *Engine) Handle(cmd core.Command) []core.Outbound {
	switch cmd.Type {
	case core.CmdRegister:
		return e.register(cmd.Conn, cmd.UserID)
	case core.CmdRegisterPeer:
		e.registerAddress(cmd.Conn, cmd.Address)
		return nil
	case core.CmdSignal:
		return e.relay(cmd)
	}

	requester, ok := e.users.IdentityOf(cmd.Conn)
	if !ok {
		e.metrics.Rejections.Add(1)
		return reply(cmd.Conn, rejection(domain.ErrNotRegistered, cmd))
	}

	var (
		out []core.Outbound
		err error
	)
	switch cmd.Type {
	case core.CmdRequestRandomCall:
		out, err = e.requestRandom(requester)
	case core.CmdRequestDirectCall:
		out, err = e.requestDirect(requester, cmd.TargetID)
	case core.CmdAcceptCall:
		out, err = e.accept(cmd.SessionID, requester)
	case core.CmdRejectCall:
		out, err = e.reject(cmd.SessionID, requester)
	case core.CmdCreateGroupCall:
		out = e.createGroup(requester)
	case core.CmdJoinGroupCall:
		out, err = e.joinGroup(cmd.SessionID, requester)
	case core.CmdLeaveCall:
		out, err = e.leave(cmd.SessionID, requester)
	default:
		return reply(cmd.Conn, core.ErrorEvent(core.CodeUnknownEvent, string(cmd.Type)))
	}
	if err != nil {
		e.metrics.Rejections.Add(1)
		log.Debug().Err(err).Str("module", "app.engine").Str("user", string(requester)).Str("cmd", string(cmd.Type)).Msg("command rejected")
		return reply(cmd.Conn, rejection(err, cmd))
	}
	return out
}

func (e *Engine) register(conn core.ConnID, id domain.UserID) []core.Outbound {
	var out []core.Outbound
	// A connection re-registering under another id gives up the old one first.
	if old, ok := e.users.IdentityOf(conn); ok && old != id {
		out = append(out, e.reap(old, core.ReasonDisconnected)...)
		e.users.Unregister(old)
	}
	if prev, superseded := e.users.Register(id, conn); superseded {
		e.metrics.Supersedes.Add(1)
		out = append(out, core.Outbound{
			To:         prev,
			Event:      core.NewEvent(core.EventSuperseded, core.UserNotice{UserID: id}),
			Disconnect: true,
		})
	}
	e.metrics.Registrations.Add(1)
	return append(out, core.Outbound{To: conn, Event: core.NewEvent(core.EventRegistered, core.Registered{UserID: id})})
}

func (e *Engine) registerAddress(conn core.ConnID, addr domain.TransportAddress) {
	id, ok := e.users.IdentityOf(conn)
	if !ok {
		log.Debug().Str("module", "app.engine").Str("conn", string(conn)).Msg("address before register ignored")
		return
	}
	e.users.RegisterAddress(id, addr)
}

// Disconnect runs the reaper for a lost connection. Unknown or superseded
// connections are a no-op, so repeated calls are harmless.
func (e *Engine) Disconnect(conn core.ConnID) []core.Outbound {
	id, ok := e.users.IdentityOf(conn)
	if !ok {
		return nil
	}
	e.metrics.Disconnects.Add(1)
	out := e.reap(id, core.ReasonDisconnected)
	e.users.Unregister(id)
	return out
}

// Presence reports whether an online id is idle or in a session.
func (e *Engine) Presence(id domain.UserID) (domain.PresenceState, bool) {
	if _, ok := e.users.LookupConnection(id); !ok {
		return "", false
	}
	if e.sessions.InSession(id) {
		return domain.PresenceInSession, true
	}
	return domain.PresenceIdle, true
}

// Stats is the point-in-time view served by the liveness probe.
type Stats struct {
	Users     int `json:"users"`
	Addresses int `json:"addresses"`
	Sessions  int `json:"sessions"`
	Direct    int `json:"direct"`
	Random    int `json:"random"`
	Group     int `json:"group"`
}

func (e *Engine) Stats() Stats {
	kinds := e.sessions.CountByKind()
	return Stats{
		Users:     e.users.Len(),
		Addresses: e.users.AddressCount(),
		Sessions:  e.sessions.Len(),
		Direct:    kinds[domain.KindDirect],
		Random:    kinds[domain.KindRandom],
		Group:     kinds[domain.KindGroup],
	}
}

// notify addresses an event to the live connection of id.
func (e *Engine) notify(out []core.Outbound, id domain.UserID, ev core.Event) []core.Outbound {
	conn, ok := e.users.LookupConnection(id)
	if !ok {
		log.Warn().Str("module", "app.engine").Str("user", string(id)).Str("event", string(ev.Type)).Msg("notify: user offline")
		return out
	}
	return append(out, core.Outbound{To: conn, Event: ev})
}

func (e *Engine) address(id domain.UserID) domain.TransportAddress {
	addr, _ := e.users.LookupAddress(id)
	return addr
}

func (e *Engine) endSession(id domain.SessionID) {
	e.sessions.Delete(id)
	e.metrics.SessionsEnded.Add(1)
}

func reply(conn core.ConnID, ev core.Event) []core.Outbound {
	return []core.Outbound{{To: conn, Event: ev}}
}

// rejection maps a failed operation to the event reported to the requester.
func rejection(err error, cmd core.Command) core.Event {
	session := core.SessionNotice{SessionID: cmd.SessionID}
	switch {
	case errors.Is(err, domain.ErrNotRegistered):
		return core.ErrorEvent(core.CodeNotRegistered, "register first")
	case errors.Is(err, domain.ErrAlreadyInCall):
		return core.ErrorEvent(core.CodeAlreadyInCall, "leave the current call first")
	case errors.Is(err, domain.ErrNoUsersAvailable):
		return core.NewEvent(core.EventNoUsersAvailable, nil)
	case errors.Is(err, domain.ErrUserNotAvailable):
		return core.NewEvent(core.EventUserNotAvailable, core.UserNotice{UserID: cmd.TargetID})
	case errors.Is(err, domain.ErrUserInCall):
		return core.NewEvent(core.EventUserInCall, core.UserNotice{UserID: cmd.TargetID})
	case errors.Is(err, domain.ErrSessionNotFound):
		return core.NewEvent(core.EventInvalidRoom, session)
	case errors.Is(err, domain.ErrAlreadyInRoom):
		return core.NewEvent(core.EventAlreadyInRoom, session)
	case errors.Is(err, domain.ErrCallFull):
		return core.NewEvent(core.EventCallFull, session)
	default:
		return core.ErrorEvent(core.CodeBadPayload, err.Error())
	}
}
