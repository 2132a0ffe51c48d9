package app

import (
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestEngine(opts ...Option) *Engine {
	base := []Option{WithPicker(func(c []domain.UserID) domain.UserID { return c[0] })}
	return NewEngine(DefaultLimits(), append(base, opts...)...)
}

func cmd(conn core.ConnID, t core.CommandType) core.Command {
	return core.Command{Conn: conn, Type: t}
}

func registerUser(t *testing.T, e *Engine, conn core.ConnID, id domain.UserID) {
	t.Helper()
	c := cmd(conn, core.CmdRegister)
	c.UserID = id
	out := e.Handle(c)
	require.Len(t, out, 1)
	require.Equal(t, core.EventRegistered, out[0].Event.Type)
}

func sessionCmd(conn core.ConnID, t core.CommandType, id domain.SessionID) core.Command {
	c := cmd(conn, t)
	c.SessionID = id
	return c
}

func directCall(conn core.ConnID, target domain.UserID) core.Command {
	c := cmd(conn, core.CmdRequestDirectCall)
	c.TargetID = target
	return c
}

// eventFor returns the single event addressed to conn with the given type.
func eventFor(t *testing.T, out []core.Outbound, to core.ConnID, typ core.EventType) core.Event {
	t.Helper()
	var found []core.Event
	for _, o := range out {
		if o.To == to && o.Event.Type == typ {
			found = append(found, o.Event)
		}
	}
	require.Len(t, found, 1, "want one %s for %s in %+v", typ, to, out)
	return found[0]
}

func TestRegister_LastConnectionWins(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()

	registerUser(t, e, "c1", "alice")
	out := e.Handle(core.Command{Conn: "c2", Type: core.CmdRegister, UserID: "alice"})

	// Then the older connection is told it was replaced and asked to close
	ev := eventFor(t, out, "c1", core.EventSuperseded)
	req.Equal(core.UserNotice{UserID: "alice"}, ev.Payload)
	for _, o := range out {
		if o.To == "c1" {
			req.True(o.Disconnect)
		}
	}
	eventFor(t, out, "c2", core.EventRegistered)

	conn, ok := e.users.LookupConnection("alice")
	req.True(ok)
	req.Equal(core.ConnID("c2"), conn)

	// And losing the superseded connection leaves alice online
	req.Empty(e.Disconnect("c1"))
	_, ok = e.users.LookupConnection("alice")
	req.True(ok)
}

func TestRegister_SameConnectionIsIdempotent(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()

	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c1", "alice")

	req.Equal(1, e.Stats().Users)
	req.Zero(e.Metrics().Supersedes.Load())
}

func TestRegisterPeer_BeforeRegisterIsIgnored(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()

	out := e.Handle(core.Command{Conn: "c1", Type: core.CmdRegisterPeer, Address: "peer-1"})
	req.Empty(out)
	req.Zero(e.Stats().Addresses)

	registerUser(t, e, "c1", "alice")
	e.Handle(core.Command{Conn: "c1", Type: core.CmdRegisterPeer, Address: "peer-1"})
	addr, ok := e.users.LookupAddress("alice")
	req.True(ok)
	req.Equal(domain.TransportAddress("peer-1"), addr)
}

func TestCommand_RequiresRegistration(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()

	out := e.Handle(cmd("c1", core.CmdRequestRandomCall))

	ev := eventFor(t, out, "c1", core.EventError)
	req.Equal(core.CodeNotRegistered, ev.Payload.(core.ErrorNotice).Code)
}

func TestRandomCall_NoUsersAvailable(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")

	out := e.Handle(cmd("c1", core.CmdRequestRandomCall))

	eventFor(t, out, "c1", core.EventNoUsersAvailable)
	req.Len(out, 1)
	req.Zero(e.Stats().Sessions)
}

func TestRandomCall_MatchesIdleUser(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")
	registerUser(t, e, "c3", "carol")
	e.Handle(core.Command{Conn: "c2", Type: core.CmdRegisterPeer, Address: "peer-bob"})

	// Given bob is already ringing carol
	e.Handle(directCall("c2", "carol"))

	// When carol asks for a random partner while ringing
	out := e.Handle(cmd("c3", core.CmdRequestRandomCall))

	// Then she is told to finish the current call first
	eventFor(t, out, "c3", core.EventError)

	out = e.Handle(cmd("c1", core.CmdRequestRandomCall))
	eventFor(t, out, "c1", core.EventNoUsersAvailable)

	// Once that call is rejected alice is matched with bob
	s := e.sessions.Of("bob")[0]
	e.Handle(sessionCmd("c3", core.CmdRejectCall, s.ID))

	out = e.Handle(cmd("c1", core.CmdRequestRandomCall))
	matched := eventFor(t, out, "c1", core.EventRandomCallMatched).Payload.(core.RandomCallMatched)
	req.Equal(domain.UserID("bob"), matched.TargetID)
	req.Equal(domain.TransportAddress("peer-bob"), matched.TargetAddress)

	incoming := eventFor(t, out, "c2", core.EventIncomingCall).Payload.(core.IncomingCall)
	req.Equal(matched.SessionID, incoming.SessionID)
	req.Equal(domain.UserID("alice"), incoming.CallerID)

	session, ok := e.sessions.Get(matched.SessionID)
	req.True(ok)
	req.Equal(domain.KindRandom, session.Kind)
	req.Equal(domain.StatePending, session.State)
	req.Equal([]domain.UserID{"alice", "bob"}, session.Participants)
}

func TestRandomCall_NeverDoubleBooksTarget(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")
	registerUser(t, e, "c3", "carol")

	// alice matches bob (first eligible), then carol finds nobody
	out := e.Handle(cmd("c1", core.CmdRequestRandomCall))
	eventFor(t, out, "c1", core.EventRandomCallMatched)

	out = e.Handle(cmd("c3", core.CmdRequestRandomCall))
	eventFor(t, out, "c3", core.EventNoUsersAvailable)
	req.Equal(1, e.Stats().Sessions)
}

func TestDirectCall_AcceptActivatesSession(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")
	e.Handle(core.Command{Conn: "c2", Type: core.CmdRegisterPeer, Address: "peer-bob"})

	// When alice calls bob
	out := e.Handle(directCall("c1", "bob"))
	incoming := eventFor(t, out, "c2", core.EventIncomingCall).Payload.(core.IncomingCall)
	req.Equal(domain.UserID("alice"), incoming.CallerID)
	requested := eventFor(t, out, "c1", core.EventCallRequested).Payload.(core.CallRequested)
	req.Equal(incoming.SessionID, requested.SessionID)

	// And bob accepts
	out = e.Handle(sessionCmd("c2", core.CmdAcceptCall, incoming.SessionID))

	// Then alice learns bob's transport address
	accepted := eventFor(t, out, "c1", core.EventCallAccepted).Payload.(core.CallAccepted)
	req.Equal(domain.UserID("bob"), accepted.AccepterID)
	req.Equal(domain.TransportAddress("peer-bob"), accepted.AccepterAddress)

	s, ok := e.sessions.Get(incoming.SessionID)
	req.True(ok)
	req.Equal(domain.StateActive, s.State)
	req.ElementsMatch([]domain.UserID{"alice", "bob"}, s.Participants)

	state, ok := e.Presence("alice")
	req.True(ok)
	req.Equal(domain.PresenceInSession, state)
}

func TestDirectCall_RejectDiscardsSession(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")

	out := e.Handle(directCall("c1", "bob"))
	id := eventFor(t, out, "c2", core.EventIncomingCall).Payload.(core.IncomingCall).SessionID

	out = e.Handle(sessionCmd("c2", core.CmdRejectCall, id))

	ev := eventFor(t, out, "c1", core.EventCallRejected)
	req.Equal(core.SessionNotice{SessionID: id}, ev.Payload)
	req.Empty(e.sessions.Of("alice"))
	req.Empty(e.sessions.Of("bob"))

	// A late accept is a benign race reported as an unknown room
	out = e.Handle(sessionCmd("c2", core.CmdAcceptCall, id))
	eventFor(t, out, "c2", core.EventInvalidRoom)
}

func TestDirectCall_TargetErrors(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")
	registerUser(t, e, "c3", "carol")

	out := e.Handle(directCall("c1", "nobody"))
	ev := eventFor(t, out, "c1", core.EventUserNotAvailable)
	req.Equal(core.UserNotice{UserID: "nobody"}, ev.Payload)

	out = e.Handle(directCall("c1", "alice"))
	eventFor(t, out, "c1", core.EventUserNotAvailable)

	// Given alice and bob are in an active call
	out = e.Handle(directCall("c1", "bob"))
	id := eventFor(t, out, "c2", core.EventIncomingCall).Payload.(core.IncomingCall).SessionID
	e.Handle(sessionCmd("c2", core.CmdAcceptCall, id))

	// Then calling bob again, from alice or carol, reports userInCall
	out = e.Handle(directCall("c1", "bob"))
	eventFor(t, out, "c1", core.EventUserInCall)
	out = e.Handle(directCall("c3", "bob"))
	eventFor(t, out, "c3", core.EventUserInCall)

	// And alice cannot start a second call while busy
	out = e.Handle(directCall("c1", "carol"))
	ev = eventFor(t, out, "c1", core.EventError)
	req.Equal(core.CodeAlreadyInCall, ev.Payload.(core.ErrorNotice).Code)
	req.Equal(1, e.Stats().Sessions)
}

func TestAccept_OnlyCalleeMayAccept(t *testing.T) {
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")

	out := e.Handle(directCall("c1", "bob"))
	id := eventFor(t, out, "c2", core.EventIncomingCall).Payload.(core.IncomingCall).SessionID

	out = e.Handle(sessionCmd("c1", core.CmdAcceptCall, id))
	eventFor(t, out, "c1", core.EventInvalidRoom)

	s, _ := e.sessions.Get(id)
	require.Equal(t, domain.StatePending, s.State)
}

func TestGroupCall_JoinFlow(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "ch", "host")
	registerUser(t, e, "cj", "jane")
	registerUser(t, e, "ck", "kim")
	e.Handle(core.Command{Conn: "cj", Type: core.CmdRegisterPeer, Address: "peer-jane"})

	out := e.Handle(cmd("ch", core.CmdCreateGroupCall))
	id := eventFor(t, out, "ch", core.EventGroupCallCreated).Payload.(core.SessionNotice).SessionID

	// When jane joins she receives the host, and the host hears about jane
	out = e.Handle(sessionCmd("cj", core.CmdJoinGroupCall, id))
	joined := eventFor(t, out, "cj", core.EventJoinedGroupCall).Payload.(core.JoinedGroupCall)
	req.Equal([]domain.User{{ID: "host"}}, joined.Participants)
	newUser := eventFor(t, out, "ch", core.EventNewUserJoined).Payload.(core.NewUserJoined)
	req.Equal(domain.UserID("jane"), newUser.JoinerID)
	req.Equal(domain.TransportAddress("peer-jane"), newUser.JoinerAddress)

	// When kim joins she receives [host, jane] and both hear about kim
	out = e.Handle(sessionCmd("ck", core.CmdJoinGroupCall, id))
	joined = eventFor(t, out, "ck", core.EventJoinedGroupCall).Payload.(core.JoinedGroupCall)
	req.Equal([]domain.User{{ID: "host"}, {ID: "jane", Address: "peer-jane"}}, joined.Participants)
	eventFor(t, out, "ch", core.EventNewUserJoined)
	eventFor(t, out, "cj", core.EventNewUserJoined)
	req.Len(out, 3)

	// Joining twice is refused
	out = e.Handle(sessionCmd("ck", core.CmdJoinGroupCall, id))
	eventFor(t, out, "ck", core.EventAlreadyInRoom)

	// And unknown rooms are reported
	out = e.Handle(sessionCmd("ck", core.CmdJoinGroupCall, "missing"))
	eventFor(t, out, "ck", core.EventInvalidRoom)
}

func TestGroupCall_CapacityEnforced(t *testing.T) {
	req := require.New(t)
	e := NewEngine(Limits{GroupCapacity: 2})
	registerUser(t, e, "c1", "a")
	registerUser(t, e, "c2", "b")
	registerUser(t, e, "c3", "c")

	out := e.Handle(cmd("c1", core.CmdCreateGroupCall))
	id := eventFor(t, out, "c1", core.EventGroupCallCreated).Payload.(core.SessionNotice).SessionID
	e.Handle(sessionCmd("c2", core.CmdJoinGroupCall, id))

	out = e.Handle(sessionCmd("c3", core.CmdJoinGroupCall, id))
	eventFor(t, out, "c3", core.EventCallFull)

	s, _ := e.sessions.Get(id)
	req.Len(s.Participants, 2)
}

func TestGroupCall_UnboundedCapacity(t *testing.T) {
	e := NewEngine(Limits{GroupCapacity: domain.Unbounded})
	registerUser(t, e, "c0", "host")
	out := e.Handle(cmd("c0", core.CmdCreateGroupCall))
	id := eventFor(t, out, "c0", core.EventGroupCallCreated).Payload.(core.SessionNotice).SessionID

	for _, u := range []domain.UserID{"u1", "u2", "u3", "u4", "u5"} {
		conn := core.ConnID("conn-" + u)
		registerUser(t, e, conn, u)
		out = e.Handle(sessionCmd(conn, core.CmdJoinGroupCall, id))
		eventFor(t, out, conn, core.EventJoinedGroupCall)
	}
	s, _ := e.sessions.Get(id)
	require.Len(t, s.Participants, 6)
}

func TestGroupCall_LeaveShrinksThenEnds(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "a")
	registerUser(t, e, "c2", "b")

	out := e.Handle(cmd("c1", core.CmdCreateGroupCall))
	id := eventFor(t, out, "c1", core.EventGroupCallCreated).Payload.(core.SessionNotice).SessionID
	e.Handle(sessionCmd("c2", core.CmdJoinGroupCall, id))

	out = e.Handle(sessionCmd("c1", core.CmdLeaveCall, id))
	left := eventFor(t, out, "c2", core.EventPeerDisconnected).Payload.(core.PeerDisconnected)
	req.Equal(core.PeerDisconnected{SessionID: id, PeerID: "a", Reason: core.ReasonLeft}, left)
	eventFor(t, out, "c1", core.EventLeftCall)

	s, ok := e.sessions.Get(id)
	req.True(ok)
	req.Equal([]domain.UserID{"b"}, s.Participants)

	out = e.Handle(sessionCmd("c2", core.CmdLeaveCall, id))
	req.Len(out, 1)
	_, ok = e.sessions.Get(id)
	req.False(ok)

	out = e.Handle(sessionCmd("c2", core.CmdLeaveCall, id))
	eventFor(t, out, "c2", core.EventInvalidRoom)
}

func TestDisconnect_DirectSessionRemoved(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")

	out := e.Handle(directCall("c1", "bob"))
	id := eventFor(t, out, "c2", core.EventIncomingCall).Payload.(core.IncomingCall).SessionID
	e.Handle(sessionCmd("c2", core.CmdAcceptCall, id))

	out = e.Disconnect("c1")

	ev := eventFor(t, out, "c2", core.EventPeerDisconnected).Payload.(core.PeerDisconnected)
	req.Equal(domain.UserID("alice"), ev.PeerID)
	req.Equal(core.ReasonDisconnected, ev.Reason)
	_, ok := e.sessions.Get(id)
	req.False(ok)
	_, ok = e.users.LookupConnection("alice")
	req.False(ok)

	state, ok := e.Presence("bob")
	req.True(ok)
	req.Equal(domain.PresenceIdle, state)

	// Idempotent
	req.Empty(e.Disconnect("c1"))
}

func TestDisconnect_GroupShrinks(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "a")
	registerUser(t, e, "c2", "b")
	registerUser(t, e, "c3", "c")

	out := e.Handle(cmd("c1", core.CmdCreateGroupCall))
	id := eventFor(t, out, "c1", core.EventGroupCallCreated).Payload.(core.SessionNotice).SessionID
	e.Handle(sessionCmd("c2", core.CmdJoinGroupCall, id))
	e.Handle(sessionCmd("c3", core.CmdJoinGroupCall, id))

	out = e.Disconnect("c2")

	req.Len(out, 2)
	eventFor(t, out, "c1", core.EventPeerDisconnected)
	eventFor(t, out, "c3", core.EventPeerDisconnected)
	s, ok := e.sessions.Get(id)
	req.True(ok)
	req.Equal([]domain.UserID{"a", "c"}, s.Participants)
}

func TestDisconnect_WithoutAddressOrSessions(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")

	req.Empty(e.Disconnect("c1"))
	req.Empty(e.Disconnect("never-registered"))
	req.Zero(e.Stats().Users)
}

func TestSignal_RelaysByAddressUserOrSession(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")
	e.Handle(core.Command{Conn: "c1", Type: core.CmdRegisterPeer, Address: "peer-alice"})
	e.Handle(core.Command{Conn: "c2", Type: core.CmdRegisterPeer, Address: "peer-bob"})
	payload := []byte(`{"sdp":"v=0","opaque":[1,2,3]}`)

	out := e.Handle(core.Command{Conn: "c1", Type: core.CmdSignal, Target: "peer-bob", Payload: payload})
	sig := eventFor(t, out, "c2", core.EventSignal).Payload.(core.Signal)
	req.Equal(domain.UserID("alice"), sig.SenderID)
	req.Equal(domain.TransportAddress("peer-alice"), sig.SenderAddress)
	req.JSONEq(string(payload), string(sig.Payload))

	out = e.Handle(core.Command{Conn: "c2", Type: core.CmdSignal, Target: "alice", Payload: payload})
	eventFor(t, out, "c1", core.EventSignal)

	out = e.Handle(directCall("c1", "bob"))
	id := eventFor(t, out, "c2", core.EventIncomingCall).Payload.(core.IncomingCall).SessionID
	out = e.Handle(core.Command{Conn: "c2", Type: core.CmdSignal, SessionID: id, Payload: payload})
	sig = eventFor(t, out, "c1", core.EventSignal).Payload.(core.Signal)
	req.Equal(id, sig.SessionID)
}

func TestSignal_UnknownTargetDropped(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")

	req.NotPanics(func() {
		out := e.Handle(core.Command{Conn: "c1", Type: core.CmdSignal, Target: "peer-ghost", Payload: []byte(`{}`)})
		req.Empty(out)
		out = e.Handle(core.Command{Conn: "c9", Type: core.CmdSignal, Target: "alice", Payload: []byte(`{}`)})
		req.Empty(out)
		out = e.Handle(core.Command{Conn: "c1", Type: core.CmdSignal, SessionID: "nope", Payload: []byte(`{}`)})
		req.Empty(out)
	})
	req.Equal(int64(3), e.Metrics().SignalsDropped.Load())
}

func TestSweep_ExpiresPendingCalls(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	e := NewEngine(Limits{GroupCapacity: 4, PendingTimeout: time.Minute}, WithClock(clock))
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")
	registerUser(t, e, "c3", "carol")

	out := e.Handle(directCall("c1", "bob"))
	id := eventFor(t, out, "c2", core.EventIncomingCall).Payload.(core.IncomingCall).SessionID
	e.Handle(cmd("c3", core.CmdCreateGroupCall))

	req.Empty(e.Sweep(now.Add(30 * time.Second)))

	out = e.Sweep(now.Add(time.Minute))
	eventFor(t, out, "c1", core.EventCallExpired)
	eventFor(t, out, "c2", core.EventCallExpired)
	_, ok := e.sessions.Get(id)
	req.False(ok)

	// Group sessions are not subject to expiry
	req.Equal(1, e.Stats().Group)
}

func TestSweep_DisabledWithoutTimeout(t *testing.T) {
	e := NewEngine(Limits{GroupCapacity: 4})
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")
	e.Handle(directCall("c1", "bob"))

	require.Empty(t, e.Sweep(time.Now().Add(24*time.Hour)))
	require.Equal(t, 1, e.Stats().Sessions)
}

func TestRegister_SwitchingIdentityReapsOldOne(t *testing.T) {
	req := require.New(t)
	e := newTestEngine()
	registerUser(t, e, "c1", "alice")
	registerUser(t, e, "c2", "bob")
	e.Handle(directCall("c1", "bob"))

	out := e.Handle(core.Command{Conn: "c1", Type: core.CmdRegister, UserID: "alice2"})

	eventFor(t, out, "c2", core.EventPeerDisconnected)
	eventFor(t, out, "c1", core.EventRegistered)
	_, ok := e.users.LookupConnection("alice")
	req.False(ok)
	req.Zero(e.Stats().Sessions)
}
