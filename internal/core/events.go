package core

import (
	"encoding/json"

	"github.com/dkeye/Meet/internal/domain"
)

type EventType string

// Server to client events.
const (
	EventRegistered        EventType = "registered"
	EventSuperseded        EventType = "superseded"
	EventIncomingCall      EventType = "incomingCall"
	EventRandomCallMatched EventType = "randomCallMatched"
	EventCallRequested     EventType = "callRequested"
	EventCallAccepted      EventType = "callAccepted"
	EventCallRejected      EventType = "callRejected"
	EventCallExpired       EventType = "callExpired"
	EventNoUsersAvailable  EventType = "noUsersAvailable"
	EventUserNotAvailable  EventType = "userNotAvailable"
	EventUserInCall        EventType = "userInCall"
	EventGroupCallCreated  EventType = "groupCallCreated"
	EventJoinedGroupCall   EventType = "joinedGroupCall"
	EventNewUserJoined     EventType = "newUserJoined"
	EventInvalidRoom       EventType = "invalidRoom"
	EventAlreadyInRoom     EventType = "alreadyInRoom"
	EventCallFull          EventType = "callFull"
	EventPeerDisconnected  EventType = "peerDisconnected"
	EventLeftCall          EventType = "leftCall"
	EventSignal            EventType = "signal"
	EventError             EventType = "error"
	EventPong              EventType = "pong"
)

// Error codes carried by EventError.
const (
	CodeNotRegistered = "notRegistered"
	CodeAlreadyInCall = "alreadyInCall"
	CodeBadPayload    = "badPayload"
	CodeUnknownEvent  = "unknownEvent"
	CodeRateLimited   = "rateLimited"
)

// Disconnect reasons carried by PeerDisconnected.
const (
	ReasonDisconnected = "disconnected"
	ReasonLeft         = "left"
)

// Event is one server to client message.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// Outbound pairs an event with the connection that must receive it.
// Disconnect asks the transport to close that connection once the event is flushed.
type Outbound struct {
	To         ConnID
	Event      Event
	Disconnect bool
}

type Registered struct {
	UserID domain.UserID `json:"userId"`
}

type IncomingCall struct {
	SessionID     domain.SessionID        `json:"sessionId"`
	CallerID      domain.UserID           `json:"callerId"`
	CallerAddress domain.TransportAddress `json:"callerAddress,omitempty"`
}

type RandomCallMatched struct {
	SessionID     domain.SessionID        `json:"sessionId"`
	TargetID      domain.UserID           `json:"targetId"`
	TargetAddress domain.TransportAddress `json:"targetAddress,omitempty"`
}

type CallRequested struct {
	SessionID domain.SessionID `json:"sessionId"`
	TargetID  domain.UserID    `json:"targetId"`
}

type CallAccepted struct {
	SessionID       domain.SessionID        `json:"sessionId"`
	AccepterID      domain.UserID           `json:"accepterId"`
	AccepterAddress domain.TransportAddress `json:"accepterAddress,omitempty"`
}

// SessionNotice is the payload of every event that only names a session.
type SessionNotice struct {
	SessionID domain.SessionID `json:"sessionId"`
}

// UserNotice is the payload of events about a single target user.
type UserNotice struct {
	UserID domain.UserID `json:"userId"`
}

type JoinedGroupCall struct {
	SessionID    domain.SessionID `json:"sessionId"`
	Participants []domain.User    `json:"participants"`
}

type NewUserJoined struct {
	SessionID     domain.SessionID        `json:"sessionId"`
	JoinerID      domain.UserID           `json:"joinerId"`
	JoinerAddress domain.TransportAddress `json:"joinerAddress,omitempty"`
}

type PeerDisconnected struct {
	SessionID domain.SessionID `json:"sessionId"`
	PeerID    domain.UserID    `json:"peerId"`
	Reason    string           `json:"reason"`
}

// Signal carries an opaque negotiation payload. The server never looks inside Payload.
type Signal struct {
	SenderID      domain.UserID           `json:"senderId"`
	SenderAddress domain.TransportAddress `json:"senderAddress,omitempty"`
	SessionID     domain.SessionID        `json:"sessionId,omitempty"`
	Payload       json.RawMessage         `json:"payload"`
}

type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload}
}

func ErrorEvent(code, msg string) Event {
	return Event{Type: EventError, Payload: ErrorNotice{Code: code, Message: msg}}
}
