package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type SessionID string

type SessionKind string

const (
	KindDirect SessionKind = "direct"
	KindRandom SessionKind = "random"
	KindGroup  SessionKind = "group"
)

type SessionState string

const (
	StatePending SessionState = "pending"
	StateActive  SessionState = "active"
	StateEnded   SessionState = "ended"
)

// Unbounded marks a group session without a participant limit.
const Unbounded = 0

// Session is one proposed or running call. Participants keep join order;
// for 1:1 sessions index 0 is the caller and index 1 the callee.
type Session struct {
	ID           SessionID    `json:"id"`
	Kind         SessionKind  `json:"kind"`
	State        SessionState `json:"state"`
	Participants []UserID     `json:"participants"`
	Capacity     int          `json:"capacity"`
	Host         UserID       `json:"host,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// NewCall builds a pending 1:1 session between caller and callee.
func NewCall(kind SessionKind, caller, callee UserID, now time.Time) *Session {
	return &Session{
		ID:           NewSessionID(),
		Kind:         kind,
		State:        StatePending,
		Participants: []UserID{caller, callee},
		Capacity:     2,
		CreatedAt:    now,
	}
}

// NewGroup builds a group session holding only its host.
func NewGroup(host UserID, capacity int, now time.Time) *Session {
	return &Session{
		ID:           NewSessionID(),
		Kind:         KindGroup,
		State:        StatePending,
		Participants: []UserID{host},
		Capacity:     capacity,
		Host:         host,
		CreatedAt:    now,
	}
}

func (s *Session) IsGroup() bool { return s.Kind == KindGroup }

func (s *Session) Has(id UserID) bool {
	return slices.Contains(s.Participants, id)
}

// Full reports whether no further participant may join.
func (s *Session) Full() bool {
	return s.Capacity != Unbounded && len(s.Participants) >= s.Capacity
}

// Others returns the participants except id, in join order.
func (s *Session) Others(id UserID) []UserID {
	out := make([]UserID, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p != id {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) Caller() UserID { return s.Participants[0] }

// Callee is the invited side of a 1:1 session.
func (s *Session) Callee() UserID {
	if len(s.Participants) < 2 {
		return ""
	}
	return s.Participants[1]
}
