package app

import (
	"slices"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionSet map[domain.SessionID]struct{}

// SessionStore holds every pending or active session and indexes them by participant.
// Ended sessions are removed, never kept around.
type SessionStore struct {
	sessions map[domain.SessionID]*domain.Session
	byUser   map[domain.UserID]sessionSet
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]*domain.Session),
		byUser:   make(map[domain.UserID]sessionSet),
	}
}

func (st *SessionStore) Add(s *domain.Session) {
	st.sessions[s.ID] = s
	for _, p := range s.Participants {
		st.index(p, s.ID)
	}
	log.Info().Str("module", "app.sessions").Str("session", string(s.ID)).Str("kind", string(s.Kind)).Int("participants", len(s.Participants)).Msg("session created")
}

func (st *SessionStore) Get(id domain.SessionID) (*domain.Session, bool) {
	s, ok := st.sessions[id]
	return s, ok
}

// Join appends a participant to an existing session.
func (st *SessionStore) Join(id domain.SessionID, user domain.UserID) bool {
	s, ok := st.sessions[id]
	if !ok {
		return false
	}
	s.Participants = append(s.Participants, user)
	st.index(user, id)
	return true
}

// Leave removes a participant and returns how many remain.
// The session itself is left in place; callers decide when to Delete it.
func (st *SessionStore) Leave(id domain.SessionID, user domain.UserID) int {
	s, ok := st.sessions[id]
	if !ok {
		return 0
	}
	s.Participants = slices.DeleteFunc(s.Participants, func(p domain.UserID) bool { return p == user })
	st.unindex(user, id)
	return len(s.Participants)
}

func (st *SessionStore) Delete(id domain.SessionID) {
	s, ok := st.sessions[id]
	if !ok {
		return
	}
	s.State = domain.StateEnded
	for _, p := range s.Participants {
		st.unindex(p, id)
	}
	delete(st.sessions, id)
	log.Info().Str("module", "app.sessions").Str("session", string(id)).Msg("session ended")
}

// Of returns the sessions listing user, oldest first.
func (st *SessionStore) Of(user domain.UserID) []*domain.Session {
	set := st.byUser[user]
	out := make([]*domain.Session, 0, len(set))
	for id := range set {
		out = append(out, st.sessions[id])
	}
	sortByAge(out)
	return out
}

// InSession reports whether user is a participant of any pending or active session.
func (st *SessionStore) InSession(user domain.UserID) bool {
	return len(st.byUser[user]) > 0
}

// PendingSince returns pending 1:1 sessions created at or before cutoff, oldest first.
func (st *SessionStore) PendingSince(cutoff time.Time) []*domain.Session {
	var out []*domain.Session
	for _, s := range st.sessions {
		if s.IsGroup() || s.State != domain.StatePending {
			continue
		}
		if !s.CreatedAt.After(cutoff) {
			out = append(out, s)
		}
	}
	sortByAge(out)
	return out
}

func (st *SessionStore) Len() int { return len(st.sessions) }

// CountByKind is used by the stats endpoint.
func (st *SessionStore) CountByKind() map[domain.SessionKind]int {
	out := make(map[domain.SessionKind]int, 3)
	for _, s := range st.sessions {
		out[s.Kind]++
	}
	return out
}

func (st *SessionStore) index(user domain.UserID, id domain.SessionID) {
	set, ok := st.byUser[user]
	if !ok {
		set = make(sessionSet)
		st.byUser[user] = set
	}
	set[id] = struct{}{}
}

func (st *SessionStore) unindex(user domain.UserID, id domain.SessionID) {
	set, ok := st.byUser[user]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(st.byUser, user)
	}
}

func sortByAge(list []*domain.Session) {
	slices.SortFunc(list, func(a, b *domain.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
