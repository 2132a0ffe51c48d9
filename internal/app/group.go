package app

import (
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

func (e *Engine) createGroup(host domain.UserID) []core.Outbound {
	s := domain.NewGroup(host, e.limits.GroupCapacity, e.now())
	e.sessions.Add(s)
	e.metrics.SessionsCreated.Add(1)
	return e.notify(nil, host, core.NewEvent(core.EventGroupCallCreated, core.SessionNotice{SessionID: s.ID}))
}

// joinGroup admits joiner and hands it the existing participants for mesh setup.
func (e *Engine) joinGroup(id domain.SessionID, joiner domain.UserID) ([]core.Outbound, error) {
	s, ok := e.sessions.Get(id)
	if !ok || !s.IsGroup() {
		return nil, fmt.Errorf("join %s: %w", id, domain.ErrSessionNotFound)
	}
	if s.Has(joiner) {
		return nil, fmt.Errorf("join %s by %s: %w", id, joiner, domain.ErrAlreadyInRoom)
	}
	if s.Full() {
		return nil, fmt.Errorf("join %s (capacity %d): %w", id, s.Capacity, domain.ErrCallFull)
	}

	existing := lo.Map(s.Participants, func(p domain.UserID, _ int) domain.User {
		return e.users.User(p)
	})
	e.sessions.Join(id, joiner)
	s.State = domain.StateActive
	e.metrics.GroupJoins.Add(1)
	log.Info().Str("module", "app.group").Str("session", string(id)).Str("user", string(joiner)).Int("participants", len(s.Participants)).Msg("joined group")

	out := e.notify(nil, joiner, core.NewEvent(core.EventJoinedGroupCall, core.JoinedGroupCall{
		SessionID:    id,
		Participants: existing,
	}))
	joined := core.NewEvent(core.EventNewUserJoined, core.NewUserJoined{
		SessionID:     id,
		JoinerID:      joiner,
		JoinerAddress: e.address(joiner),
	})
	for _, p := range existing {
		out = e.notify(out, p.ID, joined)
	}
	return out, nil
}
