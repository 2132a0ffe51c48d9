package app

import (
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// requestRandom pairs the requester with a uniformly chosen idle user.
func (e *Engine) requestRandom(requester domain.UserID) ([]core.Outbound, error) {
	if e.sessions.InSession(requester) {
		return nil, fmt.Errorf("random call by %s: %w", requester, domain.ErrAlreadyInCall)
	}
	// Point-in-time snapshot; the event loop serialises concurrent requests.
	eligible := lo.Filter(e.users.Online(requester), func(id domain.UserID, _ int) bool {
		return !e.sessions.InSession(id)
	})
	if len(eligible) == 0 {
		return nil, fmt.Errorf("random call by %s: %w", requester, domain.ErrNoUsersAvailable)
	}
	target := e.pick(eligible)

	s := domain.NewCall(domain.KindRandom, requester, target, e.now())
	e.sessions.Add(s)
	e.metrics.SessionsCreated.Add(1)
	log.Info().Str("module", "app.match").Str("session", string(s.ID)).Str("caller", string(requester)).Str("target", string(target)).Int("eligible", len(eligible)).Msg("random match")

	var out []core.Outbound
	out = e.notify(out, target, core.NewEvent(core.EventIncomingCall, core.IncomingCall{
		SessionID:     s.ID,
		CallerID:      requester,
		CallerAddress: e.address(requester),
	}))
	out = e.notify(out, requester, core.NewEvent(core.EventRandomCallMatched, core.RandomCallMatched{
		SessionID:     s.ID,
		TargetID:      target,
		TargetAddress: e.address(target),
	}))
	return out, nil
}

// requestDirect rings a named user.
func (e *Engine) requestDirect(requester, target domain.UserID) ([]core.Outbound, error) {
	if target == requester {
		return nil, fmt.Errorf("direct call to self: %w", domain.ErrUserNotAvailable)
	}
	if _, ok := e.users.LookupConnection(target); !ok {
		return nil, fmt.Errorf("direct call to %s: %w", target, domain.ErrUserNotAvailable)
	}
	if e.sessions.InSession(target) {
		return nil, fmt.Errorf("direct call to %s: %w", target, domain.ErrUserInCall)
	}
	if e.sessions.InSession(requester) {
		return nil, fmt.Errorf("direct call by %s: %w", requester, domain.ErrAlreadyInCall)
	}

	s := domain.NewCall(domain.KindDirect, requester, target, e.now())
	e.sessions.Add(s)
	e.metrics.SessionsCreated.Add(1)
	log.Info().Str("module", "app.match").Str("session", string(s.ID)).Str("caller", string(requester)).Str("target", string(target)).Msg("direct call")

	var out []core.Outbound
	out = e.notify(out, target, core.NewEvent(core.EventIncomingCall, core.IncomingCall{
		SessionID:     s.ID,
		CallerID:      requester,
		CallerAddress: e.address(requester),
	}))
	out = e.notify(out, requester, core.NewEvent(core.EventCallRequested, core.CallRequested{
		SessionID: s.ID,
		TargetID:  target,
	}))
	return out, nil
}
