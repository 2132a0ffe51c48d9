package app

import (
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// accept moves a pending 1:1 call to active. Only the callee may accept.
func (e *Engine) accept(id domain.SessionID, accepter domain.UserID) ([]core.Outbound, error) {
	s, ok := e.sessions.Get(id)
	if !ok || s.IsGroup() || s.State != domain.StatePending || s.Callee() != accepter {
		return nil, fmt.Errorf("accept %s by %s: %w", id, accepter, domain.ErrSessionNotFound)
	}
	s.State = domain.StateActive
	e.metrics.CallsAccepted.Add(1)
	log.Info().Str("module", "app.lifecycle").Str("session", string(id)).Str("user", string(accepter)).Msg("call accepted")

	return e.notify(nil, s.Caller(), core.NewEvent(core.EventCallAccepted, core.CallAccepted{
		SessionID:       id,
		AccepterID:      accepter,
		AccepterAddress: e.address(accepter),
	})), nil
}

// reject discards a pending or active 1:1 call on behalf of either side.
func (e *Engine) reject(id domain.SessionID, rejecter domain.UserID) ([]core.Outbound, error) {
	s, ok := e.sessions.Get(id)
	if !ok || s.IsGroup() || !s.Has(rejecter) {
		return nil, fmt.Errorf("reject %s by %s: %w", id, rejecter, domain.ErrSessionNotFound)
	}
	others := s.Others(rejecter)
	e.endSession(id)
	e.metrics.CallsRejected.Add(1)
	log.Info().Str("module", "app.lifecycle").Str("session", string(id)).Str("user", string(rejecter)).Msg("call rejected")

	var out []core.Outbound
	for _, p := range others {
		out = e.notify(out, p, core.NewEvent(core.EventCallRejected, core.SessionNotice{SessionID: id}))
	}
	return out, nil
}

// leave ends a 1:1 call or removes the leaver from a group.
func (e *Engine) leave(id domain.SessionID, leaver domain.UserID) ([]core.Outbound, error) {
	s, ok := e.sessions.Get(id)
	if !ok || !s.Has(leaver) {
		return nil, fmt.Errorf("leave %s by %s: %w", id, leaver, domain.ErrSessionNotFound)
	}
	out := e.depart(s, leaver, core.ReasonLeft)
	return e.notify(out, leaver, core.NewEvent(core.EventLeftCall, core.SessionNotice{SessionID: id})), nil
}

// depart removes user from s and tells whoever is left. 1:1 sessions always end;
// group sessions end with their last participant.
func (e *Engine) depart(s *domain.Session, user domain.UserID, reason string) []core.Outbound {
	notice := core.NewEvent(core.EventPeerDisconnected, core.PeerDisconnected{
		SessionID: s.ID,
		PeerID:    user,
		Reason:    reason,
	})
	var remaining []domain.UserID
	if s.IsGroup() {
		if e.sessions.Leave(s.ID, user) == 0 {
			e.endSession(s.ID)
		} else {
			remaining = append(remaining, s.Participants...)
		}
	} else {
		remaining = s.Others(user)
		e.endSession(s.ID)
	}
	log.Info().Str("module", "app.lifecycle").Str("session", string(s.ID)).Str("user", string(user)).Str("reason", reason).Int("remaining", len(remaining)).Msg("participant departed")

	var out []core.Outbound
	for _, p := range remaining {
		out = e.notify(out, p, notice)
	}
	return out
}

// Sweep expires 1:1 calls left pending longer than the configured timeout.
func (e *Engine) Sweep(now time.Time) []core.Outbound {
	if e.limits.PendingTimeout <= 0 {
		return nil
	}
	var out []core.Outbound
	for _, s := range e.sessions.PendingSince(now.Add(-e.limits.PendingTimeout)) {
		participants := append([]domain.UserID(nil), s.Participants...)
		e.endSession(s.ID)
		e.metrics.CallsExpired.Add(1)
		log.Info().Str("module", "app.lifecycle").Str("session", string(s.ID)).Dur("age", now.Sub(s.CreatedAt)).Msg("pending call expired")
		for _, p := range participants {
			out = e.notify(out, p, core.NewEvent(core.EventCallExpired, core.SessionNotice{SessionID: s.ID}))
		}
	}
	return out
}
