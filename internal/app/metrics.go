package app

import (
	"sync/atomic"
	"time"
)

// Metrics are lifetime counters. They are written by the event loop and read
// concurrently by the HTTP probes, hence atomics.
type Metrics struct {
	startTime time.Time

	Registrations   atomic.Int64
	Supersedes      atomic.Int64
	Disconnects     atomic.Int64
	SessionsCreated atomic.Int64
	SessionsEnded   atomic.Int64
	CallsAccepted   atomic.Int64
	CallsRejected   atomic.Int64
	CallsExpired    atomic.Int64
	GroupJoins      atomic.Int64
	SignalsRelayed  atomic.Int64
	SignalsDropped  atomic.Int64
	Rejections      atomic.Int64
	EventsDropped   atomic.Int64
	Kicks           atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptimeSeconds"`

	Registrations   int64 `json:"registrations"`
	Supersedes      int64 `json:"supersedes"`
	Disconnects     int64 `json:"disconnects"`
	SessionsCreated int64 `json:"sessionsCreated"`
	SessionsEnded   int64 `json:"sessionsEnded"`
	CallsAccepted   int64 `json:"callsAccepted"`
	CallsRejected   int64 `json:"callsRejected"`
	CallsExpired    int64 `json:"callsExpired"`
	GroupJoins      int64 `json:"groupJoins"`
	SignalsRelayed  int64 `json:"signalsRelayed"`
	SignalsDropped  int64 `json:"signalsDropped"`
	Rejections      int64 `json:"rejections"`
	EventsDropped   int64 `json:"eventsDropped"`
	Kicks           int64 `json:"kicks"`
}

func (m *Metrics) Uptime() time.Duration { return time.Since(m.startTime) }

func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := m.Uptime()
	return MetricsSnapshot{
		Uptime:          uptime.Truncate(time.Second).String(),
		UptimeSeconds:   int64(uptime.Seconds()),
		Registrations:   m.Registrations.Load(),
		Supersedes:      m.Supersedes.Load(),
		Disconnects:     m.Disconnects.Load(),
		SessionsCreated: m.SessionsCreated.Load(),
		SessionsEnded:   m.SessionsEnded.Load(),
		CallsAccepted:   m.CallsAccepted.Load(),
		CallsRejected:   m.CallsRejected.Load(),
		CallsExpired:    m.CallsExpired.Load(),
		GroupJoins:      m.GroupJoins.Load(),
		SignalsRelayed:  m.SignalsRelayed.Load(),
		SignalsDropped:  m.SignalsDropped.Load(),
		Rejections:      m.Rejections.Load(),
		EventsDropped:   m.EventsDropped.Load(),
		Kicks:           m.Kicks.Load(),
	}
}
