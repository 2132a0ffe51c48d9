package orch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("orchestrator stopped")

type eventKind int

const (
	evAttach eventKind = iota
	evDetach
	evCommand
)

type event struct {
	kind eventKind
	conn core.SignalConnection
	id   core.ConnID
	cmd  core.Command
}

// Snapshot is the read-only view published after every processed event.
type Snapshot struct {
	app.Stats
	Connections int `json:"connections"`
}

// Orchestrator owns the Engine and every attached connection. All state
// changes happen on the Run goroutine; the other methods only enqueue.
type Orchestrator struct {
	engine *app.Engine
	policy app.Policy
	sweep  time.Duration
	now    func() time.Time

	conns  map[core.ConnID]core.SignalConnection
	events chan event
	done   chan struct{}

	snapshot atomic.Pointer[Snapshot]
}

type Option func(*Orchestrator)

func WithPolicy(p app.Policy) Option { return func(o *Orchestrator) { o.policy = p } }

// WithSweepInterval sets how often pending calls are checked for expiry. Zero disables the sweep.
func WithSweepInterval(d time.Duration) Option { return func(o *Orchestrator) { o.sweep = d } }

func WithBuffer(n int) Option {
	return func(o *Orchestrator) { o.events = make(chan event, n) }
}

func New(engine *app.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine: engine,
		policy: app.SimplePolicy{},
		sweep:  5 * time.Second,
		now:    time.Now,
		conns:  make(map[core.ConnID]core.SignalConnection),
		events: make(chan event, 256),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.publish()
	return o
}

// Run processes events until ctx is cancelled, then closes every attached connection.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)

	var tick <-chan time.Time
	if o.sweep > 0 {
		t := time.NewTicker(o.sweep)
		defer t.Stop()
		tick = t.C
	}
	log.Info().Str("module", "orch").Dur("sweep", o.sweep).Msg("orchestrator started")

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case ev := <-o.events:
			o.apply(ev)
		case <-tick:
			o.deliver(o.engine.Sweep(o.now()))
		}
		o.publish()
	}
}

func (o *Orchestrator) apply(ev event) {
	switch ev.kind {
	case evAttach:
		o.conns[ev.conn.ID()] = ev.conn
		log.Debug().Str("module", "orch").Str("conn", string(ev.conn.ID())).Msg("attached")
	case evDetach:
		delete(o.conns, ev.id)
		o.deliver(o.engine.Disconnect(ev.id))
		log.Debug().Str("module", "orch").Str("conn", string(ev.id)).Msg("detached")
	case evCommand:
		// Frames read before a close are still queued; the connection no longer owns anything.
		if _, ok := o.conns[ev.cmd.Conn]; !ok {
			log.Debug().Str("module", "orch").Str("conn", string(ev.cmd.Conn)).Str("type", string(ev.cmd.Type)).Msg("command from closed connection dropped")
			return
		}
		o.deliver(o.engine.Handle(ev.cmd))
	}
}

// Attach makes conn reachable for outbound events. It must precede any Submit from that connection.
func (o *Orchestrator) Attach(conn core.SignalConnection) error {
	return o.enqueue(event{kind: evAttach, conn: conn})
}

// Detach reports a lost connection. Calling it more than once is harmless.
func (o *Orchestrator) Detach(id core.ConnID) {
	_ = o.enqueue(event{kind: evDetach, id: id})
}

func (o *Orchestrator) Submit(cmd core.Command) error {
	return o.enqueue(event{kind: evCommand, cmd: cmd})
}

func (o *Orchestrator) enqueue(ev event) error {
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	select {
	case o.events <- ev:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// Snapshot returns the state published after the last processed event. Safe for concurrent use.
func (o *Orchestrator) Snapshot() Snapshot {
	return *o.snapshot.Load()
}

// Metrics exposes the engine counters; they are atomics and safe to read from any goroutine.
func (o *Orchestrator) Metrics() *app.Metrics { return o.engine.Metrics() }

func (o *Orchestrator) publish() {
	o.snapshot.Store(&Snapshot{Stats: o.engine.Stats(), Connections: len(o.conns)})
}

func (o *Orchestrator) shutdown() {
	for id, conn := range o.conns {
		conn.Close()
		delete(o.conns, id)
	}
	o.publish()
	log.Info().Str("module", "orch").Msg("orchestrator stopped")
}
