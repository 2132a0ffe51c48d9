package http

import (
	"fmt"
	"net/http"
	"os"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/process"
)

type probes struct {
	orch *orch.Orchestrator
	ice  []webrtc.ICEServer
	self *process.Process
}

func newProbes(o *orch.Orchestrator, ice []webrtc.ICEServer) *probes {
	p := &probes{orch: o, ice: ice}
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("process stats unavailable")
	} else {
		p.self = self
	}
	return p
}

func (p *probes) health(c *gin.Context) {
	snap := p.orch.Snapshot()
	m := p.orch.Metrics().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        m.Uptime,
		"uptimeSeconds": m.UptimeSeconds,
		"users":         snap.Users,
		"addresses":     snap.Addresses,
		"sessions":      snap.Sessions,
	})
}

func (p *probes) stats(c *gin.Context) {
	resp := gin.H{
		"state":    p.orch.Snapshot(),
		"counters": p.orch.Metrics().Snapshot(),
	}
	if p.self != nil {
		if mem, err := p.self.MemoryInfo(); err == nil {
			resp["process"] = gin.H{"pid": p.self.Pid, "rssBytes": mem.RSS}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (p *probes) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": p.ice})
}

// metrics writes the counters in Prometheus text exposition format.
func (p *probes) metrics(c *gin.Context) {
	snap := p.orch.Snapshot()
	m := p.orch.Metrics()
	w := c.Writer

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP meet_uptime_seconds Server uptime in seconds.\n# TYPE meet_uptime_seconds gauge\nmeet_uptime_seconds %f\n", m.Uptime().Seconds())

	write("meet_connections_active", "Attached signaling connections.", "gauge", int64(snap.Connections))
	write("meet_users_online", "Registered identities.", "gauge", int64(snap.Users))
	write("meet_addresses_bound", "Identities with a transport address.", "gauge", int64(snap.Addresses))
	write("meet_sessions_active", "Pending or active sessions.", "gauge", int64(snap.Sessions))

	write("meet_registrations_total", "Register events accepted.", "counter", m.Registrations.Load())
	write("meet_supersedes_total", "Connections replaced by a newer register.", "counter", m.Supersedes.Load())
	write("meet_disconnects_total", "Registered connections lost.", "counter", m.Disconnects.Load())
	write("meet_sessions_created_total", "Sessions created.", "counter", m.SessionsCreated.Load())
	write("meet_sessions_ended_total", "Sessions ended.", "counter", m.SessionsEnded.Load())
	write("meet_calls_accepted_total", "Calls accepted.", "counter", m.CallsAccepted.Load())
	write("meet_calls_rejected_total", "Calls rejected.", "counter", m.CallsRejected.Load())
	write("meet_calls_expired_total", "Pending calls expired.", "counter", m.CallsExpired.Load())
	write("meet_group_joins_total", "Group joins.", "counter", m.GroupJoins.Load())
	write("meet_signals_relayed_total", "Signaling payloads delivered.", "counter", m.SignalsRelayed.Load())
	write("meet_signals_dropped_total", "Signaling payloads with no recipient.", "counter", m.SignalsDropped.Load())
	write("meet_rejections_total", "Commands refused with an error event.", "counter", m.Rejections.Load())
	write("meet_events_dropped_total", "Outbound events that could not be queued.", "counter", m.EventsDropped.Load())
	write("meet_kicks_total", "Connections closed by the backpressure policy.", "counter", m.Kicks.Load())
}
