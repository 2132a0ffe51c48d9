package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Dispatcher is the part of the orchestrator the transport talks to.
type Dispatcher interface {
	Attach(conn core.SignalConnection) error
	Detach(id core.ConnID)
	Submit(cmd core.Command) error
}

type Settings struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func DefaultSettings() Settings {
	return Settings{
		ReadLimit:  64 * 1024,
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  10 * time.Second,
		SendBuffer: 64,
	}
}

type SignalWSController struct {
	Orch     Dispatcher
	settings Settings
	limiter  *ConnRateLimiter
}

// NewSignalWSController builds the websocket endpoint. A nil limiter disables rate limiting.
func NewSignalWSController(orch Dispatcher, settings Settings, limiter *ConnRateLimiter) *SignalWSController {
	return &SignalWSController{
		Orch:     orch,
		settings: settings,
		limiter:  limiter,
	}
}

type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is queued and then
// closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves the connection until either side goes away.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("token", token).Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.settings.SendBuffer)
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("token", token).Str("remote", ws.RemoteAddr().String()).Msg("new WS connection")

	if err := ctl.Orch.Attach(conn); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("attach refused")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"),
			time.Now().Add(ctl.settings.WriteWait))
		_ = ws.Close()
		return
	}

	var wg conc.WaitGroup
	wg.Go(func() { ctl.writePump(ctx, conn) })
	wg.Go(func() { ctl.readPump(conn) })
	wg.Wait()
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Msg("WS connection done")
}
