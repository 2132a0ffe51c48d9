package signal

import "github.com/dkeye/Meet/internal/core"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.NewEvent(core.EventPong, nil))
}
