package signal

import "github.com/dkeye/chatsync/internal/domain"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, domain.Envelope{Type: domain.FramePong})
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, msg string) {
	ctl.sendJSON(conn, domain.Envelope{Type: domain.FrameError, Error: msg})
}
