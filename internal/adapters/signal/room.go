package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/core"
	"github.com/dkeye/chatsync/internal/domain"
)

// handleJoin moves the session into the chat's room. The broadcaster leaves
// any previous room first.
func (ctl *SignalWSController) handleJoin(sid core.SessionID, conn *WsSignalConn, chatID domain.ChatID) {
	if chatID == "" {
		ctl.sendError(conn, "chatId required")
		return
	}
	if !ctl.Limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}
	if !ctl.Orch.Join(sid, chatID) {
		ctl.sendError(conn, "join failed")
		return
	}
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("chat", string(chatID)).Msg("join")
}

// handleLeave unsubscribes from chatID; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID, chatID domain.ChatID) {
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("chat", string(chatID)).Msg("leave")
	ctl.Orch.Leave(sid, chatID)
}
