package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/core"
	"github.com/dkeye/chatsync/internal/domain"
)

// Join subscribes sid to the chat room. A session is in at most one room,
// so any previous room is left first. Joining the current room is a no-op.
func (o *Orchestrator) Join(sid core.SessionID, chatID domain.ChatID) bool {
	if chatID == "" {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	conn, ok := o.Registry.GetConn(sid)
	if !ok {
		return false
	}
	if current, ok := o.Registry.RoomOf(sid); ok {
		if current == chatID {
			return true
		}
		o.leaveLocked(sid, current)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_chat", string(current)).Msg("left previous room")
	}
	o.Rooms.GetOrCreate(chatID).AddMember(sid, conn)
	o.Registry.UpdateRoom(sid, chatID)
	o.Metrics.Subscribed()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("chat", string(chatID)).Msg("joined room")
	return true
}

// Leave unsubscribes sid from chatID. It is ignored for an empty chatID and
// is a no-op when sid is not in that room.
func (o *Orchestrator) Leave(sid core.SessionID, chatID domain.ChatID) {
	if chatID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.Registry.RoomOf(sid); !ok || current != chatID {
		return
	}
	o.leaveLocked(sid, chatID)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("chat", string(chatID)).Msg("left room")
}

// Disconnect drops the session and whatever room it was in.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.Registry.GetConn(sid); !ok {
		return
	}
	if current, ok := o.Registry.RoomOf(sid); ok {
		o.leaveLocked(sid, current)
	}
	o.Registry.Unbind(sid)
	o.Metrics.ConnClosed()
}

// RoomOf reports the room sid is subscribed to.
func (o *Orchestrator) RoomOf(sid core.SessionID) (domain.ChatID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.Registry.RoomOf(sid)
}

func (o *Orchestrator) leaveLocked(sid core.SessionID, chatID domain.ChatID) {
	if room, ok := o.Rooms.Get(chatID); ok {
		if room.RemoveMember(sid) {
			o.Metrics.Unsubscribed()
		}
		if room.MemberCount() == 0 {
			o.Rooms.StopRoom(chatID)
		}
	}
	o.Registry.RemoveRoom(sid)
}

// ListRooms lists the rooms that currently have subscribers.
func (o *Orchestrator) ListRooms() []core.RoomInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.Rooms.List()
}

// Members lists the sessions subscribed to chatID.
func (o *Orchestrator) Members(chatID domain.ChatID) ([]core.SessionID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	room, ok := o.Rooms.Get(chatID)
	if !ok {
		return nil, false
	}
	return room.MembersSnapshot(), true
}
