package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/domain"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id    domain.ChatID
	mu    sync.RWMutex
	bySID map[SessionID]SignalConnection
}

func NewRoomService(id domain.ChatID) RoomService {
	return &roomImpl{
		id:    id,
		bySID: make(map[SessionID]SignalConnection),
	}
}

func (r *roomImpl) ChatID() domain.ChatID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(sid SessionID, conn SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = conn
	log.Debug().Str("module", "core.room").Str("sid", string(sid)).Str("chat", string(r.id)).Msg("member added")
}

func (r *roomImpl) RemoveMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; !ok {
		return false
	}
	delete(r.bySID, sid)
	log.Debug().Str("module", "core.room").Str("sid", string(sid)).Str("chat", string(r.id)).Msg("member removed")
	return true
}

func (r *roomImpl) Broadcast(data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, conn := range r.bySID {
		if err := conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("chat", string(r.id)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionID, 0, len(r.bySID))
	for sid := range r.bySID {
		out = append(out, sid)
	}
	return out
}
