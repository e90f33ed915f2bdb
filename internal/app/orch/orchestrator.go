package orch

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/app"
	"github.com/dkeye/chatsync/internal/core"
	"github.com/dkeye/chatsync/internal/domain"
	"github.com/dkeye/chatsync/internal/metrics"
)

// Orchestrator is the room broadcaster. It exclusively owns room
// membership: every join, leave, disconnect and publish goes through it.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Metrics  *metrics.Metrics

	// mu serializes membership changes; publish holds it for reading.
	mu sync.RWMutex
}

func New(reg *app.Registry, rooms core.RoomManager, policy app.Policy, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{Registry: reg, Rooms: rooms, Policy: policy, Metrics: m}
}

// Connect registers a realtime session. It starts unsubscribed.
func (o *Orchestrator) Connect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Registry.BindSignal(sid, conn, cancel)
	o.Metrics.ConnOpened()
}

// Publish delivers evt to its scope without waiting for delivery.
// Subscribers whose queue is full are handed to the back-pressure policy.
func (o *Orchestrator) Publish(scope core.Scope, evt domain.ChatUpdate) {
	if !evt.Type.Valid() {
		log.Error().Str("module", "orch").Str("type", string(evt.Type)).Msg("refusing to publish unknown update type")
		return
	}
	frame, err := json.Marshal(domain.Envelope{Type: domain.FrameChatUpdate, Update: &evt})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode chat update")
		return
	}

	var res core.PublishResult
	o.mu.RLock()
	if scope.All {
		res = o.broadcastAll(frame)
	} else if room, ok := o.Rooms.Get(scope.Room); ok {
		res = room.Broadcast(frame)
	}
	o.mu.RUnlock()

	o.Metrics.Published(string(evt.Type), len(res.Dropped))
	log.Debug().Str("module", "orch").Str("type", string(evt.Type)).Bool("all", scope.All).
		Str("chat", string(scope.Room)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("published")
	o.handleDropped(res.Dropped)
}

func (o *Orchestrator) broadcastAll(frame core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, snap := range o.Registry.All() {
		if err := snap.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, snap.SID)
			continue
		}
		res.SendTo++
	}
	return res
}

func (o *Orchestrator) handleDropped(dropped []core.SessionID) {
	if o.Policy == nil {
		return
	}
	for _, sid := range dropped {
		switch o.Policy.OnBackPressure(sid) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicking slow subscriber")
			o.Registry.Cancel(sid)
		case app.DropEvent, app.NoAction:
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("dropped update for slow subscriber")
		}
	}
}
