package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/chatsync/internal/app"
	"github.com/dkeye/chatsync/internal/core"
	"github.com/dkeye/chatsync/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) updates(t *testing.T) []domain.ChatUpdate {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatUpdate, 0, len(c.frames))
	for _, f := range c.frames {
		var env domain.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		require.Equal(t, domain.FrameChatUpdate, env.Type)
		require.NotNil(t, env.Update)
		out = append(out, *env.Update)
	}
	return out
}

func newTestOrchestrator(policy app.Policy) *Orchestrator {
	return New(app.NewRegistry(), app.NewRoomManager(), policy, nil)
}

func connect(o *Orchestrator, sid core.SessionID) *fakeConn {
	c := &fakeConn{}
	o.Connect(sid, c, func() {})
	return c
}

func sessionID(i int) core.SessionID {
	return core.SessionID(fmt.Sprintf("sid-%d", i))
}

func update(typ domain.ChatUpdateType, id domain.ChatID) domain.ChatUpdate {
	return domain.ChatUpdate{Type: typ, Chat: domain.PopulatedChat{ID: id}}
}

func TestOrchestrator_Publish_RoomScoping(t *testing.T) {
	req := require.New(t)
	o := newTestOrchestrator(nil)
	a := connect(o, "a")
	b := connect(o, "b")

	req.True(o.Join("a", "chat-A"))
	req.True(o.Join("b", "chat-B"))

	o.Publish(core.RoomScope("chat-B"), update(domain.ChatNewMessage, "chat-B"))

	req.Empty(a.updates(t))
	got := b.updates(t)
	req.Len(got, 1)
	req.Equal(domain.ChatID("chat-B"), got[0].Chat.ID)
}

func TestOrchestrator_Publish_AllReachesUnsubscribed(t *testing.T) {
	req := require.New(t)
	o := newTestOrchestrator(nil)
	a := connect(o, "a")
	b := connect(o, "b")
	req.True(o.Join("a", "chat-A"))

	o.Publish(core.ScopeAll, update(domain.ChatCreated, "chat-new"))

	req.Len(a.updates(t), 1)
	req.Len(b.updates(t), 1)
}

func TestOrchestrator_Publish_RejectsUnknownType(t *testing.T) {
	o := newTestOrchestrator(nil)
	a := connect(o, "a")
	o.Publish(core.ScopeAll, update("deleted", "x"))
	require.Empty(t, a.updates(t))
}

func TestOrchestrator_Join_IdempotentAndSingleRoom(t *testing.T) {
	req := require.New(t)
	o := newTestOrchestrator(nil)
	a := connect(o, "a")

	req.True(o.Join("a", "chat-A"))
	req.True(o.Join("a", "chat-A"))
	room, ok := o.Rooms.Get("chat-A")
	req.True(ok)
	req.Equal(1, room.MemberCount())

	// Switching rooms leaves the old one
	req.True(o.Join("a", "chat-B"))
	_, ok = o.Rooms.Get("chat-A")
	req.False(ok, "empty room should be stopped")
	current, ok := o.RoomOf("a")
	req.True(ok)
	req.Equal(domain.ChatID("chat-B"), current)

	o.Publish(core.RoomScope("chat-A"), update(domain.ChatNewMessage, "chat-A"))
	req.Empty(a.updates(t))

	req.False(o.Join("a", ""))
	req.False(o.Join("unknown", "chat-A"))
}

func TestOrchestrator_Leave(t *testing.T) {
	req := require.New(t)
	o := newTestOrchestrator(nil)
	a := connect(o, "a")
	req.True(o.Join("a", "chat-A"))

	// Empty or foreign chat ids are ignored
	o.Leave("a", "")
	o.Leave("a", "chat-B")
	current, ok := o.RoomOf("a")
	req.True(ok)
	req.Equal(domain.ChatID("chat-A"), current)

	o.Leave("a", "chat-A")
	_, ok = o.RoomOf("a")
	req.False(ok)

	o.Publish(core.RoomScope("chat-A"), update(domain.ChatNewMessage, "chat-A"))
	req.Empty(a.updates(t))

	// Leaving twice is a no-op
	o.Leave("a", "chat-A")
}

func TestOrchestrator_Disconnect_LeavesRoom(t *testing.T) {
	req := require.New(t)
	o := newTestOrchestrator(nil)
	connect(o, "a")
	b := connect(o, "b")
	req.True(o.Join("a", "chat-A"))
	req.True(o.Join("b", "chat-A"))

	o.Disconnect("a")

	room, ok := o.Rooms.Get("chat-A")
	req.True(ok)
	req.Equal([]core.SessionID{"b"}, room.MembersSnapshot())
	req.Equal(1, o.Registry.Count())

	o.Publish(core.RoomScope("chat-A"), update(domain.ChatNewMessage, "chat-A"))
	req.Len(b.updates(t), 1)

	o.Disconnect("a")
}

func TestOrchestrator_SlowSubscriberIsKicked(t *testing.T) {
	req := require.New(t)
	o := newTestOrchestrator(app.SimplePolicy{Action: app.KickMember})

	slow := &fakeConn{full: true}
	ctx, cancel := context.WithCancel(context.Background())
	o.Connect("slow", slow, cancel)
	req.True(o.Join("slow", "chat-A"))

	o.Publish(core.RoomScope("chat-A"), update(domain.ChatNewMessage, "chat-A"))

	select {
	case <-ctx.Done():
	default:
		req.Fail("slow subscriber session was not canceled")
	}
}

func TestOrchestrator_ConcurrentMembership(t *testing.T) {
	req := require.New(t)
	o := newTestOrchestrator(nil)

	const n = 50
	for i := range n {
		connect(o, sessionID(i))
	}
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sid := sessionID(i)
			o.Join(sid, "chat-X")
			o.Publish(core.RoomScope("chat-X"), update(domain.ChatNewMessage, "chat-X"))
			if i%2 == 0 {
				o.Leave(sid, "chat-X")
			}
		}()
	}
	wg.Wait()

	room, ok := o.Rooms.Get("chat-X")
	req.True(ok)
	req.Equal(n/2, room.MemberCount())
}

func TestOrchestrator_ListRoomsAndMembers(t *testing.T) {
	req := require.New(t)
	o := newTestOrchestrator(nil)
	connect(o, "a")
	connect(o, "b")
	connect(o, "c")

	req.True(o.Join("a", "chat-A"))
	req.True(o.Join("b", "chat-A"))
	req.True(o.Join("c", "chat-C"))

	rooms := o.ListRooms()
	req.ElementsMatch([]core.RoomInfo{
		{ChatID: "chat-A", MemberCount: 2},
		{ChatID: "chat-C", MemberCount: 1},
	}, rooms)

	members, ok := o.Members("chat-A")
	req.True(ok)
	req.ElementsMatch([]core.SessionID{"a", "b"}, members)

	o.Disconnect("c")
	_, ok = o.Members("chat-C")
	req.False(ok)
}
