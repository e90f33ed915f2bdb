package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/chatsync/internal/domain"
)

type fakeAPI struct {
	mu      sync.Mutex
	chats   map[domain.ChatID]domain.PopulatedChat
	gate    map[domain.ChatID]chan struct{}
	failGet bool
	sends   int
	created [][]string
}

func newFakeAPI(chats ...domain.PopulatedChat) *fakeAPI {
	f := &fakeAPI{chats: map[domain.ChatID]domain.PopulatedChat{}, gate: map[domain.ChatID]chan struct{}{}}
	for _, c := range chats {
		f.chats[c.ID] = c
	}
	return f
}

func (f *fakeAPI) ChatsForUser(_ context.Context, _ string) ([]domain.PopulatedChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.PopulatedChat{}
	for _, c := range f.chats {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeAPI) GetChat(_ context.Context, id domain.ChatID) (domain.PopulatedChat, error) {
	f.mu.Lock()
	gate := f.gate[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok || f.failGet {
		return domain.PopulatedChat{}, &APIError{Status: 404, Message: "chat not found"}
	}
	return c, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, id domain.ChatID, text, author string) (domain.PopulatedChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	c, ok := f.chats[id]
	if !ok {
		return domain.PopulatedChat{}, errors.New("boom")
	}
	c.Messages = append(c.Messages, domain.PopulatedMessage{Message: domain.Message{
		ID: domain.NewMessageID(), Text: text, AuthorUsername: author,
	}})
	f.chats[id] = c
	return c, nil
}

func (f *fakeAPI) CreateChat(_ context.Context, participants []string) (domain.PopulatedChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, participants)
	c := domain.PopulatedChat{ID: domain.NewChatID(), Messages: []domain.PopulatedMessage{}}
	f.chats[c.ID] = c
	return c, nil
}

type fakeChannel struct {
	mu    sync.Mutex
	calls []string
}

func (c *fakeChannel) Join(id domain.ChatID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "join:"+string(id))
	return nil
}

func (c *fakeChannel) Leave(id domain.ChatID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "leave:"+string(id))
	return nil
}

func (c *fakeChannel) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func TestReconciler_SelectEmptyIsNoop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	api := newFakeAPI(chatWith("c1"))
	ch := &fakeChannel{}
	r := NewReconciler("alice", api, ch)

	req.NoError(r.SelectChat(ctx, "c1"))
	before := r.State()

	req.NoError(r.SelectChat(ctx, ""))
	req.Equal(before, r.State())
	req.Equal(domain.ChatID("c1"), r.Joined())
	req.Equal([]string{"join:c1"}, ch.Calls())
}

func TestReconciler_SelectLeavesPreviousRoomFirst(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ch := &fakeChannel{}
	r := NewReconciler("alice", newFakeAPI(chatWith("c1"), chatWith("c2")), ch)

	req.NoError(r.SelectChat(ctx, "c1"))
	req.NoError(r.SelectChat(ctx, "c2"))
	req.NoError(r.SelectChat(ctx, "c2"))

	req.Equal([]string{"join:c1", "leave:c1", "join:c2"}, ch.Calls())
	req.Equal(domain.ChatID("c2"), r.State().Selected.ID)
}

func TestReconciler_SelectFailureKeepsSelection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ch := &fakeChannel{}
	r := NewReconciler("alice", newFakeAPI(chatWith("c1")), ch)

	req.NoError(r.SelectChat(ctx, "c1"))
	var apiErr *APIError
	req.ErrorAs(r.SelectChat(ctx, "missing"), &apiErr)
	req.Equal(404, apiErr.Status)

	req.Equal(domain.ChatID("c1"), r.State().Selected.ID)
	req.Equal(domain.ChatID("c1"), r.Joined())
}

func TestReconciler_SupersededSelectionDropped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	api := newFakeAPI(chatWith("slow"), chatWith("fast"))
	gate := make(chan struct{})
	api.gate["slow"] = gate
	ch := &fakeChannel{}
	r := NewReconciler("alice", api, ch)

	done := make(chan error, 1)
	go func() { done <- r.SelectChat(ctx, "slow") }()

	// wait until the slow request has taken its sequence number
	req.Eventually(func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.selectSeq == 1
	}, time.Second, time.Millisecond)

	req.NoError(r.SelectChat(ctx, "fast"))
	close(gate)
	req.NoError(<-done)

	req.Equal(domain.ChatID("fast"), r.State().Selected.ID)
	req.Equal([]string{"join:fast"}, ch.Calls())
}

func TestReconciler_SendMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	api := newFakeAPI(chatWith("c1"))
	r := NewReconciler("alice", api, &fakeChannel{})

	// nothing selected
	r.SetDraft("hi")
	req.NoError(r.SendMessage(ctx))
	req.Zero(api.sends)

	req.NoError(r.SelectChat(ctx, "c1"))
	r.SetDraft("   ")
	req.NoError(r.SendMessage(ctx))
	req.Zero(api.sends)

	r.SetDraft("hi")
	req.NoError(r.SendMessage(ctx))
	s := r.State()
	req.Empty(s.Draft)
	req.Len(s.Selected.Messages, 1)
	req.Equal("hi", s.Selected.Messages[0].Text)
	req.Equal("alice", s.Selected.Messages[0].AuthorUsername)

	// the pushed update for the same message does not duplicate it
	pushed, err := api.GetChat(ctx, "c1")
	req.NoError(err)
	req.NoError(r.HandleUpdate(domain.ChatUpdate{Type: domain.ChatNewMessage, Chat: pushed}))
	req.Len(r.State().Selected.Messages, 1)
}

func TestReconciler_SendMessageFailureLeavesState(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	api := newFakeAPI(chatWith("c1"))
	r := NewReconciler("alice", api, &fakeChannel{})
	req.NoError(r.SelectChat(ctx, "c1"))

	api.mu.Lock()
	delete(api.chats, "c1")
	api.mu.Unlock()

	r.SetDraft("hi")
	before := r.State()
	req.Error(r.SendMessage(ctx))
	req.Equal(before, r.State())
}

func TestReconciler_CreateChat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	api := newFakeAPI()
	ch := &fakeChannel{}
	r := NewReconciler("alice", api, ch)

	req.NoError(r.CreateChat(ctx))
	req.Empty(api.created)

	r.OpenCreatePanel("bob")
	req.NoError(r.CreateChat(ctx))
	req.Equal([][]string{{"alice", "bob"}}, api.created)

	s := r.State()
	req.False(s.CreateOpen)
	req.Empty(s.CreateTarget)
	req.Len(s.Chats, 1)
	req.Equal(s.Chats[0].ID, s.Selected.ID)
	req.Equal(s.Selected.ID, r.Joined())

	// the broadcast of the same creation does not list it twice
	req.NoError(r.HandleUpdate(domain.ChatUpdate{Type: domain.ChatCreated, Chat: s.Chats[0]}))
	req.Len(r.State().Chats, 1)
}

func TestReconciler_RunStopsOnProtocolError(t *testing.T) {
	req := require.New(t)
	r := NewReconciler("alice", newFakeAPI(), &fakeChannel{})

	updates := make(chan domain.ChatUpdate, 2)
	updates <- domain.ChatUpdate{Type: domain.ChatCreated, Chat: chatWith("c1")}
	updates <- domain.ChatUpdate{Type: "deleted", Chat: chatWith("c1")}

	err := r.Run(context.Background(), updates)
	req.ErrorIs(err, ErrProtocol)
	req.Len(r.State().Chats, 1)
}

func TestReconciler_LoadAndClose(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ch := &fakeChannel{}
	r := NewReconciler("alice", newFakeAPI(chatWith("c1"), chatWith("c2")), ch)

	req.NoError(r.Load(ctx))
	req.Len(r.State().Chats, 2)

	req.NoError(r.SelectChat(ctx, "c1"))
	req.NoError(r.Close())
	req.Empty(r.Joined())
	req.Equal([]string{"join:c1", "leave:c1"}, ch.Calls())

	// closing twice does not leave twice
	req.NoError(r.Close())
	req.Len(ch.Calls(), 2)
}

func TestReconciler_DeselectLeavesRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ch := &fakeChannel{}
	r := NewReconciler("alice", newFakeAPI(chatWith("c1")), ch)

	req.NoError(r.SelectChat(ctx, "c1"))
	req.NoError(r.Deselect())

	req.Nil(r.State().Selected)
	req.Empty(r.Joined())
	req.Equal([]string{"join:c1", "leave:c1"}, ch.Calls())

	// pushes for the old chat no longer land anywhere
	req.NoError(r.HandleUpdate(domain.ChatUpdate{Type: domain.ChatNewMessage, Chat: chatWith("c1", "late")}))
	req.Nil(r.State().Selected)
}

func TestReconciler_SwitchUserLeavesPreviousUsersRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ch := &fakeChannel{}
	r := NewReconciler("alice", newFakeAPI(chatWith("chat-a")), ch)

	req.NoError(r.SelectChat(ctx, "chat-a"))
	r.SetDraft("half typed")
	req.NoError(r.SwitchUser(ctx, "carol"))

	s := r.State()
	req.Equal("carol", s.Me)
	req.Nil(s.Selected)
	req.Empty(s.Draft)
	req.Empty(r.Joined())
	req.Equal([]string{"join:chat-a", "leave:chat-a"}, ch.Calls())

	req.NoError(r.HandleUpdate(domain.ChatUpdate{Type: domain.ChatNewMessage, Chat: chatWith("chat-a", "for alice")}))
	req.Nil(r.State().Selected)
}

func TestReconciler_SwitchUserDropsInFlightSelection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	api := newFakeAPI(chatWith("slow"))
	gate := make(chan struct{})
	api.gate["slow"] = gate
	ch := &fakeChannel{}
	r := NewReconciler("alice", api, ch)

	done := make(chan error, 1)
	go func() { done <- r.SelectChat(ctx, "slow") }()
	req.Eventually(func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.selectSeq == 1
	}, time.Second, time.Millisecond)

	req.NoError(r.SwitchUser(ctx, "carol"))
	close(gate)
	req.NoError(<-done)

	req.Nil(r.State().Selected)
	req.Empty(ch.Calls())
}

func TestReconciler_SendMessageAdvancesUpdatedAt(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	api := newFakeAPI(chatWith("c1"))
	r := NewReconciler("alice", api, &fakeChannel{})
	req.NoError(r.SelectChat(ctx, "c1"))

	bumped := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	api.mu.Lock()
	c := api.chats["c1"]
	c.UpdatedAt = bumped
	api.chats["c1"] = c
	api.mu.Unlock()

	r.SetDraft("hi")
	req.NoError(r.SendMessage(ctx))
	req.Equal(bumped, r.State().Selected.UpdatedAt)
}
