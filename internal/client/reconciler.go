package client

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/chatsync/internal/domain"
)

// API is the request/response side of the server.
type API interface {
	ChatsForUser(ctx context.Context, username string) ([]domain.PopulatedChat, error)
	GetChat(ctx context.Context, chatID domain.ChatID) (domain.PopulatedChat, error)
	SendMessage(ctx context.Context, chatID domain.ChatID, text, author string) (domain.PopulatedChat, error)
	CreateChat(ctx context.Context, participants []string) (domain.PopulatedChat, error)
}

// Channel is the realtime side: room subscriptions.
type Channel interface {
	Join(chatID domain.ChatID) error
	Leave(chatID domain.ChatID) error
}

// Reconciler owns a State and applies user actions and pushed updates to it.
// Requests to the server are made without holding the lock, so responses and
// updates may interleave in any order.
type Reconciler struct {
	api API
	ch  Channel

	mu        sync.Mutex
	state     State
	joined    domain.ChatID
	selectSeq uint64
}

func NewReconciler(me string, api API, ch Channel) *Reconciler {
	return &Reconciler{
		api:   api,
		ch:    ch,
		state: State{Me: me, Chats: []domain.PopulatedChat{}},
	}
}

// State returns a snapshot of the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Joined reports the room this client is subscribed to, if any.
func (r *Reconciler) Joined() domain.ChatID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined
}

func (r *Reconciler) SetDraft(text string) {
	r.mu.Lock()
	r.state.Draft = text
	r.mu.Unlock()
}

func (r *Reconciler) OpenCreatePanel(target string) {
	r.mu.Lock()
	r.state.CreateOpen = true
	r.state.CreateTarget = target
	r.mu.Unlock()
}

// Load replaces the chat list with the server's list for the current user.
func (r *Reconciler) Load(ctx context.Context) error {
	r.mu.Lock()
	me := r.state.Me
	r.mu.Unlock()

	chats, err := r.api.ChatsForUser(ctx, me)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.state.Chats = chats
	r.mu.Unlock()
	return nil
}

// SwitchUser changes the current user: the previous user's selection is
// dropped, its room left, and the chat list reloaded for me.
func (r *Reconciler) SwitchUser(ctx context.Context, me string) error {
	r.mu.Lock()
	r.selectSeq++
	r.state.Me = me
	r.state.Selected = nil
	r.state.Chats = []domain.PopulatedChat{}
	r.state.Draft = ""
	err := r.leaveLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Load(ctx)
}

// SelectChat fetches chatID, makes it the selected chat and moves the room
// subscription to it. An empty id is a no-op. On failure the previous
// selection is kept. A response arriving after a later selection started
// is dropped.
func (r *Reconciler) SelectChat(ctx context.Context, chatID domain.ChatID) error {
	if chatID == "" {
		return nil
	}
	r.mu.Lock()
	r.selectSeq++
	seq := r.selectSeq
	r.mu.Unlock()

	chat, err := r.api.GetChat(ctx, chatID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.selectSeq {
		log.Debug().Str("module", "client").Str("chat", string(chatID)).Msg("stale selection dropped")
		return nil
	}
	r.state.Selected = &chat
	return r.switchRoomLocked(chatID)
}

// Deselect clears the selection and leaves its room.
func (r *Reconciler) Deselect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectSeq++
	r.state.Selected = nil
	return r.leaveLocked()
}

// SendMessage submits the draft to the selected chat. Without a selection or
// with a blank draft it does nothing. On success the returned messages are
// appended to the selected chat and the draft is cleared.
func (r *Reconciler) SendMessage(ctx context.Context) error {
	r.mu.Lock()
	sel, text, me := r.state.Selected, r.state.Draft, r.state.Me
	r.mu.Unlock()
	if sel == nil || strings.TrimSpace(text) == "" {
		return nil
	}

	chat, err := r.api.SendMessage(ctx, sel.ID, text, me)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur := r.state.Selected; cur != nil && cur.ID == chat.ID {
		next := *cur
		next.Messages = appendMissing(cur.Messages, chat.Messages)
		next.UpdatedAt = chat.UpdatedAt
		r.state.Selected = &next
	}
	r.state.Draft = ""
	return nil
}

// CreateChat starts a chat between the current user and the create target.
// On success the chat is listed, selected and joined, and the create panel
// is closed.
func (r *Reconciler) CreateChat(ctx context.Context) error {
	r.mu.Lock()
	target, me := strings.TrimSpace(r.state.CreateTarget), r.state.Me
	r.mu.Unlock()
	if target == "" {
		return nil
	}

	chat, err := r.api.CreateChat(ctx, []string{me, target})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectSeq++
	r.state.Chats = upsertChat(r.state.Chats, chat)
	r.state.Selected = &chat
	r.state.CreateOpen = false
	r.state.CreateTarget = ""
	return r.switchRoomLocked(chat.ID)
}

// HandleUpdate merges one pushed update.
func (r *Reconciler) HandleUpdate(u domain.ChatUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := Apply(r.state, u)
	if err != nil {
		return err
	}
	r.state = next
	return nil
}

// Run consumes updates until ctx is done, the channel closes, or an update
// fails with ErrProtocol.
func (r *Reconciler) Run(ctx context.Context, updates <-chan domain.ChatUpdate) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := r.HandleUpdate(u); err != nil {
				log.Error().Err(err).Str("module", "client").Msg("update rejected")
				return err
			}
		}
	}
}

// Close leaves the joined room.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked()
}

// switchRoomLocked leaves the current room before joining chatID.
func (r *Reconciler) switchRoomLocked(chatID domain.ChatID) error {
	if r.joined == chatID {
		return nil
	}
	if err := r.leaveLocked(); err != nil {
		return err
	}
	if err := r.ch.Join(chatID); err != nil {
		return err
	}
	r.joined = chatID
	return nil
}

func (r *Reconciler) leaveLocked() error {
	if r.joined == "" {
		return nil
	}
	prev := r.joined
	r.joined = ""
	return r.ch.Leave(prev)
}

func appendMissing(have, incoming []domain.PopulatedMessage) []domain.PopulatedMessage {
	seen := lo.SliceToMap(have, func(m domain.PopulatedMessage) (domain.MessageID, struct{}) {
		return m.ID, struct{}{}
	})
	out := append([]domain.PopulatedMessage(nil), have...)
	for _, m := range incoming {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}
