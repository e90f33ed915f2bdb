// Package client keeps a local view of the user's chats consistent with the
// server, merging REST results and pushed chat updates.
package client

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dkeye/chatsync/internal/domain"
)

// ErrProtocol is returned for a pushed update the client does not understand.
var ErrProtocol = errors.New("protocol error")

// State is the client-side view. Selected is nil when no chat is open.
type State struct {
	Me           string
	Chats        []domain.PopulatedChat
	Selected     *domain.PopulatedChat
	Draft        string
	CreateTarget string
	CreateOpen   bool
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	out := s
	out.Chats = slices.Clone(s.Chats)
	if s.Selected != nil {
		sel := *s.Selected
		sel.Messages = slices.Clone(sel.Messages)
		sel.Participants = slices.Clone(sel.Participants)
		out.Selected = &sel
	}
	return out
}

// Apply merges a pushed update into s and returns the new state. s itself is
// never modified.
//
// created: the chat is added to the list, or replaces an entry with the same
// id. newMessage: the selected chat is replaced only when the ids match.
func Apply(s State, u domain.ChatUpdate) (State, error) {
	switch u.Type {
	case domain.ChatCreated:
		next := s.Clone()
		next.Chats = upsertChat(next.Chats, u.Chat)
		return next, nil
	case domain.ChatNewMessage:
		if s.Selected == nil || s.Selected.ID != u.Chat.ID {
			return s, nil
		}
		next := s.Clone()
		chat := u.Chat
		next.Selected = &chat
		return next, nil
	default:
		return s, fmt.Errorf("%w: unknown update type %q", ErrProtocol, u.Type)
	}
}

func upsertChat(chats []domain.PopulatedChat, c domain.PopulatedChat) []domain.PopulatedChat {
	i := slices.IndexFunc(chats, func(x domain.PopulatedChat) bool { return x.ID == c.ID })
	if i >= 0 {
		chats[i] = c
		return chats
	}
	return append(chats, c)
}
