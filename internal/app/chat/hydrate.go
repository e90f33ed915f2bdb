package chat

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/dkeye/chatsync/internal/domain"
)

// hydrate resolves participant ids and message ids into full records, with
// each message's author resolved to a user.
func (s *Service) hydrate(ctx context.Context, chat domain.Chat) (domain.PopulatedChat, error) {
	users, err := s.store.UsersByID(ctx, chat.Participants)
	if err != nil {
		return domain.PopulatedChat{}, err
	}
	msgs, err := s.store.MessagesByID(ctx, chat.Messages)
	if err != nil {
		return domain.PopulatedChat{}, err
	}

	authors := lo.KeyBy(users, func(u domain.User) string { return u.Username })
	for _, name := range lo.Uniq(lo.Map(msgs, func(m domain.Message, _ int) string { return m.AuthorUsername })) {
		if _, ok := authors[name]; ok {
			continue
		}
		u, err := s.store.UserByName(ctx, name)
		if errors.Is(err, domain.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return domain.PopulatedChat{}, err
		}
		authors[name] = u
	}

	return domain.PopulatedChat{
		ID:           chat.ID,
		Participants: users,
		Messages: lo.Map(msgs, func(m domain.Message, _ int) domain.PopulatedMessage {
			pm := domain.PopulatedMessage{Message: m}
			if u, ok := authors[m.AuthorUsername]; ok {
				pm.Author = &u
			}
			return pm
		}),
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}, nil
}
