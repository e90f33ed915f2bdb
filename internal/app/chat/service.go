//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=../../mocks/mock_chat.go -package=mocks
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/core"
	"github.com/dkeye/chatsync/internal/domain"
)

// Store is the persistence gateway the coordinator writes through.
type Store interface {
	CreateChat(ctx context.Context, usernames []string, initial []domain.Message) (domain.Chat, error)
	CreateMessage(ctx context.Context, text, author string, sentAt time.Time) (domain.Message, error)
	AppendMessage(ctx context.Context, chatID domain.ChatID, messageID domain.MessageID) (domain.Chat, error)
	GetChat(ctx context.Context, chatID domain.ChatID) (domain.Chat, error)
	GetChatsForParticipant(ctx context.Context, username string) []domain.Chat
	AddParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (domain.Chat, error)

	CreateUser(ctx context.Context, username string) (domain.User, error)
	UserByName(ctx context.Context, username string) (domain.User, error)
	ResolveUser(ctx context.Context, ref string) (domain.User, error)
	UsersByID(ctx context.Context, ids []domain.UserID) ([]domain.User, error)
	MessagesByID(ctx context.Context, ids []domain.MessageID) ([]domain.Message, error)
}

// Publisher fans chat updates out to realtime subscribers.
type Publisher interface {
	Publish(scope core.Scope, evt domain.ChatUpdate)
}

// Service coordinates multi-step chat writes: validate, persist, hydrate,
// publish.
type Service struct {
	store     Store
	publisher Publisher
}

func NewService(store Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// CreateChat persists a chat and announces it to every connection, since
// nobody can have joined its room yet.
func (s *Service) CreateChat(ctx context.Context, req CreateChatRequest) (domain.PopulatedChat, error) {
	req.normalize()
	initial, err := req.validate()
	if err != nil {
		return domain.PopulatedChat{}, err
	}
	chat, err := s.store.CreateChat(ctx, req.Participants, initial)
	if err != nil {
		log.Warn().Err(err).Str("module", "chat").Strs("participants", req.Participants).Msg("create chat failed")
		return domain.PopulatedChat{}, err
	}
	populated, err := s.hydrate(ctx, chat)
	if err != nil {
		return domain.PopulatedChat{}, err
	}
	s.publisher.Publish(core.ScopeAll, domain.ChatUpdate{Type: domain.ChatCreated, Chat: populated})
	return populated, nil
}

// SubmitMessage persists a message, appends it to the chat and publishes
// the hydrated chat to the chat's room. If the append fails the message
// stays persisted but unreferenced.
func (s *Service) SubmitMessage(ctx context.Context, chatID domain.ChatID, in MessageInput) (domain.PopulatedChat, error) {
	sentAt, err := in.validate()
	if err != nil {
		return domain.PopulatedChat{}, err
	}
	msg, err := s.store.CreateMessage(ctx, in.Text, in.Author, sentAt)
	if err != nil {
		return domain.PopulatedChat{}, err
	}
	chat, err := s.store.AppendMessage(ctx, chatID, msg.ID)
	if err != nil {
		log.Warn().Err(err).Str("module", "chat").Str("chat", string(chatID)).
			Str("orphan_message", string(msg.ID)).Msg("append failed, message left unattached")
		return domain.PopulatedChat{}, err
	}
	populated, err := s.hydrate(ctx, chat)
	if err != nil {
		return domain.PopulatedChat{}, err
	}
	s.publisher.Publish(core.RoomScope(chatID), domain.ChatUpdate{Type: domain.ChatNewMessage, Chat: populated})
	return populated, nil
}

func (s *Service) GetChat(ctx context.Context, chatID domain.ChatID) (domain.PopulatedChat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return domain.PopulatedChat{}, err
	}
	return s.hydrate(ctx, chat)
}

// ChatsForUser returns the hydrated chats of username. A storage failure
// while listing yields an empty result, not an error.
func (s *Service) ChatsForUser(ctx context.Context, username string) ([]domain.PopulatedChat, error) {
	chats := s.store.GetChatsForParticipant(ctx, username)
	out := make([]domain.PopulatedChat, 0, len(chats))
	for _, c := range chats {
		p, err := s.hydrate(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// AddParticipant adds a user, named by id or username, to the chat.
func (s *Service) AddParticipant(ctx context.Context, chatID domain.ChatID, req AddParticipantRequest) (domain.PopulatedChat, error) {
	if err := req.validate(); err != nil {
		return domain.PopulatedChat{}, err
	}
	user, err := s.store.ResolveUser(ctx, req.Participant)
	if err != nil {
		return domain.PopulatedChat{}, err
	}
	chat, err := s.store.AddParticipant(ctx, chatID, user.ID)
	if err != nil {
		return domain.PopulatedChat{}, err
	}
	return s.hydrate(ctx, chat)
}

func (s *Service) RegisterUser(ctx context.Context, username string) (domain.User, error) {
	u, err := s.store.CreateUser(ctx, username)
	if errors.Is(err, domain.ErrUsernameEmpty) || errors.Is(err, domain.ErrUsernameTooLong) {
		return domain.User{}, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err.Error())
	}
	return u, err
}

func (s *Service) LookupUser(ctx context.Context, username string) (domain.User, error) {
	return s.store.UserByName(ctx, username)
}
