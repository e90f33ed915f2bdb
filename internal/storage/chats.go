package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/chatsync/internal/domain"
)

// CreateChat resolves every username and persists the initial messages, the
// chat and its participant index in one transaction. If any username does
// not resolve nothing is written and ErrUsersNotFound is returned.
func (s *Store) CreateChat(ctx context.Context, usernames []string, initial []domain.Message) (domain.Chat, error) {
	var chat domain.Chat
	err := s.update(ctx, func(txn *badger.Txn) error {
		var missing []string
		ids := make([]domain.UserID, 0, len(usernames))
		for _, name := range lo.Uniq(usernames) {
			u, err := userByName(txn, name)
			if errors.Is(err, domain.ErrUserNotFound) {
				missing = append(missing, name)
				continue
			}
			if err != nil {
				return err
			}
			ids = append(ids, u.ID)
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s", domain.ErrUsersNotFound, strings.Join(missing, ", "))
		}

		msgIDs := make([]domain.MessageID, 0, len(initial))
		for _, in := range initial {
			msg := s.newMessage(in.Text, in.AuthorUsername, in.SentAt)
			if err := setJSON(txn, messageKey(msg.ID), msg); err != nil {
				return err
			}
			msgIDs = append(msgIDs, msg.ID)
		}

		now := s.now().UTC()
		chat = domain.Chat{
			ID:           domain.NewChatID(),
			Participants: lo.Uniq(ids),
			Messages:     msgIDs,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := setJSON(txn, chatKey(chat.ID), chat); err != nil {
			return err
		}
		for _, uid := range chat.Participants {
			if err := txn.Set([]byte(memberKey(uid, chat.ID)), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Chat{}, persistErr("create chat", err)
	}
	log.Info().Str("module", "storage").Str("chat", string(chat.ID)).
		Int("participants", len(chat.Participants)).Int("messages", len(chat.Messages)).Msg("chat created")
	return chat, nil
}

// AppendMessage pushes messageID onto the chat's message list. The push is
// a conditional commit on the chat document: concurrent appends to the same
// chat all land exactly once, in commit order.
func (s *Store) AppendMessage(ctx context.Context, chatID domain.ChatID, messageID domain.MessageID) (domain.Chat, error) {
	var chat domain.Chat
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		if chat, err = chatByID(txn, chatID); err != nil {
			return err
		}
		chat.Messages = append(chat.Messages, messageID)
		chat.Touch(s.now().UTC())
		return setJSON(txn, chatKey(chat.ID), chat)
	})
	if err != nil {
		return domain.Chat{}, persistErr("append message", err)
	}
	return chat, nil
}

func (s *Store) GetChat(ctx context.Context, chatID domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		chat, err = chatByID(txn, chatID)
		return err
	})
	if err != nil {
		return domain.Chat{}, persistErr("get chat", err)
	}
	return chat, nil
}

// GetChatsForParticipant lists the chats a user takes part in, oldest
// first. Any failure, including an unknown username, yields an empty
// slice: callers cannot tell "no chats" from "lookup failed".
func (s *Store) GetChatsForParticipant(ctx context.Context, username string) []domain.Chat {
	chats := []domain.Chat{}
	err := s.view(ctx, func(txn *badger.Txn) error {
		u, err := userByName(txn, username)
		if err != nil {
			return err
		}
		for _, id := range memberChats(txn, u.ID) {
			chat, err := chatByID(txn, id)
			if err != nil {
				return err
			}
			chats = append(chats, chat)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "storage").Str("username", username).Msg("chats for participant lookup failed")
		return []domain.Chat{}
	}
	return chats
}

// AddParticipant adds userID to the chat. Adding an existing participant is
// a successful no-op.
func (s *Store) AddParticipant(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (domain.Chat, error) {
	var chat domain.Chat
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		if chat, err = chatByID(txn, chatID); err != nil {
			return err
		}
		if chat.HasParticipant(userID) {
			return nil
		}
		chat.Participants = append(chat.Participants, userID)
		chat.Touch(s.now().UTC())
		if err := setJSON(txn, chatKey(chat.ID), chat); err != nil {
			return err
		}
		return txn.Set([]byte(memberKey(userID, chat.ID)), nil)
	})
	if err != nil {
		return domain.Chat{}, persistErr("add participant", err)
	}
	return chat, nil
}

func memberChats(txn *badger.Txn, uid domain.UserID) []domain.ChatID {
	prefix := []byte(memberPrefix(uid))
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []domain.ChatID
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, domain.ChatID(it.Item().Key()[len(prefix):]))
	}
	return ids
}

func chatByID(txn *badger.Txn, id domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	if id == "" {
		return chat, domain.ErrChatNotFound
	}
	err := getJSON(txn, chatKey(id), &chat)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat, domain.ErrChatNotFound
	}
	return chat, err
}
