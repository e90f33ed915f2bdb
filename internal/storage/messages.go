package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dkeye/chatsync/internal/domain"
)

// CreateMessage persists a direct message. A zero sentAt means now.
func (s *Store) CreateMessage(ctx context.Context, text, author string, sentAt time.Time) (domain.Message, error) {
	msg := s.newMessage(text, author, sentAt)
	err := s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, messageKey(msg.ID), msg)
	})
	if err != nil {
		return domain.Message{}, persistErr("create message", err)
	}
	return msg, nil
}

// MessagesByID returns messages in the order of ids. A referenced message
// that is missing is a persistence failure.
func (s *Store) MessagesByID(ctx context.Context, ids []domain.MessageID) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(ids))
	err := s.view(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			var m domain.Message
			if err := getJSON(txn, messageKey(id), &m); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("message %s missing", id)
				}
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, persistErr("get messages", err)
	}
	return out, nil
}

func (s *Store) newMessage(text, author string, sentAt time.Time) domain.Message {
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	return domain.Message{
		ID:             domain.NewMessageID(),
		Text:           text,
		AuthorUsername: author,
		SentAt:         sentAt.UTC(),
		Kind:           domain.KindDirect,
	}
}
