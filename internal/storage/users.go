package storage

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/domain"
)

// CreateUser registers a new username. Usernames are unique.
func (s *Store) CreateUser(ctx context.Context, username string) (domain.User, error) {
	u, err := domain.NewUser(username)
	if err != nil {
		return domain.User{}, err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(userKey(u.Username))); err == nil {
			return domain.ErrUserExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, userKey(u.Username), u); err != nil {
			return err
		}
		return txn.Set([]byte(userIDKey(u.ID)), []byte(u.Username))
	})
	if err != nil {
		return domain.User{}, persistErr("create user", err)
	}
	log.Info().Str("module", "storage").Str("user", string(u.ID)).Str("username", u.Username).Msg("user created")
	return *u, nil
}

func (s *Store) UserByName(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		u, err = userByName(txn, username)
		return err
	})
	return u, persistErr("get user", err)
}

// ResolveUser accepts either a user id or a username.
func (s *Store) ResolveUser(ctx context.Context, ref string) (domain.User, error) {
	var u domain.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		u, err = userByID(txn, domain.UserID(ref))
		if errors.Is(err, domain.ErrUserNotFound) {
			u, err = userByName(txn, ref)
		}
		return err
	})
	return u, persistErr("resolve user", err)
}

// UsersByID returns users in the order of ids.
func (s *Store) UsersByID(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	out := make([]domain.User, 0, len(ids))
	err := s.view(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			u, err := userByID(txn, id)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return nil
	})
	if err != nil {
		return nil, persistErr("get users", err)
	}
	return out, nil
}

func userByName(txn *badger.Txn, username string) (domain.User, error) {
	var u domain.User
	err := getJSON(txn, userKey(username), &u)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return u, domain.ErrUserNotFound
	}
	return u, err
}

func userByID(txn *badger.Txn, id domain.UserID) (domain.User, error) {
	item, err := txn.Get([]byte(userIDKey(id)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	name, err := item.ValueCopy(nil)
	if err != nil {
		return domain.User{}, err
	}
	return userByName(txn, string(name))
}
