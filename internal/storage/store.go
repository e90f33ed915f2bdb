// Package storage is the persistence gateway: chats, messages and users kept
// as JSON documents in BadgerDB.
//
// Key layout:
//
//	user:<username>           -> domain.User
//	userid:<userID>           -> username
//	msg:<messageID>           -> domain.Message
//	chat:<chatID>             -> domain.Chat
//	member:<userID>:<chatID>  -> (empty) participant index
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/domain"
)

type Options struct {
	Path     string
	InMemory bool
}

type Store struct {
	db  *badger.DB
	now func() time.Time
}

func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(badgerLogger{}).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	log.Info().Str("module", "storage").Str("path", opts.Path).Bool("in_memory", opts.InMemory).Msg("store opened")
	return New(db), nil
}

// New wraps an already opened database.
func New(db *badger.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

var errClosed = errors.New("store closed")

// Ping reports whether the database is still open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errClosed
	}
	return nil
}

// update runs fn in a read-write transaction. Badger commits are
// conditional on nothing read by fn having changed since the transaction
// started; on conflict fn is re-run against the newer version, so
// concurrent writers to one document never overwrite each other.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		log.Debug().Str("module", "storage").Int("attempt", attempt).Msg("commit conflict, re-running transaction")
	}
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), b)
}

// persistErr tags an unexpected storage error so callers can map it with
// errors.Is(err, domain.ErrPersistence). Domain errors pass through.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrChatNotFound, domain.ErrUsersNotFound, domain.ErrUserNotFound,
		domain.ErrUserExists, context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func userKey(username string) string        { return "user:" + username }
func userIDKey(id domain.UserID) string     { return "userid:" + string(id) }
func messageKey(id domain.MessageID) string { return "msg:" + string(id) }
func chatKey(id domain.ChatID) string       { return "chat:" + string(id) }
func memberPrefix(id domain.UserID) string  { return "member:" + string(id) + ":" }
func memberKey(u domain.UserID, c domain.ChatID) string {
	return memberPrefix(u) + string(c)
}

// badgerLogger routes badger's own logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, args ...any) {
	log.Error().Str("module", "badger").Msg(strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (badgerLogger) Warningf(f string, args ...any) {
	log.Warn().Str("module", "badger").Msg(strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (badgerLogger) Infof(f string, args ...any) {
	log.Info().Str("module", "badger").Msg(strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (badgerLogger) Debugf(f string, args ...any) {
	log.Debug().Str("module", "badger").Msg(strings.TrimSpace(fmt.Sprintf(f, args...)))
}
