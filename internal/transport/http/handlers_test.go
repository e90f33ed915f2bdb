package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/chatsync/internal/app/chat"
	"github.com/dkeye/chatsync/internal/core"
	"github.com/dkeye/chatsync/internal/domain"
	"github.com/dkeye/chatsync/internal/storage"
)

type nopPublisher struct{}

func (nopPublisher) Publish(core.Scope, domain.ChatUpdate) {}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := storage.New(db)
	for _, u := range []string{"alice", "bob"} {
		_, err := store.CreateUser(context.Background(), u)
		require.NoError(t, err)
	}

	r := gin.New()
	h := NewChatHandler(chat.NewService(store, nopPublisher{}))
	h.Register(r)
	h.Register(r.Group("/api"))
	r.GET("/healthz", Health(store.Ping))
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandlers_ChatLifecycle(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/chats", gin.H{"participants": []string{"alice", "bob"}})
	req.Equal(http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.PopulatedChat](t, w)
	req.Len(created.Participants, 2)
	req.Empty(created.Messages)

	w = do(t, r, http.MethodPost, fmt.Sprintf("/api/chats/%s/messages", created.ID), gin.H{"msg": "hi", "msgFrom": "alice"})
	req.Equal(http.StatusOK, w.Code, w.Body.String())
	withMsg := decode[domain.PopulatedChat](t, w)
	req.Len(withMsg.Messages, 1)
	req.Equal("hi", withMsg.Messages[0].Text)
	req.Equal("alice", withMsg.Messages[0].Author.Username)

	w = do(t, r, http.MethodGet, "/chats/"+string(created.ID), nil)
	req.Equal(http.StatusOK, w.Code)
	req.Len(decode[domain.PopulatedChat](t, w).Messages, 1)

	w = do(t, r, http.MethodGet, "/chats/user/bob", nil)
	req.Equal(http.StatusOK, w.Code)
	req.Len(decode[[]domain.PopulatedChat](t, w), 1)

	w = do(t, r, http.MethodGet, "/chats/user/nobody", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq("[]", w.Body.String())
}

func TestHandlers_CreateChatAlias(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/createChat", gin.H{
		"participants": []string{"alice", "bob"},
		"messages":     []gin.H{{"msg": "first", "msgFrom": "bob"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, decode[domain.PopulatedChat](t, w).Messages, 1)
}

func TestHandlers_ErrorMapping(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"one participant", http.MethodPost, "/chats", gin.H{"participants": []string{"alice"}}, http.StatusBadRequest},
		{"unknown participant", http.MethodPost, "/chats", gin.H{"participants": []string{"alice", "ghost"}}, http.StatusNotFound},
		{"malformed body", http.MethodPost, "/chats", "nope", http.StatusBadRequest},
		{"missing chat", http.MethodGet, "/chats/does-not-exist", nil, http.StatusNotFound},
		{"blank message", http.MethodPost, "/chats/x/messages", gin.H{"msg": "  ", "msgFrom": "alice"}, http.StatusBadRequest},
		{"message to missing chat", http.MethodPost, "/chats/x/messages", gin.H{"msg": "hi", "msgFrom": "alice"}, http.StatusNotFound},
		{"participant to missing chat", http.MethodPost, "/chats/x/participants", gin.H{"participant": "bob"}, http.StatusNotFound},
		{"unknown participant user", http.MethodPost, "/chats/x/participants", gin.H{"participant": "ghost"}, http.StatusNotFound},
		{"duplicate user", http.MethodPost, "/users", gin.H{"username": "alice"}, http.StatusConflict},
		{"empty username", http.MethodPost, "/users", gin.H{"username": ""}, http.StatusBadRequest},
		{"unknown user", http.MethodGet, "/users/ghost", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			require.NotEmpty(t, decode[map[string]string](t, w)["error"])
		})
	}
}

func TestHandlers_Users(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/users", gin.H{"username": "carol"})
	req.Equal(http.StatusCreated, w.Code)
	carol := decode[domain.User](t, w)
	req.Equal("carol", carol.Username)
	req.NotEmpty(carol.ID)

	w = do(t, r, http.MethodGet, "/users/carol", nil)
	req.Equal(http.StatusOK, w.Code)
	req.Equal(carol, decode[domain.User](t, w))
}

func TestHandlers_Health(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", Health(nil))
	r.GET("/down", Health(func(context.Context) error { return errors.New("closed") }))

	req.Equal(http.StatusOK, do(t, r, http.MethodGet, "/ok", nil).Code)
	req.Equal(http.StatusServiceUnavailable, do(t, r, http.MethodGet, "/down", nil).Code)
}

func TestStatusOf(t *testing.T) {
	req := require.New(t)
	req.Equal(http.StatusNotFound, StatusOf(fmt.Errorf("lookup: %w", domain.ErrChatNotFound)))
	req.Equal(http.StatusInternalServerError, StatusOf(fmt.Errorf("append: %w: %w", domain.ErrPersistence, errors.New("disk"))))
	req.Equal(http.StatusBadRequest, StatusOf(fmt.Errorf("%w: bad", domain.ErrInvalidRequest)))
}
