package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dkeye/chatsync/internal/domain"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// HTTPAPI talks to the chat REST routes under BaseURL.
type HTTPAPI struct {
	BaseURL *url.URL
	Client  *http.Client
}

func NewHTTPAPI(baseURL *url.URL) *HTTPAPI {
	return &HTTPAPI{BaseURL: baseURL, Client: http.DefaultClient}
}

func (a *HTTPAPI) ChatsForUser(ctx context.Context, username string) ([]domain.PopulatedChat, error) {
	var out []domain.PopulatedChat
	err := a.do(ctx, http.MethodGet, a.BaseURL.JoinPath("chats", "user", username), nil, &out)
	return out, err
}

func (a *HTTPAPI) GetChat(ctx context.Context, chatID domain.ChatID) (domain.PopulatedChat, error) {
	var out domain.PopulatedChat
	err := a.do(ctx, http.MethodGet, a.BaseURL.JoinPath("chats", string(chatID)), nil, &out)
	return out, err
}

func (a *HTTPAPI) SendMessage(ctx context.Context, chatID domain.ChatID, text, author string) (domain.PopulatedChat, error) {
	body := map[string]string{"msg": text, "msgFrom": author}
	var out domain.PopulatedChat
	err := a.do(ctx, http.MethodPost, a.BaseURL.JoinPath("chats", string(chatID), "messages"), body, &out)
	return out, err
}

func (a *HTTPAPI) CreateChat(ctx context.Context, participants []string) (domain.PopulatedChat, error) {
	body := map[string][]string{"participants": participants}
	var out domain.PopulatedChat
	err := a.do(ctx, http.MethodPost, a.BaseURL.JoinPath("chats"), body, &out)
	return out, err
}

// RegisterUser creates username on the server.
func (a *HTTPAPI) RegisterUser(ctx context.Context, username string) (domain.User, error) {
	var out domain.User
	err := a.do(ctx, http.MethodPost, a.BaseURL.JoinPath("users"), map[string]string{"username": username}, &out)
	return out, err
}

func (a *HTTPAPI) do(ctx context.Context, method string, u *url.URL, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
