package client

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/domain"
)

var ErrChannelClosed = errors.New("realtime channel closed")

// WSChannel is the realtime channel over a websocket. Pushed chat updates are
// delivered on Updates, which is closed when the connection ends.
type WSChannel struct {
	conn    *websocket.Conn
	wmu     sync.Mutex
	updates chan domain.ChatUpdate
	done    chan struct{}
	once    sync.Once
}

// DialWS connects to the server's /ws endpoint. header may carry the session
// cookie.
func DialWS(ctx context.Context, wsURL string, header http.Header) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}
	c := &WSChannel{
		conn:    conn,
		updates: make(chan domain.ChatUpdate, 16),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WSChannel) Updates() <-chan domain.ChatUpdate { return c.updates }

func (c *WSChannel) Join(chatID domain.ChatID) error {
	return c.write(domain.Envelope{Type: domain.FrameJoinChat, ChatID: chatID})
}

func (c *WSChannel) Leave(chatID domain.ChatID) error {
	return c.write(domain.Envelope{Type: domain.FrameLeaveChat, ChatID: chatID})
}

func (c *WSChannel) Ping() error {
	return c.write(domain.Envelope{Type: domain.FramePing})
}

func (c *WSChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.wmu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *WSChannel) write(env domain.Envelope) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *WSChannel) readLoop() {
	defer close(c.updates)
	for {
		var env domain.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("module", "client").Msg("realtime read ended")
			}
			return
		}
		switch env.Type {
		case domain.FrameChatUpdate:
			if env.Update == nil {
				continue
			}
			select {
			case c.updates <- *env.Update:
			case <-c.done:
				return
			}
		case domain.FramePong:
		case domain.FrameError:
			log.Warn().Str("module", "client").Str("error", env.Error).Msg("server error frame")
		default:
			log.Warn().Str("module", "client").Str("type", env.Type).Msg("unknown frame")
		}
	}
}
