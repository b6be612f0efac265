package app

import (
	"context"
	"dtn_chat/internal/utils/log"
	"net/url"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func (c *App) initWebhook(rawURL string) (*websocket.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// Attach connects the window to a bridge served elsewhere over websocket
// instead of running one in process. It returns once the connection is up.
func (c *App) Attach(ctx context.Context, rawURL string) error {
	conn, err := c.initWebhook(rawURL)
	if err != nil {
		return err
	}

	go c.listenOnWebhook(ctx, conn)
	go func() {
		defer conn.Close()
		for {
			text, err := c.Receive(ctx)
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				log.Error("Send message failed", zap.Error(err))
				c.Close()
				return
			}
		}
	}()
	return nil
}

func (c *App) listenOnWebhook(ctx context.Context, conn *websocket.Conn) {
	defer c.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("worker web socket closed", zap.Error(err))
			conn.Close()
			return
		}
		if err := c.Send(ctx, string(data)); err != nil {
			return
		}
	}
}
