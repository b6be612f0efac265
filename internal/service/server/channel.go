package server

import (
	"context"
	"dtn_chat/internal/service/bridge"
	"dtn_chat/internal/utils/log"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

type (
	// wsChannel adapts a websocket connection to bridge.LiveChannel.
	wsChannel struct {
		conn *websocket.Conn

		writeMu   sync.Mutex
		closeOnce sync.Once
		closeErr  error
	}
)

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

func (c *wsChannel) Send(_ context.Context, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: %v", bridge.ErrLiveClosed, err)
	}
	return nil
}

// Receive blocks until the client sends a message. It does not watch ctx;
// the bridge closes the channel to unblock it.
func (c *wsChannel) Receive(_ context.Context) (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		log.Debug("worker web socket closed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", bridge.ErrLiveClosed, err)
	}
	return string(data), nil
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.writeMu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
