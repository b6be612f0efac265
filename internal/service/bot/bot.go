package bot

import (
	"context"
	"dtn_chat/internal/service/bridge"
	"dtn_chat/internal/utils/log"
	"sync"

	"go.uber.org/zap"
)

const replyQueueSize = 16

var _ bridge.LiveChannel = (*Responder)(nil)

type (
	// Responder is a headless live channel that answers every delivered
	// message with a fixed reply. It is used for unattended test nodes.
	Responder struct {
		reply     string
		replies   chan string
		done      chan struct{}
		closeOnce sync.Once
	}
)

func NewResponder(reply string) *Responder {
	return &Responder{
		reply:   reply,
		replies: make(chan string, replyQueueSize),
		done:    make(chan struct{}),
	}
}

func (r *Responder) Send(ctx context.Context, text string) error {
	select {
	case <-r.done:
		return bridge.ErrLiveClosed
	default:
	}

	if text == bridge.SystemNotice {
		return nil
	}
	log.Info("bot received", zap.String("line", text))

	if r.reply == "" {
		return nil
	}
	select {
	case r.replies <- r.reply:
		return nil
	case <-r.done:
		return bridge.ErrLiveClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Responder) Receive(ctx context.Context) (string, error) {
	select {
	case text := <-r.replies:
		return text, nil
	case <-r.done:
		return "", bridge.ErrLiveClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Responder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	return nil
}
