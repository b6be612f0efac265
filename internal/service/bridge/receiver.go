package bridge

import (
	"context"
	"dtn_chat/internal/model"
)

type (
	received struct {
		frame model.Frame
		err   error
	}

	// receiver runs a session's blocking Receive on its own goroutine. It
	// reads one frame per request, so the caller is done with a frame
	// (keepalive ack included) before the next read starts.
	receiver struct {
		session  Session
		requests chan struct{}
		results  chan received
	}
)

func newReceiver(ctx context.Context, s Session) *receiver {
	r := &receiver{
		session:  s,
		requests: make(chan struct{}),
		results:  make(chan received),
	}
	go r.run(ctx)
	return r
}

func (r *receiver) run(ctx context.Context) {
	for {
		select {
		case <-r.requests:
		case <-ctx.Done():
			return
		}

		frame, err := r.session.Receive()
		select {
		case r.results <- received{frame: frame, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *receiver) next(ctx context.Context) (model.Frame, error) {
	select {
	case r.requests <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-r.results:
		return res.frame, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
