package app

import (
	"context"
	"testing"
	"time"

	"dtn_chat/internal/service/bridge"

	"github.com/stretchr/testify/require"
)

func TestLiveChannelWithoutScreen(t *testing.T) {
	c := NewApp("Alice", "Bob")
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, bridge.SystemNotice))
	require.Equal(t, bridge.SystemNotice, <-c.inbound)

	c.lines <- "typed"
	text, err := c.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "typed", text)

	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = c.Receive(timeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Receive(ctx)
	require.ErrorIs(t, err, bridge.ErrLiveClosed)
	require.ErrorIs(t, c.Send(ctx, "late"), bridge.ErrLiveClosed)
}

func TestAttachFailsWithoutServer(t *testing.T) {
	c := NewApp("Alice", "Bob")
	defer c.Close()
	require.Error(t, c.Attach(context.Background(), "ws://127.0.0.1:1/ws"))
}
