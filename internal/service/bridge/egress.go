package bridge

import (
	"context"
	"dtn_chat/internal/metrics"
	"dtn_chat/internal/utils/log"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

func (b *Bridge) egress(ctx context.Context, s Session, live LiveChannel) error {
	dst := b.cfg.Peer.Destination()
	flags := b.cfg.outboundFlags()

	for {
		text, err := live.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrLiveClosed) {
				log.Info("live channel closed, egress stopping")
				return nil
			}
			return fmt.Errorf("live receive: %w", err)
		}

		statusHex, err := b.status.Current(ctx)
		if err != nil {
			return fmt.Errorf("revocation status: %w", err)
		}

		payload, err := b.codec.Encode(text, statusHex)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}

		log.Debug("sending message", zap.String("destination", dst), zap.Int("payload_len", len(payload)))
		if err := s.SendADU(dst, payload, flags); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.SendFailure()
			return fmt.Errorf("send to %s: %w", dst, err)
		}
		metrics.MessageSent()
	}
}
