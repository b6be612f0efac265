package bridge

import (
	"bytes"
	"context"
	"dtn_chat/internal/metrics"
	"dtn_chat/internal/model"
	"dtn_chat/internal/protocol/bundle"
	"dtn_chat/internal/utils/log"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// FormatLine renders an inbound message for the live channel, padded to at
// least the width of the local user's own prompt.
func FormatLine(localName, peerName, text string) string {
	line := peerName + ": " + text
	if pad := len(localName) + 2 - len(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	return line
}

func (b *Bridge) ingress(ctx context.Context, s Session, live LiveChannel) error {
	frames := newReceiver(ctx, s)
	count := 0

	for {
		frame, err := frames.next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, model.ErrSessionClosed) {
				log.Info("no more frames, ingress stopping", zap.Error(err))
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		switch f := frame.(type) {
		case model.Keepalive:
			metrics.FrameReceived("keepalive")
			log.Debug("received keepalive, acknowledging")
			if err := s.AckKeepalive(); err != nil {
				if errors.Is(err, model.ErrSessionClosed) {
					return nil
				}
				return fmt.Errorf("ack keepalive: %w", err)
			}
			continue
		case model.Unknown:
			metrics.FrameReceived("unknown")
			log.Warn("discarding agent message", zap.String("field", f.Field))
			continue
		case model.ApplicationDataUnit:
			metrics.FrameReceived("adu")
			err := b.handleADU(ctx, f, live)
			if errors.Is(err, ErrLiveClosed) {
				return nil
			}
			if err != nil {
				return err
			}
		}

		count++
		if b.cfg.MaxMessages > 0 && count >= b.cfg.MaxMessages {
			log.Info("expected amount of bundles received", zap.Int("count", count))
			return nil
		}
	}
}

// handleADU returns an error only for conditions that must stop the bridge.
// Undecodable messages are logged and dropped.
func (b *Bridge) handleADU(ctx context.Context, adu model.ApplicationDataUnit, live LiveChannel) error {
	payload, encapsulated, err := bundle.Decapsulate(adu)
	if err != nil {
		metrics.MessageDropped(metrics.ReasonMalformedBundle)
		log.Error("malformed encapsulated bundle", zap.String("source", adu.Source), zap.Error(err))
		if b.cfg.StrictBundles {
			return err
		}
		return nil
	}
	log.Info("received bundle",
		zap.String("source", adu.Source),
		zap.Bool("encapsulated", encapsulated),
		zap.Int("payload_len", len(payload)))

	if b.cfg.ExpectedPayload != nil && !bytes.Equal(b.cfg.ExpectedPayload, payload) {
		log.Error("unexpected payload", zap.ByteString("expected", b.cfg.ExpectedPayload))
		return fmt.Errorf("%w: %d bytes from %s", ErrUnexpectedPayload, len(payload), adu.Source)
	}

	env, err := b.codec.Decode(payload)
	if err != nil {
		metrics.MessageDropped(metrics.ReasonDecode)
		log.Warn("failed to decode message payload", zap.String("source", adu.Source), zap.Error(err))
		return nil
	}

	seed, err := env.StatusBytes()
	if err != nil || !b.verifier.Verify(b.cfg.Peer.ExpectedValidityHash, seed, b.cfg.Peer.CertIssuanceDate) {
		metrics.RevocationFailure()
		log.Error("invalid hash value, message must have been modified",
			zap.String("source", adu.Source),
			zap.String("status", env.RevocationStatus),
			zap.Time("now", b.verifier.Now()))
		return fmt.Errorf("%w: message from %s", ErrRevocationMismatch, adu.Source)
	}

	text, err := b.codec.Decrypt(env)
	if err != nil {
		metrics.MessageDropped(metrics.ReasonDecrypt)
		log.Warn("dropping message", zap.String("source", adu.Source), zap.Error(err))
		return nil
	}

	if err := live.Send(ctx, FormatLine(b.cfg.LocalName, b.cfg.Peer.DisplayName, text)); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	metrics.MessageDelivered()
	return nil
}
