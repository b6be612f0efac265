// Package status supplies the local revocation status seed attached to every
// outbound message.
package status

import (
	"context"
	"dtn_chat/internal/service/redis"
	"dtn_chat/internal/utils/log"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const DefaultRedisKey = "dtn_chat:revocation_status"

type (
	Provider interface {
		// Current returns the hex encoded status seed.
		Current(ctx context.Context) (string, error)
	}

	Static struct {
		status string
	}

	// Store is the subset of the redis service the provider reads from.
	Store interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key string, value any, ttl time.Duration) error
	}

	// RedisProvider reads the seed from a redis key so it can be rotated
	// while the bridge runs. It falls back to a static seed while the key is
	// unset.
	RedisProvider struct {
		store    Store
		key      string
		fallback string
	}
)

func Validate(statusHex string) error {
	if statusHex == "" {
		return errors.New("empty revocation status")
	}
	if _, err := hex.DecodeString(statusHex); err != nil {
		return fmt.Errorf("revocation status is not hex: %w", err)
	}
	return nil
}

func NewStatic(statusHex string) (*Static, error) {
	if err := Validate(statusHex); err != nil {
		return nil, err
	}
	return &Static{status: statusHex}, nil
}

func (s *Static) Current(context.Context) (string, error) {
	return s.status, nil
}

func NewRedisProvider(store Store, key, fallback string) *RedisProvider {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisProvider{store: store, key: key, fallback: fallback}
}

func (p *RedisProvider) Current(ctx context.Context) (string, error) {
	v, err := p.store.Get(ctx, p.key)
	if errors.Is(err, redis.ErrNotFound) {
		if p.fallback == "" {
			return "", fmt.Errorf("no revocation status under %q", p.key)
		}
		return p.fallback, nil
	}
	if err != nil {
		return "", err
	}
	if err := Validate(v); err != nil {
		log.Error("invalid revocation status in redis", zap.String("key", p.key), zap.Error(err))
		return "", err
	}
	return v, nil
}

// Publish stores a new seed for running bridges to pick up.
func (p *RedisProvider) Publish(ctx context.Context, statusHex string) error {
	if err := Validate(statusHex); err != nil {
		return err
	}
	return p.store.Set(ctx, p.key, statusHex, 0)
}
