// Package wire assembles a bridge and its collaborators from a config.
package wire

import (
	"context"
	"dtn_chat/internal/config"
	"dtn_chat/internal/cryptographic/encryption"
	"dtn_chat/internal/model"
	"dtn_chat/internal/protocol/aap2"
	"dtn_chat/internal/protocol/envelope"
	"dtn_chat/internal/protocol/revocation"
	"dtn_chat/internal/repository/peer"
	"dtn_chat/internal/service/bridge"
	redisSvc "dtn_chat/internal/service/redis"
	"dtn_chat/internal/service/status"
	"dtn_chat/internal/utils/log"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// Dialer opens real sessions against the forwarding agent.
var Dialer bridge.Dialer = bridge.DialFunc(func(ctx context.Context, s model.Session) (bridge.Session, error) {
	c, err := aap2.Open(ctx, s)
	if err != nil {
		return nil, err
	}
	return c, nil
})

// Build returns a bridge for cfg and a cleanup func that releases the
// optional redis and mongo clients. cleanup is never nil, even on error.
func Build(ctx context.Context, cfg *config.Config) (*bridge.Bridge, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	key, err := cfg.Key()
	if err != nil {
		return nil, cleanup, err
	}
	cipher, err := encryption.NewMessageCipher(key)
	if err != nil {
		return nil, cleanup, err
	}

	clock, err := cfg.Clock()
	if err != nil {
		return nil, cleanup, err
	}
	verifier := revocation.NewVerifier(clock)
	log.Info("current date", zap.Time("now", verifier.Now()), zap.Bool("fake", cfg.FakeDate != ""))

	var provider status.Provider
	if cfg.Redis.Addr != "" {
		rs, err := NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { rs.Close() })
		provider = status.NewRedisProvider(rs, cfg.Redis.StatusKey, cfg.RevocationStatus)
	} else {
		provider, err = status.NewStatic(cfg.RevocationStatus)
		if err != nil {
			return nil, cleanup, err
		}
	}

	p, err := cfg.Peer()
	if err != nil {
		return nil, cleanup, err
	}
	if cfg.Mongo.URI != "" {
		client, err := NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { client.Disconnect(context.Background()) })

		stored, err := peer.NewPeerRepo(client.Database(cfg.Mongo.Database)).GetByName(ctx, cfg.PeerName)
		if err != nil {
			return nil, cleanup, fmt.Errorf("load peer %q: %w", cfg.PeerName, err)
		}
		if stored != nil {
			log.Info("using stored peer identity", zap.String("peer", stored.DisplayName))
			p = *stored
		}
	}

	bcfg := bridge.Config{
		LocalName:        cfg.LocalName,
		Peer:             p,
		Address:          cfg.SessionAddress,
		Secret:           cfg.Secret,
		KeepaliveSeconds: cfg.KeepaliveSeconds,
		BDMAuth:          cfg.BDMAuth,
		MaxMessages:      cfg.MaxMessages,
		StrictBundles:    cfg.StrictBundles,
	}
	if cfg.ExpectedPayload != nil {
		bcfg.ExpectedPayload = []byte(*cfg.ExpectedPayload)
	}

	b := bridge.New(bcfg, Dialer, envelope.NewCodec(cipher), verifier, provider)
	return b, cleanup, nil
}

func NewRedis(ctx context.Context, cfg config.Redis) (*redisSvc.RedisService, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	rs := redisSvc.NewRedis(rdb)
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		rs.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return rs, nil
}

func NewMongo(ctx context.Context, cfg config.Mongo) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: %w", err)
	}
	return client, nil
}
