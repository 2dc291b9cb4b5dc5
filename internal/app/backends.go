package app

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/broadcast"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/history"
	"github.com/vovakirdan/chatrelay/internal/store"
	"github.com/vovakirdan/chatrelay/internal/store/badger"
	"github.com/vovakirdan/chatrelay/internal/store/memory"
	redisstore "github.com/vovakirdan/chatrelay/internal/store/redis"
)

func openStore(ctx context.Context, cfg *config.Config) (store.KV, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreRedis:
		return redisstore.New(ctx, cfg.Store.RedisURL)
	case config.StoreBadger:
		return badger.Open(cfg.Store.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openGroup builds the broadcast backend. A Redis group reuses the store's
// client when both point at the same server.
func openGroup(ctx context.Context, cfg *config.Config, kv store.KV, logger *zerolog.Logger) (core.Group, func() error, error) {
	switch cfg.Broadcast.Driver {
	case config.BroadcastLocal:
		return broadcast.NewLocal(logger), func() error { return nil }, nil

	case config.BroadcastRedis:
		client, closeClient, err := redisClient(ctx, cfg, kv)
		if err != nil {
			return nil, nil, err
		}
		group, err := broadcast.NewRedis(ctx, client, cfg.Broadcast.Prefix, logger, broadcast.WithTimeout(cfg.Store.OpTimeout))
		if err != nil {
			_ = closeClient()
			return nil, nil, err
		}
		return group, func() error {
			err := group.Close()
			if cerr := closeClient(); err == nil {
				err = cerr
			}
			return err
		}, nil

	case config.BroadcastNATS:
		conn, err := nats.Connect(cfg.Broadcast.NATSURL,
			nats.Name("chatrelay"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn().Err(err).Msg("nats disconnected")
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
			}),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		group := broadcast.NewNATS(conn, cfg.Broadcast.Prefix, logger, broadcast.WithTimeout(cfg.Store.OpTimeout))
		return group, func() error {
			_ = group.Close()
			return conn.Drain()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown broadcast driver %q", cfg.Broadcast.Driver)
	}
}

func redisClient(ctx context.Context, cfg *config.Config, kv store.KV) (goredis.UniversalClient, func() error, error) {
	url := cfg.Broadcast.RedisURL
	if url == "" {
		url = cfg.Store.RedisURL
	}
	if rs, ok := kv.(*redisstore.Store); ok && url == cfg.Store.RedisURL {
		return rs.Client(), func() error { return nil }, nil
	}

	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, client.Close, nil
}

// OpenHistory opens only the message store, for maintenance commands.
func OpenHistory(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*history.Store, func() error, error) {
	kv, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return newHistory(kv, cfg, logger), kv.Close, nil
}
