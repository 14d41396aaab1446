package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cipherlens/cipherlens/internal/logging"
)

const defaultPrefix = "cipherlens:verdict:"

// RedisCache shares verdicts between API replicas.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger logging.Logger
}

func NewRedisCache(ctx context.Context, cfg Config, logger logging.Logger) (*RedisCache, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	componentLogger := logger.With(logging.Field{Key: "component", Value: "cache"})
	componentLogger.Info("connected to redis",
		logging.Field{Key: "addr", Value: cfg.Addr},
		logging.Field{Key: "ttl", Value: cfg.TTL.String()})

	return &RedisCache{rdb: rdb, ttl: cfg.TTL, prefix: cfg.Prefix, logger: componentLogger}, nil
}

func (r *RedisCache) Get(ctx context.Context, url string) (*Entry, bool, error) {
	raw, err := r.rdb.Get(ctx, key(r.prefix, url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.logger.Warn("dropping undecodable cache entry",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, false, nil
	}
	return &e, true, nil
}

func (r *RedisCache) Set(ctx context.Context, url string, e *Entry) error {
	if e == nil {
		return nil
	}
	stored := *e
	if stored.CachedAt.IsZero() {
		stored.CachedAt = time.Now()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := r.rdb.Set(ctx, key(r.prefix, url), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.rdb.Close()
}
