package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type RedisStore struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// NewRedisStore connects to addr and pings it before returning.
func NewRedisStore(log *logger.Logger, addr string, prefix string) (*RedisStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreFromClient(log, rdb, prefix), nil
}

func NewRedisStoreFromClient(log *logger.Logger, rdb *goredis.Client, prefix string) *RedisStore {
	return &RedisStore{
		log:    log.With("store", "RedisStore"),
		rdb:    rdb,
		prefix: strings.TrimSpace(prefix),
	}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, ErrEmptyKey
	}
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, decode(key, raw, dst)
}

func (s *RedisStore) Set(ctx context.Context, key string, value any) error {
	raw, err := encode(key, value)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(key), raw, 0).Err()
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) Client() *goredis.Client {
	if s == nil {
		return nil
	}
	return s.rdb
}
