package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/db"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

// backing holds whichever client the selected store runs on so the app can
// ping, scrape and close it.
type backing struct {
	gorm  *gorm.DB
	redis *goredis.Client
}

func openStore(log *logger.Logger, cfg Config, m *observability.Metrics) (kv.Store, backing, error) {
	var (
		inner kv.Store
		b     backing
	)
	switch cfg.Store {
	case StoreMemory, "":
		log.Warn("using in-memory store; learner state is lost on restart")
		inner = kv.NewMemoryStore()
	case StorePostgres, StoreSQLite:
		gdb, err := db.Open(log, cfg.DB)
		if err != nil {
			return nil, b, err
		}
		b.gorm = gdb
		inner = kv.NewGormStore(gdb, log)
	case StoreRedis:
		rs, err := kv.NewRedisStore(log, cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, b, err
		}
		b.redis = rs.Client()
		inner = rs
	default:
		return nil, b, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.Store)
	}
	name := cfg.Store
	if name == "" {
		name = StoreMemory
	}
	return instrumentStore(name, inner, m), b, nil
}

func (b backing) Ping(ctx context.Context) error {
	switch {
	case b.gorm != nil:
		sqlDB, err := b.gorm.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	case b.redis != nil:
		return b.redis.Ping(ctx).Err()
	}
	return nil
}

func (b backing) Close() error {
	switch {
	case b.gorm != nil:
		sqlDB, err := b.gorm.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	case b.redis != nil:
		return b.redis.Close()
	}
	return nil
}

type instrumentedStore struct {
	backend string
	inner   kv.Store
	metrics *observability.Metrics
}

func instrumentStore(backend string, inner kv.Store, m *observability.Metrics) kv.Store {
	if inner == nil || m == nil {
		return inner
	}
	return &instrumentedStore{backend: backend, inner: inner, metrics: m}
}

func (s *instrumentedStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Get(ctx, key, dst)
	s.observe("get", err, time.Since(start))
	return ok, err
}

func (s *instrumentedStore) Set(ctx context.Context, key string, value any) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value)
	s.observe("set", err, time.Since(start))
	return err
}

func (s *instrumentedStore) observe(op string, err error, dur time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveStoreOp(s.backend, op, status, dur)
}
