package app

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type failingStore struct{ err error }

func (f failingStore) Get(ctx context.Context, key string, dst any) (bool, error) { return false, f.err }
func (f failingStore) Set(ctx context.Context, key string, value any) error       { return f.err }

func TestInstrumentStorePassThrough(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	s := instrumentStore("memory", kv.NewMemoryStore(), m)
	ctx := context.Background()

	if err := s.Set(ctx, "velocity:u1", map[string]int{"attempts": 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got map[string]int
	ok, err := s.Get(ctx, "velocity:u1", &got)
	if err != nil || !ok || got["attempts"] != 2 {
		t.Fatalf("Get = %v %v %v", got, ok, err)
	}
	if n := testutil.CollectAndCount(m.Registry(), "mastery_store_operation_duration_seconds"); n != 2 {
		t.Fatalf("store op series = %d, want 2", n)
	}
}

func TestInstrumentStoreErrorPassThrough(t *testing.T) {
	want := errors.New("connection reset")
	m := observability.NewMetrics(prometheus.NewRegistry())
	s := instrumentStore("redis", failingStore{err: want}, m)
	if err := s.Set(context.Background(), "k", 1); !errors.Is(err, want) {
		t.Fatalf("Set: expected %v, got %v", want, err)
	}
}

func TestInstrumentStoreWithoutMetricsIsUnwrapped(t *testing.T) {
	inner := kv.NewMemoryStore()
	if s := instrumentStore("memory", inner, nil); s != kv.Store(inner) {
		t.Fatalf("expected the inner store back")
	}
}

func TestOpenStoreMemoryAndUnknown(t *testing.T) {
	s, b, err := openStore(logger.NewNop(), Config{Store: StoreMemory}, nil)
	if err != nil || s == nil {
		t.Fatalf("openStore memory: %v", err)
	}
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, _, err := openStore(logger.NewNop(), Config{Store: "cassandra"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
