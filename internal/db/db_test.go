package db

import (
	"context"
	"testing"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

func TestOpenSQLiteMigratesStore(t *testing.T) {
	gdb, err := Open(logger.NewNop(), Config{Driver: DriverSQLite, SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s := kv.NewGormStore(gdb, logger.NewNop())
	ctx := context.Background()
	if err := s.Set(ctx, "bkt:mastery:u1", map[string]float64{"css-grid": 0.4}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got map[string]float64
	ok, err := s.Get(ctx, "bkt:mastery:u1", &got)
	if err != nil || !ok || got["css-grid"] != 0.4 {
		t.Fatalf("Get = %v %v %v", got, ok, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(logger.NewNop(), Config{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPostgresDSN(t *testing.T) {
	c := Config{User: "u", Password: "p", Host: "db", Port: "5433", Name: "mastery", SSLMode: "require"}
	if got := c.dsn(); got != "postgres://u:p@db:5433/mastery?sslmode=require" {
		t.Fatalf("dsn = %s", got)
	}
}
