// Package db opens the relational database that backs the learner store.
package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/platform/envutil"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	// SQLitePath is a file path or ":memory:".
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

func ConfigFromEnv(driver string) Config {
	return Config{
		Driver:       strings.ToLower(strings.TrimSpace(driver)),
		Host:         envutil.String("POSTGRES_HOST", "localhost"),
		Port:         envutil.String("POSTGRES_PORT", "5432"),
		User:         envutil.String("POSTGRES_USER", "postgres"),
		Password:     envutil.String("POSTGRES_PASSWORD", ""),
		Name:         envutil.String("POSTGRES_NAME", "neurobridge"),
		SSLMode:      envutil.String("POSTGRES_SSLMODE", "disable"),
		SQLitePath:   envutil.String("SQLITE_PATH", "mastery.db"),
		MaxOpenConns: envutil.Int("DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns: envutil.Int("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLife:  envutil.Duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

func (c Config) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// Open connects with the configured driver and migrates the kv_entries table.
func Open(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	log = log.With("service", "Database", "driver", cfg.Driver)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		log.Info("Connecting to Postgres...", "host", cfg.Host, "port", cfg.Port, "name", cfg.Name)
		dialector = postgres.Open(cfg.dsn())
	case DriverSQLite:
		log.Info("Opening SQLite...", "path", cfg.SQLitePath)
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Error("Failed to open database", "error", err)
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// SQLite serializes writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	log.Info("Auto migrating tables...")
	if err := kv.AutoMigrate(gdb); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return gdb, nil
}
