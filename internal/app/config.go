package app

import (
	"strings"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/db"
	"github.com/yungbote/neurobridge-mastery/internal/learning/engine"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/envutil"
	"github.com/yungbote/neurobridge-mastery/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-mastery/internal/temporalx"
)

const ServiceName = "neurobridge-mastery"

// Version is stamped at build time with -ldflags.
var Version = "dev"

const (
	StoreMemory   = "memory"
	StorePostgres = db.DriverPostgres
	StoreSQLite   = db.DriverSQLite
	StoreRedis    = "redis"
)

type Config struct {
	LogMode     string
	Environment string
	Address     string

	Store       string
	DB          db.Config
	RedisAddr   string
	RedisPrefix string

	JWTSecret      string
	JWTIssuer      string
	AllowedOrigins []string

	// CatalogPath points at an optional YAML skill catalog.
	CatalogPath     string
	Neo4j           neo4jdb.Config
	SyncGraphOnBoot bool

	Temporal temporalx.Config
	Otel     observability.OtelConfig
	Engine   engine.Config

	ReestimateEvery  time.Duration
	TrimHistoryEvery time.Duration
	JobsEnabled      bool
}

func LoadConfig() Config {
	env := envutil.String("APP_ENV", "development")
	store := strings.ToLower(envutil.String("STORE_BACKEND", StoreMemory))
	return Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: env,
		Address:     envutil.String("HTTP_ADDRESS", ":8080"),

		Store:       store,
		DB:          db.ConfigFromEnv(store),
		RedisAddr:   envutil.String("REDIS_ADDR", ""),
		RedisPrefix: envutil.String("REDIS_PREFIX", "mastery"),

		JWTSecret:      envutil.String("JWT_SECRET_KEY", ""),
		JWTIssuer:      envutil.String("JWT_ISSUER", ""),
		AllowedOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		CatalogPath:     envutil.String("SKILL_CATALOG_PATH", ""),
		Neo4j:           neo4jdb.ConfigFromEnv(),
		SyncGraphOnBoot: envutil.Bool("NEO4J_SYNC_ON_START", false),

		Temporal: temporalx.LoadConfig(),
		Otel:     observability.OtelConfigFromEnv(ServiceName, env, Version),
		Engine:   engine.ConfigFromEnv(),

		ReestimateEvery:  envutil.Duration("JOB_REESTIMATE_EVERY", 6*time.Hour),
		TrimHistoryEvery: envutil.Duration("JOB_TRIM_HISTORY_EVERY", time.Hour),
		JobsEnabled:      envutil.Bool("JOBS_ENABLED", true),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
