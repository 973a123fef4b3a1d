package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	RetentionDays         int

	DialTimeout time.Duration
	DialMaxWait time.Duration
	Backoff     time.Duration
	BackoffMax  time.Duration

	WorkerConcurrency int
	// OutcomeTimeout bounds one synchronous RecordOutcome dispatch.
	OutcomeTimeout time.Duration
}

func LoadConfig() Config {
	return Config{
		Address:   strings.TrimSpace(envutil.String("TEMPORAL_ADDRESS", "")),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "neurobridge-mastery"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "neurobridge-mastery"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:         envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),

		DialTimeout: envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second),
		DialMaxWait: envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", 60*time.Second),
		Backoff:     envutil.Duration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond),
		BackoffMax:  envutil.Duration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second),

		WorkerConcurrency: envutil.Int("TEMPORAL_WORKER_CONCURRENCY", 4),
		OutcomeTimeout:    envutil.Duration("TEMPORAL_OUTCOME_TIMEOUT", 30*time.Second),
	}
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) mtls() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
