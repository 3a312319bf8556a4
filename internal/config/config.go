package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Engine       EngineConfig
	Escalation   EscalationConfig
	Bus          BusConfig
	Notification NotificationConfig
}

// AppConfig controls daemon level behavior.
type AppConfig struct {
	Name    string
	Env     string
	Version string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// EngineConfig tunes lifecycle behavior.
type EngineConfig struct {
	// DefaultSLAPolicyID is the fallback when neither topic nor
	// department pins a policy.
	DefaultSLAPolicyID string
	// SequenceName selects the number sequence tickets draw from.
	SequenceName string
	// UnarchiveEnabled allows admins to pull tickets back out of the
	// archive. Off by default; archived is a terminal state.
	UnarchiveEnabled bool
	// OrgWideVisibility lets end-users reply on any ticket raised by
	// their organization.
	OrgWideVisibility bool
	// StorageRetryAttempts bounds retries of a failed commit.
	StorageRetryAttempts int
	// StorageRetryBackoffMillis is the base backoff between retries;
	// each retry doubles it.
	StorageRetryBackoffMillis int
	// CacheTTLSeconds bounds staleness of the ticket read cache.
	CacheTTLSeconds int
}

// EscalationConfig tunes the overdue scan.
type EscalationConfig struct {
	// IntervalSeconds is the fixed scan cadence.
	IntervalSeconds int
	// OpTimeoutSeconds bounds the work done for a single ticket; a
	// slow ticket is abandoned until the next pass.
	OpTimeoutSeconds int
	// BatchSize caps how many candidates one pass picks up.
	BatchSize int
	// TransferDepartmentID, when set, is where overdue tickets are
	// escalated after marking.
	TransferDepartmentID string
}

// BusConfig tunes event delivery.
type BusConfig struct {
	// BufferSize is the per-subscriber channel capacity.
	BufferSize int
	// DropPolicy is "oldest" or "newest".
	DropPolicy string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "helpdesk-engine"),
			Env:     getEnv("APP_ENV", "development"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Engine: EngineConfig{
			DefaultSLAPolicyID:        getEnv("ENGINE_DEFAULT_SLA_POLICY_ID", ""),
			SequenceName:              getEnv("ENGINE_SEQUENCE_NAME", "ticket"),
			UnarchiveEnabled:          getEnvAsBool("ENGINE_UNARCHIVE_ENABLED", false),
			OrgWideVisibility:         getEnvAsBool("ENGINE_ORG_WIDE_VISIBILITY", false),
			StorageRetryAttempts:      getEnvAsInt("ENGINE_STORAGE_RETRY_ATTEMPTS", 3),
			StorageRetryBackoffMillis: getEnvAsInt("ENGINE_STORAGE_RETRY_BACKOFF_MS", 50),
			CacheTTLSeconds:           getEnvAsInt("ENGINE_CACHE_TTL_SECONDS", 300),
		},
		Escalation: EscalationConfig{
			IntervalSeconds:      getEnvAsInt("ESCALATION_INTERVAL_SECONDS", 60),
			OpTimeoutSeconds:     getEnvAsInt("ESCALATION_OP_TIMEOUT_SECONDS", 5),
			BatchSize:            getEnvAsInt("ESCALATION_BATCH_SIZE", 100),
			TransferDepartmentID: getEnv("ESCALATION_TRANSFER_DEPARTMENT_ID", ""),
		},
		Bus: BusConfig{
			BufferSize: getEnvAsInt("BUS_BUFFER_SIZE", 64),
			DropPolicy: getEnv("BUS_DROP_POLICY", "oldest"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Interval returns the escalation scan cadence.
func (e EscalationConfig) Interval() time.Duration {
	if e.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(e.IntervalSeconds) * time.Second
}

// OpTimeout bounds how long the worker spends on a single ticket.
func (e EscalationConfig) OpTimeout() time.Duration {
	if e.OpTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.OpTimeoutSeconds) * time.Second
}

// RetryBackoff returns the base backoff between storage retries.
func (e EngineConfig) RetryBackoff() time.Duration {
	if e.StorageRetryBackoffMillis <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(e.StorageRetryBackoffMillis) * time.Millisecond
}

// CacheTTL returns the ticket cache expiry.
func (e EngineConfig) CacheTTL() time.Duration {
	if e.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(e.CacheTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
