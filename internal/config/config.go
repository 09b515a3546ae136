package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Worker    WorkerConfig
	Sweeper   SweeperConfig
	Retention RetentionConfig
	Backoff   BackoffConfig
}

// DatabaseConfig holds job store configuration. DSN selects the driver:
// a postgres:// URL opens a pgx pool, anything else is treated as a
// SQLite file path.
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds the job API configuration.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// WorkerConfig holds worker loop configuration.
type WorkerConfig struct {
	Count             int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	ExecTimeout       time.Duration
	ShutdownGrace     time.Duration
	DefaultMaxRetries int
}

// SweeperConfig holds orphan recovery configuration. StaleAfter should be
// a comfortable multiple of the worker heartbeat interval.
type SweeperConfig struct {
	Interval      time.Duration
	StaleAfter    time.Duration
	RecoveryLimit int
}

// RetentionConfig holds terminal record cleanup configuration.
type RetentionConfig struct {
	Interval time.Duration
	KeepFor  time.Duration
}

// BackoffConfig holds retry delay configuration.
type BackoffConfig struct {
	Base          time.Duration
	Multiplier    float64
	Max           time.Duration
	JitterPercent int
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("MENUQ_DB_DSN", "menuq.db"),
			MaxConns:        int32(getEnvInt("MENUQ_DB_MAX_CONNS", 10)),
			MinConns:        int32(getEnvInt("MENUQ_DB_MIN_CONNS", 1)),
			MaxConnLifetime: getEnvDuration("MENUQ_DB_MAX_CONN_LIFETIME", time.Hour),
			DialTimeout:     getEnvDuration("MENUQ_DB_DIAL_TIMEOUT", 10*time.Second),
		},
		Server: ServerConfig{
			Addr:            getEnv("MENUQ_HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvDuration("MENUQ_HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Worker: WorkerConfig{
			Count:             getEnvInt("MENUQ_WORKER_COUNT", 2),
			PollInterval:      getEnvDuration("MENUQ_WORKER_POLL_INTERVAL", 2*time.Second),
			HeartbeatInterval: getEnvDuration("MENUQ_WORKER_HEARTBEAT_INTERVAL", 10*time.Second),
			ExecTimeout:       getEnvDuration("MENUQ_WORKER_EXEC_TIMEOUT", 4*time.Minute),
			ShutdownGrace:     getEnvDuration("MENUQ_WORKER_SHUTDOWN_GRACE", 30*time.Second),
			DefaultMaxRetries: getEnvInt("MENUQ_WORKER_DEFAULT_MAX_RETRIES", 3),
		},
		Sweeper: SweeperConfig{
			Interval:      getEnvDuration("MENUQ_SWEEP_INTERVAL", time.Minute),
			StaleAfter:    getEnvDuration("MENUQ_SWEEP_STALE_AFTER", 30*time.Second),
			RecoveryLimit: getEnvInt("MENUQ_SWEEP_RECOVERY_LIMIT", 3),
		},
		Retention: RetentionConfig{
			Interval: getEnvDuration("MENUQ_RETENTION_INTERVAL", time.Hour),
			KeepFor:  getEnvDuration("MENUQ_RETENTION_KEEP_FOR", 7*24*time.Hour),
		},
		Backoff: BackoffConfig{
			Base:          getEnvDuration("MENUQ_BACKOFF_BASE", 2*time.Second),
			Multiplier:    getEnvFloat("MENUQ_BACKOFF_MULTIPLIER", 2.0),
			Max:           getEnvDuration("MENUQ_BACKOFF_MAX", 5*time.Minute),
			JitterPercent: getEnvInt("MENUQ_BACKOFF_JITTER_PERCENT", 20),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
