// Package config loads the environment-driven configuration for the memory
// and retrieval core: database DSN and pool tuning, embedding provider,
// reranker endpoint, namespace, and background sweep cadences.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vasic-digital/memcore/internal/memcore/errs"
)

// Config is the top-level, explicitly constructed configuration object.
// Library code should receive it by value/pointer from its caller rather
// than reaching for a process-wide singleton; Load is a convenience
// accessor for cmd/ entrypoints.
type Config struct {
	Database      DatabaseConfig
	Embedding     EmbeddingConfig
	Reranker      RerankerConfig
	Namespace     string
	Consolidation ConsolidationScheduleConfig
	WorkingMemory WorkingMemoryConfig
	Ingestion     IngestionConfig
	Logging       LoggingConfig
}

// DatabaseConfig configures the Postgres/pgvector connection pool.
type DatabaseConfig struct {
	DSN             string
	SSLMode         string
	PoolSize        int
	PoolTimeout     time.Duration
	MaxOverflow     int
	PoolRecycle     time.Duration
	ConnectTimeout  time.Duration
}

// EmbeddingConfig configures the embedding-provider HTTP client.
type EmbeddingConfig struct {
	URL       string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// RerankerConfig configures the optional cross-encoder reranker endpoint.
// Reranking is disabled when URL is empty.
type RerankerConfig struct {
	URL       string
	BatchSize int
	Timeout   time.Duration
}

// ConsolidationScheduleConfig configures the background consolidation cadence.
type ConsolidationScheduleConfig struct {
	Interval time.Duration
}

// WorkingMemoryConfig configures the RMT buffer TTL sweep.
type WorkingMemoryConfig struct {
	TTLSweepInterval time.Duration
}

// IngestionConfig configures the document ingestion pipeline.
type IngestionConfig struct {
	MaxFileBytes int64
	// CriteriaFile, if set, points at a YAML file of operator-supplied
	// domain-tag keyword overrides (see internal/domaintag.LoadCriteriaOverrides).
	CriteriaFile string
}

// LoggingConfig configures the logrus logger used across the module.
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// Load builds a Config from environment variables, applying the defaults
// documented in the environment table.
func Load() *Config {
	dsn := getEnv("POSTGRES_DSN", getEnv("DATABASE_URL", ""))
	dsn = normalizeDSN(dsn)

	return &Config{
		Database: DatabaseConfig{
			DSN:            dsn,
			SSLMode:        getEnv("PGSSLMODE", "disable"),
			PoolSize:       getIntEnv("DB_POOL_SIZE", 10),
			PoolTimeout:    getDurationEnv("DB_POOL_TIMEOUT", 30*time.Second),
			MaxOverflow:    getIntEnv("DB_MAX_OVERFLOW", 10),
			PoolRecycle:    getDurationEnv("DB_POOL_RECYCLE", time.Hour),
			ConnectTimeout: getDurationEnv("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Embedding: EmbeddingConfig{
			URL:       getEnv("EMBEDDINGS_URL", ""),
			APIKey:    getEnv("EMBEDDINGS_API_KEY", ""),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getIntEnv("EMBEDDING_DIMENSION", 1536),
			Timeout:   getDurationEnv("EMBEDDINGS_TIMEOUT", 30*time.Second),
		},
		Reranker: RerankerConfig{
			URL:       getEnv("RERANKER_URL", ""),
			BatchSize: getIntEnv("RERANKER_BATCH_SIZE", 32),
			Timeout:   getDurationEnv("RERANKER_TIMEOUT", 30*time.Second),
		},
		Namespace: getEnv("VECTOR_NAMESPACE", "default"),
		Consolidation: ConsolidationScheduleConfig{
			Interval: getDurationEnv("CONSOLIDATION_INTERVAL", 24*time.Hour),
		},
		WorkingMemory: WorkingMemoryConfig{
			TTLSweepInterval: getDurationEnv("RMT_TTL_SWEEP_INTERVAL", 10*time.Minute),
		},
		Ingestion: IngestionConfig{
			MaxFileBytes: getInt64Env("INGEST_MAX_FILE_BYTES", 20*1024*1024),
			CriteriaFile: getEnv("DOMAIN_TAG_CRITERIA_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Validate refuses to start the process with a configuration that would
// violate a documented startup invariant.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errs.Config("no database DSN configured (set POSTGRES_DSN or DATABASE_URL)")
	}
	if c.Embedding.Dimension <= 0 {
		return errs.Config("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.Model == "" {
		return errs.Config("embedding model must be set")
	}
	return nil
}

// normalizeDSN accepts postgres://, postgresql://, and postgresql+asyncpg://
// prefixes and normalizes them to the driver-neutral postgres:// form pgx
// expects.
func normalizeDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	dsn = strings.Replace(dsn, "postgresql+asyncpg://", "postgres://", 1)
	dsn = strings.Replace(dsn, "postgresql://", "postgres://", 1)
	return dsn
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
