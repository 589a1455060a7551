// Package database owns the Postgres/pgvector connection pool and the
// forward-only schema migrations the memory core runs on first boot.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vasic-digital/memcore/internal/config"
	"github.com/vasic-digital/memcore/internal/memcore/errs"
)

// DB is the minimal connection surface every store depends on.
type DB interface {
	Pool() *pgxpool.Pool
	HealthCheck(ctx context.Context) error
	Close()
}

// PostgresDB wraps a pgxpool.Pool configured for the memory core's workload.
type PostgresDB struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgresDB opens a pool using the pool-tuning knobs in cfg and verifies
// connectivity before returning.
func NewPostgresDB(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*PostgresDB, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	// The shared pool backs all three stores, so start from the semantic
	// store's profile (the dominant pgvector read workload) and layer the
	// operator's explicit sizing on top.
	opts := SemanticStorePoolOptions()
	opts.MaxConns = int32(cfg.Database.PoolSize + cfg.Database.MaxOverflow)
	opts.MaxConnLifetime = cfg.Database.PoolRecycle
	opts.MaxConnIdleTime = cfg.Database.PoolTimeout
	opts.ConnectTimeout = cfg.Database.ConnectTimeout
	opts.ApplicationName = "memcore"

	poolConfig, err := CreateOptimizedPoolConfig(cfg.Database.DSN, opts)
	if err != nil {
		return nil, errs.Config("parse database DSN: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errs.Store("open connection pool: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errs.Store("ping database: %v", err)
	}

	log.WithFields(logrus.Fields{
		"max_conns": opts.MaxConns,
		"namespace": cfg.Namespace,
	}).Info("database.connected")

	return &PostgresDB{pool: pool, log: log}, nil
}

// Pool returns the underlying pgxpool.Pool.
func (p *PostgresDB) Pool() *pgxpool.Pool { return p.pool }

// HealthCheck pings the database with a bounded deadline.
func (p *PostgresDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return errs.Store("health check: %v", err)
	}
	return nil
}

// Close releases all pooled connections.
func (p *PostgresDB) Close() {
	p.pool.Close()
}

// Bootstrap runs the forward-only schema migrations against a freshly
// created database. Safe to call repeatedly; every statement is idempotent.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("run migration %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// migrations is the forward-only DDL for the memory core's schema, run
// against a freshly created "mega_agent" schema. The vector extension and
// column dimension are parameterized by EMBEDDING_DIMENSION at deploy time;
// the literal here assumes the configured default of 1536 and is expected to
// be regenerated by an operator-owned migration tool when the dimension
// changes for a given deployment.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE SCHEMA IF NOT EXISTS mega_agent`,

	`CREATE TABLE IF NOT EXISTS mega_agent.memory_records (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		namespace VARCHAR(255) NOT NULL DEFAULT 'default',
		user_id VARCHAR(255) NOT NULL,
		case_id VARCHAR(255),
		thread_id VARCHAR(255),
		type VARCHAR(50) NOT NULL DEFAULT 'semantic',
		text TEXT NOT NULL,
		source VARCHAR(500),
		tags TEXT[] NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}',
		embedding vector(1536),
		embedding_model VARCHAR(255),
		embedding_dimension INTEGER,
		salience DOUBLE PRECISION NOT NULL DEFAULT 0.7,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0.6,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_memory_records_tags ON mega_agent.memory_records USING GIN (tags)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_records_namespace_user ON mega_agent.memory_records (namespace, user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_records_case ON mega_agent.memory_records (case_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_records_embedding_hnsw ON mega_agent.memory_records
		USING hnsw (embedding vector_cosine_ops)`,

	`CREATE TABLE IF NOT EXISTS mega_agent.audit_events (
		event_id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		"timestamp" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		user_id VARCHAR(255),
		thread_id VARCHAR(255) NOT NULL DEFAULT 'global',
		source VARCHAR(255) NOT NULL,
		action VARCHAR(255) NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		tags TEXT[] NOT NULL DEFAULT '{}'
	)`,

	`CREATE INDEX IF NOT EXISTS idx_audit_events_thread_ts ON mega_agent.audit_events (thread_id, "timestamp")`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON mega_agent.audit_events ("timestamp")`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_tags ON mega_agent.audit_events USING GIN (tags)`,

	`CREATE TABLE IF NOT EXISTS mega_agent.rmt_buffers (
		thread_id VARCHAR(255) PRIMARY KEY,
		slots JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_rmt_buffers_expires_at ON mega_agent.rmt_buffers (expires_at)`,
}
