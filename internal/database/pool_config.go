package database

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfigOptions provides configurable pool settings
type PoolConfigOptions struct {
	// Maximum number of connections in the pool
	MaxConns int32
	// Minimum number of connections to maintain
	MinConns int32
	// Maximum lifetime of a connection
	MaxConnLifetime time.Duration
	// Maximum idle time for a connection
	MaxConnIdleTime time.Duration
	// Health check period
	HealthCheckPeriod time.Duration
	// Connection timeout
	ConnectTimeout time.Duration
	// Enable prepared statement caching
	EnableStatementCache bool
	// Statement cache capacity
	StatementCacheCapacity int
	// Use simple protocol (faster for simple queries)
	PreferSimpleProtocol bool
	// Application name for connection identification
	ApplicationName string
	// StatementTimeout bounds every query run on a connection from this
	// pool; set via AfterConnect so it survives pgx's internal reconnects.
	StatementTimeout time.Duration
}

// SemanticStorePoolOptions tunes the pool for the semantic store's workload:
// pgvector HNSW similarity search plus occasional upserts. Queries are
// shaped identically (same parameterized SELECT/INSERT text with a varying
// vector literal), so statement caching pays for itself; connections are
// long-lived since search traffic is steady rather than bursty.
func SemanticStorePoolOptions() *PoolConfigOptions {
	cpuCount := int32(runtime.NumCPU()) // #nosec G115 - CPU count fits in int32
	maxConns := cpuCount*2 + 1
	if maxConns < 10 {
		maxConns = 10
	}
	if maxConns > 50 {
		maxConns = 50
	}

	return &PoolConfigOptions{
		MaxConns:               maxConns,
		MinConns:               cpuCount / 2,
		MaxConnLifetime:        time.Hour,
		MaxConnIdleTime:        30 * time.Minute,
		HealthCheckPeriod:      30 * time.Second,
		ConnectTimeout:         5 * time.Second,
		EnableStatementCache:   true,
		StatementCacheCapacity: 512,
		PreferSimpleProtocol:   false,
		ApplicationName:        "memcore-semantic",
		StatementTimeout:       30 * time.Second,
	}
}

// EpisodicStorePoolOptions tunes the pool for the episodic store's workload:
// high-throughput, low-latency appends of audit events plus occasional
// thread/time-window reads. Appends are single-row INSERTs with no benefit
// from a large statement cache, so the simple protocol (one round trip, no
// server-side prepare) is preferred; connections churn faster to avoid
// holding onto idle appenders between bursts of agent activity.
func EpisodicStorePoolOptions() *PoolConfigOptions {
	cpuCount := int32(runtime.NumCPU()) // #nosec G115 - CPU count fits in int32
	maxConns := cpuCount * 3
	if maxConns < 15 {
		maxConns = 15
	}
	if maxConns > 60 {
		maxConns = 60
	}

	return &PoolConfigOptions{
		MaxConns:               maxConns,
		MinConns:               cpuCount,
		MaxConnLifetime:        20 * time.Minute,
		MaxConnIdleTime:        5 * time.Minute,
		HealthCheckPeriod:      15 * time.Second,
		ConnectTimeout:         3 * time.Second,
		EnableStatementCache:   false,
		StatementCacheCapacity: 0,
		PreferSimpleProtocol:   true,
		ApplicationName:        "memcore-episodic",
		StatementTimeout:       10 * time.Second,
	}
}

// ConsolidationPoolOptions tunes the pool for the background consolidation
// job: a single long-running batch that lists a large slice of semantic
// records, scores and merges them, and writes the result back. Few
// connections are needed (the job is sequential, not fanned out across
// goroutines), but each must tolerate a much longer statement timeout than
// the interactive paths since a dedup pass over a large corpus is
// legitimately slow.
func ConsolidationPoolOptions() *PoolConfigOptions {
	return &PoolConfigOptions{
		MaxConns:               4,
		MinConns:               0,
		MaxConnLifetime:        2 * time.Hour,
		MaxConnIdleTime:        10 * time.Minute,
		HealthCheckPeriod:      time.Minute,
		ConnectTimeout:         10 * time.Second,
		EnableStatementCache:   true,
		StatementCacheCapacity: 64,
		PreferSimpleProtocol:   false,
		ApplicationName:        "memcore-consolidation",
		StatementTimeout:       5 * time.Minute,
	}
}

// CreateOptimizedPoolConfig creates a pgxpool.Config with optimized settings
func CreateOptimizedPoolConfig(connString string, opts *PoolConfigOptions) (*pgxpool.Config, error) {
	if opts == nil {
		opts = SemanticStorePoolOptions()
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	// Pool size settings
	config.MaxConns = opts.MaxConns
	config.MinConns = opts.MinConns
	config.MaxConnLifetime = opts.MaxConnLifetime
	config.MaxConnIdleTime = opts.MaxConnIdleTime
	config.HealthCheckPeriod = opts.HealthCheckPeriod

	// Connection settings
	config.ConnConfig.ConnectTimeout = opts.ConnectTimeout

	// Runtime parameters
	config.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName

	// Statement cache configuration
	if opts.EnableStatementCache {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
		if opts.StatementCacheCapacity > 0 {
			config.ConnConfig.StatementCacheCapacity = opts.StatementCacheCapacity
		}
	}

	// Simple protocol for faster simple queries
	if opts.PreferSimpleProtocol {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	statementTimeout := opts.StatementTimeout
	if statementTimeout <= 0 {
		statementTimeout = 30 * time.Second
	}

	// Configure after connect hook for additional setup. Episodic and
	// semantic writes must survive a crash, so synchronous_commit stays on;
	// only a statement timeout is applied to bound runaway queries, sized
	// per-workload rather than a single fixed constant.
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = '%dms'", statementTimeout.Milliseconds()))
		if err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
		return nil
	}

	return config, nil
}
