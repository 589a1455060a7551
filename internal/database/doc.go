// Package database provides the Postgres/pgvector connection pool and
// schema bootstrap shared by the semantic store, episodic store, and
// working-memory store.
//
// # Connection
//
//	cfg := config.Load()
//	db, err := database.NewPostgresDB(ctx, cfg, logrus.StandardLogger())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := database.Bootstrap(ctx, db.Pool()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Schema
//
// A single logical schema, "mega_agent", holds three tables:
//
//	memory_records - semantic store rows, one vector(D) column per row
//	audit_events   - append-only episodic timeline
//	rmt_buffers    - one row per thread, full-replace working memory
//
// The "vector" extension must be installed; Bootstrap creates it if missing.
//
// # Pooling
//
// pool_config.go builds a tuned *pgxpool.Config (size, lifetimes, health
// checks, statement caching, a per-connection statement_timeout) from a
// PoolConfigOptions profile. NewPostgresDB starts from
// SemanticStorePoolOptions, the read-heavy pgvector workload the shared pool
// spends most of its time on, and layers the operator's configured sizing on
// top. EpisodicStorePoolOptions and ConsolidationPoolOptions describe the
// other two workloads shaped against this schema (high-throughput event
// appends, and the sequential background consolidation job) and are
// available to callers that give a store its own dedicated pool.
package database
