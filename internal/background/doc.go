// Package background runs a small bounded worker pool for jobs that should
// not block the request path: document ingestion and periodic maintenance
// sweeps (working-memory TTL expiry, episodic purge, consolidation runs).
//
// Unlike a general persistent task queue, this pool holds no state beyond
// the process lifetime: jobs are plain closures submitted to a bounded
// channel and picked up by a fixed set of workers. Grounded on
// internal/background/worker_pool.go's AdaptiveWorkerPool for the
// worker-loop/graceful-shutdown shape, trimmed of the PID-based resource
// monitoring, stuck-task detection, and Postgres-backed dead-letter queue
// that shape carried for its original long-running-agent-task domain — none
// of which this ingestion/sweep workload needs.
package background
