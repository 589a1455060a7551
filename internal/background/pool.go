package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vasic-digital/memcore/internal/memcore/errs"
)

// Job is one unit of work submitted to a Pool. Type labels metrics and log
// lines; Run does the actual work and should respect ctx's deadline.
type Job struct {
	Type string
	Run  func(ctx context.Context) error
}

// Config configures a Pool.
type Config struct {
	Workers         int
	QueueSize       int
	JobTimeout      time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a small fixed-size pool suitable for ingestion
// workers and periodic sweep jobs, not a high-throughput task queue.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       64,
		JobTimeout:      5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs a fixed number of workers pulling Jobs off a bounded channel.
// Submit is non-blocking: a full queue returns an error rather than
// applying backpressure, since callers (ingestion HTTP handlers, sweep
// schedulers) are expected to treat a full queue as "try again shortly"
// rather than stall.
type Pool struct {
	cfg     Config
	jobs    chan Job
	log     *logrus.Logger
	metrics *Metrics

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewPool constructs a Pool. Zero-valued Config fields fall back to
// DefaultConfig. metrics may be nil to skip Prometheus instrumentation
// (tests commonly do this to avoid repeated registration).
func NewPool(cfg Config, log *logrus.Logger, metrics *Metrics) *Pool {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Pool{cfg: cfg, jobs: make(chan Job, cfg.QueueSize), log: log, metrics: metrics}
}

// Start launches the fixed worker set. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}

	p.log.WithField("workers", p.cfg.Workers).Info("background.pool.start")
}

// Stop cancels all workers and waits up to ShutdownTimeout for in-flight
// jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.started = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("background.pool.stopped")
	case <-time.After(p.cfg.ShutdownTimeout):
		p.log.Warn("background.pool.stop_timeout")
	}
}

// Submit enqueues job for execution, failing fast if the queue is full.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		if p.metrics != nil {
			p.metrics.QueueDepth.Set(float64(len(p.jobs)))
		}
		return nil
	default:
		if p.metrics != nil {
			p.metrics.JobsTotal.WithLabelValues(job.Type, "rejected").Inc()
		}
		return errs.Store("background: job queue full (size %d)", p.cfg.QueueSize)
	}
}

func (p *Pool) workerLoop(ctx context.Context, workerIdx int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.runJob(ctx, job, workerIdx)
		}
	}
}

func (p *Pool) runJob(ctx context.Context, job Job, workerIdx int) {
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("background: job %s panicked: %v", job.Type, r)
			}
		}()
		return job.Run(jobCtx)
	}()
	duration := time.Since(start)

	status := "completed"
	if err != nil {
		status = "failed"
		p.log.WithFields(logrus.Fields{
			"job_type": job.Type,
			"worker":   workerIdx,
			"error":    err,
		}).Warn("background.job.failed")
	}

	if p.metrics != nil {
		p.metrics.JobsTotal.WithLabelValues(job.Type, status).Inc()
		p.metrics.JobDuration.WithLabelValues(job.Type).Observe(duration.Seconds())
		p.metrics.QueueDepth.Set(float64(len(p.jobs)))
	}
}

// QueueDepth returns the number of jobs currently waiting.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}
