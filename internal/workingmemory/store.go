// Package workingmemory holds the per-thread RMT (recent/rolling) buffer:
// small rolling slots of summarized context, last-writer-wins, with a
// bounded lifetime.
//
// The buffer shape (a thread_id-keyed map of string slots, full-replace on
// write) is ported from original_source/core/memory/stores/working_memory.py.
// The background sweep loop (ticker, context cancellation, atomic sweep-run/
// expired/active counters) reprises the idiom of the reference's cache
// expiration manager, here with a 10-minute default sweep interval (and a
// 30-minute default TTL) appropriate to a rolling working-set buffer rather
// than the reference's 1-minute tiered-cache sweep.
package workingmemory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vasic-digital/memcore/internal/memcore"
)

// Backend is the minimal surface a Hierarchy needs from a working-memory
// store: set and fetch the full per-thread slot map. Store (in-process) and
// RedisStore (shared across instances) both satisfy it.
type Backend interface {
	SetBuffer(threadID string, slots map[string]string)
	GetBuffer(threadID string) (memcore.RMTBuffer, bool)
}

// DefaultSweepInterval is how often expired buffers are swept when no
// override is configured.
const DefaultSweepInterval = 10 * time.Minute

// DefaultTTL is how long a buffer survives without being rewritten.
const DefaultTTL = 30 * time.Minute

// Metrics tracks sweep activity for observability.
type Metrics struct {
	SweepRuns   int64
	Expired     int64
	ActiveCount int64
}

// Store is an in-process, mutex-guarded RMT buffer store with a background
// TTL sweep.
type Store struct {
	mu      sync.RWMutex
	buffers map[string]memcore.RMTBuffer
	ttl     time.Duration
	log     *logrus.Logger

	metrics Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New constructs a Store with an empty buffer set. Call Start to begin the
// background sweep loop.
func New(log *logrus.Logger, opts ...Option) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{
		buffers: make(map[string]memcore.RMTBuffer),
		ttl:     DefaultTTL,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBuffer replaces the slots for threadID wholesale (last-writer-wins) and
// resets its expiry.
func (s *Store) SetBuffer(threadID string, slots map[string]string) {
	now := time.Now().UTC()
	expires := now.Add(s.ttl)

	copied := make(map[string]string, len(slots))
	for k, v := range slots {
		copied[k] = v
	}

	s.mu.Lock()
	s.buffers[threadID] = memcore.RMTBuffer{
		ThreadID:  threadID,
		Slots:     copied,
		UpdatedAt: now,
		ExpiresAt: &expires,
	}
	atomic.StoreInt64(&s.metrics.ActiveCount, int64(len(s.buffers)))
	s.mu.Unlock()
}

// GetBuffer returns the buffer for threadID and whether it exists and has
// not expired.
func (s *Store) GetBuffer(threadID string) (memcore.RMTBuffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.buffers[threadID]
	if !ok {
		return memcore.RMTBuffer{}, false
	}
	if buf.ExpiresAt != nil && time.Now().UTC().After(*buf.ExpiresAt) {
		return memcore.RMTBuffer{}, false
	}
	return buf, true
}

// DeleteBuffer removes threadID's buffer, if any.
func (s *Store) DeleteBuffer(threadID string) {
	s.mu.Lock()
	delete(s.buffers, threadID)
	atomic.StoreInt64(&s.metrics.ActiveCount, int64(len(s.buffers)))
	s.mu.Unlock()
}

// ListAll returns a snapshot of every non-expired buffer.
func (s *Store) ListAll() []memcore.RMTBuffer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	out := make([]memcore.RMTBuffer, 0, len(s.buffers))
	for _, buf := range s.buffers {
		if buf.ExpiresAt != nil && now.After(*buf.ExpiresAt) {
			continue
		}
		out = append(out, buf)
	}
	return out
}

// Metrics returns a point-in-time snapshot of sweep activity.
func (s *Store) Metrics() Metrics {
	return Metrics{
		SweepRuns:   atomic.LoadInt64(&s.metrics.SweepRuns),
		Expired:     atomic.LoadInt64(&s.metrics.Expired),
		ActiveCount: atomic.LoadInt64(&s.metrics.ActiveCount),
	}
}

// Start launches the background sweep loop at the given interval (falling
// back to DefaultSweepInterval when interval <= 0). Safe to call once per
// Store; a second call is a no-op.
func (s *Store) Start(ctx context.Context, interval time.Duration) {
	if s.cancel != nil {
		return
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.sweepLoop(ctx, interval)
}

// Stop cancels the background sweep loop and waits for it to exit.
func (s *Store) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Store) sweepLoop(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := time.Now().UTC()
	var expired int64

	s.mu.Lock()
	for threadID, buf := range s.buffers {
		if buf.ExpiresAt != nil && now.After(*buf.ExpiresAt) {
			delete(s.buffers, threadID)
			expired++
		}
	}
	active := int64(len(s.buffers))
	s.mu.Unlock()

	atomic.AddInt64(&s.metrics.SweepRuns, 1)
	atomic.AddInt64(&s.metrics.Expired, expired)
	atomic.StoreInt64(&s.metrics.ActiveCount, active)

	if expired > 0 {
		s.log.WithFields(logrus.Fields{"expired": expired, "active": active}).Debug("workingmemory.sweep")
	}
}
