package workingmemory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vasic-digital/memcore/internal/memcore"
	"github.com/vasic-digital/memcore/internal/memcore/errs"
)

// RedisStore is a Redis-backed RMT buffer store for deployments that run
// more than one memcore process against the same thread set. It implements
// Backend the same way Store does; the slot map is JSON-encoded and stored
// under a single key per thread with a native Redis TTL, so expiry is
// handled by Redis rather than a local sweep loop.
//
// Grounded on internal/cache/redis.go's wrapper (a thin client plus
// JSON marshal/unmarshal around Set/Get), adapted from a generic cache
// value to the RMTBuffer shape.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	log       *logrus.Logger
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// NewRedisStore constructs a RedisStore. Zero-valued TTL falls back to
// DefaultTTL; zero-valued KeyPrefix falls back to "memcore:rmt:".
func NewRedisStore(cfg RedisConfig, log *logrus.Logger) *RedisStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "memcore:rmt:"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, ttl: cfg.TTL, keyPrefix: cfg.KeyPrefix, log: log}
}

// NewRedisStoreWithClient wraps an already-constructed *redis.Client,
// letting tests point a RedisStore at a miniredis instance without the
// Addr/Password/DB plumbing above.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration, log *logrus.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisStore{client: client, ttl: ttl, keyPrefix: "memcore:rmt:", log: log}
}

func (r *RedisStore) key(threadID string) string {
	return r.keyPrefix + threadID
}

// SetBuffer replaces the slots for threadID and resets its TTL. Errors are
// logged rather than returned, matching Store's fire-and-forget SetBuffer
// signature; a failed write is observable via GetBuffer returning false.
func (r *RedisStore) SetBuffer(threadID string, slots map[string]string) {
	now := time.Now().UTC()
	buf := memcore.RMTBuffer{ThreadID: threadID, Slots: slots, UpdatedAt: now}

	data, err := json.Marshal(buf)
	if err != nil {
		r.log.WithError(err).Warn("workingmemory.redis.marshal_failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.client.Set(ctx, r.key(threadID), data, r.ttl).Err(); err != nil {
		r.log.WithFields(logrus.Fields{"thread_id": threadID, "error": err}).Warn("workingmemory.redis.set_failed")
	}
}

// GetBuffer fetches threadID's buffer. A cache miss (key absent or expired)
// and a connection error are both reported as (zero value, false); callers
// cannot distinguish "no buffer" from "Redis unreachable" through this
// method, matching the reference RedisClient.Get's redis.Nil-swallowing
// fallback behavior.
func (r *RedisStore) GetBuffer(threadID string) (memcore.RMTBuffer, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(threadID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.WithFields(logrus.Fields{"thread_id": threadID, "error": err}).Warn("workingmemory.redis.get_failed")
		}
		return memcore.RMTBuffer{}, false
	}

	var buf memcore.RMTBuffer
	if err := json.Unmarshal(data, &buf); err != nil {
		r.log.WithError(err).Warn("workingmemory.redis.unmarshal_failed")
		return memcore.RMTBuffer{}, false
	}
	return buf, true
}

// DeleteBuffer removes threadID's key, if present.
func (r *RedisStore) DeleteBuffer(threadID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.client.Del(ctx, r.key(threadID)).Err(); err != nil {
		return errs.Store("workingmemory: delete buffer for %s: %v", threadID, err)
	}
	return nil
}

// HealthCheck pings the Redis connection.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errs.Store("workingmemory: redis health check: %v", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
