package workingmemory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreWithClient(client, time.Minute, nil)
}

func TestRedisStoreSetAndGetRoundTrips(t *testing.T) {
	store := newTestRedisStore(t)

	store.SetBuffer("thread-1", map[string]string{"summary": "hello"})

	buf, ok := store.GetBuffer("thread-1")
	require.True(t, ok)
	assert.Equal(t, "thread-1", buf.ThreadID)
	assert.Equal(t, "hello", buf.Slots["summary"])
}

func TestRedisStoreGetMissingThreadReturnsFalse(t *testing.T) {
	store := newTestRedisStore(t)

	_, ok := store.GetBuffer("no-such-thread")
	assert.False(t, ok)
}

func TestRedisStoreDeleteBufferRemovesKey(t *testing.T) {
	store := newTestRedisStore(t)
	store.SetBuffer("thread-2", map[string]string{"a": "b"})

	require.NoError(t, store.DeleteBuffer("thread-2"))

	_, ok := store.GetBuffer("thread-2")
	assert.False(t, ok)
}

func TestRedisStoreHealthCheck(t *testing.T) {
	store := newTestRedisStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestRedisStoreSetBufferOverwritesPreviousSlots(t *testing.T) {
	store := newTestRedisStore(t)
	store.SetBuffer("thread-3", map[string]string{"a": "1"})
	store.SetBuffer("thread-3", map[string]string{"b": "2"})

	buf, ok := store.GetBuffer("thread-3")
	require.True(t, ok)
	_, hasA := buf.Slots["a"]
	assert.False(t, hasA)
	assert.Equal(t, "2", buf.Slots["b"])
}

func TestRedisStoreSatisfiesBackendInterface(t *testing.T) {
	var _ Backend = (*RedisStore)(nil)
}
