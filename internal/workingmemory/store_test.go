package workingmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetBuffer(t *testing.T) {
	s := New(nil)
	s.SetBuffer("thread-1", map[string]string{"persona": "careful assistant"})

	buf, ok := s.GetBuffer("thread-1")
	require.True(t, ok)
	assert.Equal(t, "careful assistant", buf.Slots["persona"])
}

func TestSetBufferIsLastWriterWins(t *testing.T) {
	s := New(nil)
	s.SetBuffer("thread-1", map[string]string{"a": "1", "b": "2"})
	s.SetBuffer("thread-1", map[string]string{"a": "3"})

	buf, ok := s.GetBuffer("thread-1")
	require.True(t, ok)
	assert.Equal(t, "3", buf.Slots["a"])
	_, hasB := buf.Slots["b"]
	assert.False(t, hasB)
}

func TestSetBufferCopiesInput(t *testing.T) {
	s := New(nil)
	slots := map[string]string{"a": "1"}
	s.SetBuffer("thread-1", slots)
	slots["a"] = "mutated"

	buf, ok := s.GetBuffer("thread-1")
	require.True(t, ok)
	assert.Equal(t, "1", buf.Slots["a"])
}

func TestGetBufferMissing(t *testing.T) {
	s := New(nil)
	_, ok := s.GetBuffer("nonexistent")
	assert.False(t, ok)
}

func TestExpiredBufferIsNotReturned(t *testing.T) {
	s := New(nil, WithTTL(-time.Second))
	s.SetBuffer("thread-1", map[string]string{"a": "1"})

	_, ok := s.GetBuffer("thread-1")
	assert.False(t, ok)
}

func TestDeleteBuffer(t *testing.T) {
	s := New(nil)
	s.SetBuffer("thread-1", map[string]string{"a": "1"})
	s.DeleteBuffer("thread-1")

	_, ok := s.GetBuffer("thread-1")
	assert.False(t, ok)
}

func TestListAllExcludesExpired(t *testing.T) {
	s := New(nil, WithTTL(time.Hour))
	s.SetBuffer("keep", map[string]string{"a": "1"})

	expired := New(nil, WithTTL(-time.Second))
	expired.SetBuffer("gone", map[string]string{"a": "1"})
	s.buffers["gone"] = expired.buffers["gone"]

	all := s.ListAll()
	require.Len(t, all, 1)
	assert.Equal(t, "keep", all[0].ThreadID)
}

func TestSweepRemovesExpiredAndUpdatesMetrics(t *testing.T) {
	s := New(nil, WithTTL(time.Millisecond))
	s.SetBuffer("thread-1", map[string]string{"a": "1"})
	time.Sleep(5 * time.Millisecond)

	s.sweep()

	m := s.Metrics()
	assert.Equal(t, int64(1), m.SweepRuns)
	assert.Equal(t, int64(1), m.Expired)
	assert.Equal(t, int64(0), m.ActiveCount)
}

func TestStartStopSweepLoop(t *testing.T) {
	s := New(nil, WithTTL(time.Millisecond))
	s.SetBuffer("thread-1", map[string]string{"a": "1"})

	ctx := context.Background()
	s.Start(ctx, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	m := s.Metrics()
	assert.True(t, m.SweepRuns >= 1)
}

func TestStartIsIdempotent(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	s.Start(ctx, time.Hour)
	s.Start(ctx, time.Hour)
	s.Stop()
}
