package background_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasic-digital/memcore/internal/background"
)

func TestMain(m *testing.M) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	m.Run()
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestPoolRunsSubmittedJobs(t *testing.T) {
	pool := background.NewPool(background.Config{Workers: 2, QueueSize: 4}, testLogger(), nil)
	pool.Start(context.Background())
	defer pool.Stop()

	var ran int32
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		err := pool.Submit(background.Job{
			Type: "test",
			Run: func(ctx context.Context) error {
				defer wg.Done()
				atomic.AddInt32(&ran, 1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.EqualValues(t, 3, atomic.LoadInt32(&ran))
}

func TestPoolSubmitFailsFastWhenQueueFull(t *testing.T) {
	pool := background.NewPool(background.Config{Workers: 1, QueueSize: 1}, testLogger(), nil)
	// Not started: nothing drains the queue, so it fills after one submit.
	block := make(chan struct{})
	defer close(block)

	require.NoError(t, pool.Submit(background.Job{Type: "t", Run: func(ctx context.Context) error {
		<-block
		return nil
	}}))
	err := pool.Submit(background.Job{Type: "t", Run: func(ctx context.Context) error { return nil }})
	assert.Error(t, err)
}

func TestPoolRecoversPanickingJob(t *testing.T) {
	pool := background.NewPool(background.Config{Workers: 1, QueueSize: 2}, testLogger(), nil)
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(background.Job{
		Type: "panicky",
		Run: func(ctx context.Context) error {
			defer close(done)
			panic("boom")
		},
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("panicking job never returned control to the worker")
	}

	var ran int32
	require.NoError(t, pool.Submit(background.Job{
		Type: "after",
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		},
	}))
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestPoolJobErrorDoesNotStopWorker(t *testing.T) {
	pool := background.NewPool(background.Config{Workers: 1, QueueSize: 2}, testLogger(), nil)
	pool.Start(context.Background())
	defer pool.Stop()

	require.NoError(t, pool.Submit(background.Job{Type: "fails", Run: func(ctx context.Context) error {
		return errors.New("nope")
	}}))

	var ran int32
	require.NoError(t, pool.Submit(background.Job{Type: "ok", Run: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}}))
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestPoolStartIsIdempotent(t *testing.T) {
	pool := background.NewPool(background.Config{Workers: 2, QueueSize: 2}, testLogger(), nil)
	pool.Start(context.Background())
	pool.Start(context.Background())
	defer pool.Stop()

	var ran int32
	require.NoError(t, pool.Submit(background.Job{Type: "t", Run: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}}))
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestPoolStopWaitsForInFlightJobs(t *testing.T) {
	pool := background.NewPool(background.Config{Workers: 1, QueueSize: 1, ShutdownTimeout: time.Second}, testLogger(), nil)
	pool.Start(context.Background())

	var finished int32
	require.NoError(t, pool.Submit(background.Job{Type: "slow", Run: func(ctx context.Context) error {
		time.Sleep(100 * time.Millisecond)
		atomic.AddInt32(&finished, 1)
		return nil
	}}))

	pool.Stop()
	assert.EqualValues(t, 1, atomic.LoadInt32(&finished))
}

func TestDefaultConfigFillsZeroValues(t *testing.T) {
	pool := background.NewPool(background.Config{}, nil, nil)
	require.NotNil(t, pool)
	assert.Equal(t, 0, pool.QueueDepth())

	// Not started, so nothing drains the queue: it holds exactly the
	// default QueueSize before rejecting.
	def := background.DefaultConfig()
	for i := 0; i < def.QueueSize; i++ {
		require.NoError(t, pool.Submit(background.Job{Type: "t", Run: func(ctx context.Context) error { return nil }}))
	}
	assert.Equal(t, def.QueueSize, pool.QueueDepth())
	assert.Error(t, pool.Submit(background.Job{Type: "t", Run: func(ctx context.Context) error { return nil }}))
}

func TestNewMetricsRegistersInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := background.NewMetrics(reg)
	require.NotNil(t, m)

	pool := background.NewPool(background.Config{Workers: 1, QueueSize: 2}, testLogger(), m)
	pool.Start(context.Background())
	defer pool.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Submit(background.Job{Type: "metered", Run: func(ctx context.Context) error {
		defer wg.Done()
		return nil
	}}))
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	count := testutil.ToFloat64(m.JobsTotal.WithLabelValues("metered", "completed"))
	assert.Equal(t, float64(1), count)
}
