package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPool(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, "test", 5, 10)

	assert.NotNil(t, pool)
	assert.Equal(t, 5, pool.NumThreads())
	assert.Equal(t, 10, cap(pool.jobs))

	pool.Close()
}

func TestPoolBufferAtLeastWorkers(t *testing.T) {
	pool := NewPool(context.Background(), "test", 4, 1)
	defer pool.Close()

	assert.Equal(t, 4, cap(pool.jobs))
}

func TestPoolScheduleWithCounter(t *testing.T) {
	pool := NewPool(context.Background(), "test", 3, 8)
	defer pool.Close()

	const jobs = 50
	var processed int32
	counter := NewBlockingCounter(jobs)
	for i := 0; i < jobs; i++ {
		pool.Schedule(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&processed, 1)
			counter.Decrement()
		})
	}
	counter.Wait()

	assert.Equal(t, int32(jobs), atomic.LoadInt32(&processed))
}

func TestPoolWithoutWorkersRunsInline(t *testing.T) {
	pool := NewPool(context.Background(), "inline", 0, 0)
	defer pool.Close()

	ran := false
	pool.Schedule(func() { ran = true })

	assert.True(t, ran)
	assert.Equal(t, int64(1), pool.Stats().Inline)
}

func TestPoolScheduleAfterClose(t *testing.T) {
	pool := NewPool(context.Background(), "test", 2, 4)
	pool.Close()

	ran := false
	pool.Schedule(func() { ran = true })
	assert.True(t, ran)

	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolSubmitQueueFull(t *testing.T) {
	pool := NewPool(context.Background(), "test", 1, 1)
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	assert.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	assert.NoError(t, pool.Submit(func() {}))
	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
}

func TestPoolCloseDrainsQueue(t *testing.T) {
	pool := NewPool(context.Background(), "test", 2, 16)

	var processed int32
	for i := 0; i < 16; i++ {
		pool.Schedule(func() {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&processed, 1)
		})
	}
	pool.Close()

	assert.Equal(t, int32(16), atomic.LoadInt32(&processed))
	stats := pool.Stats()
	assert.Equal(t, int64(16), stats.TotalProcessed)
	assert.Equal(t, 0, stats.Processing)
}

func TestBlockingCounterZero(t *testing.T) {
	counter := NewBlockingCounter(0)

	done := make(chan struct{})
	go func() {
		counter.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait on a zero counter must not block")
	}
}

func TestBlockingCounterUnderflowPanics(t *testing.T) {
	counter := NewBlockingCounter(1)
	counter.Decrement()

	assert.Panics(t, counter.Decrement)
}

func TestPoolStatsString(t *testing.T) {
	stats := PoolStats{Workers: 3, QueueSize: 1, Capacity: 8, Processing: 2, TotalProcessed: 10, Inline: 4}
	assert.Equal(t, "Workers: 3, Queue: 1/8, Processing: 2, Total: 10 (inline: 4)", stats.String())
}

func BenchmarkPoolSchedule(b *testing.B) {
	pool := NewPool(context.Background(), "bench", 4, 1024)
	defer pool.Close()

	counter := NewBlockingCounter(b.N)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Schedule(counter.Decrement)
	}
	counter.Wait()
}
