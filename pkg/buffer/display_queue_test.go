package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/T3-Labs/edge-av1/pkg/frame"
)

func newPool(t testing.TB) *frame.BufferPool {
	pool := frame.NewBufferPool(frame.Callbacks{}, 0)
	t.Cleanup(pool.Close)
	return pool
}

func newDisplayFrame(t testing.TB, pool *frame.BufferPool, sequence int64) DisplayFrame {
	handle, err := pool.GetFreeBuffer()
	require.NoError(t, err)
	return DisplayFrame{Handle: handle, Sequence: sequence, Timestamp: time.Now()}
}

func TestNewDisplayQueue(t *testing.T) {
	queue := NewDisplayQueue(10)

	assert.NotNil(t, queue)
	assert.Equal(t, 10, queue.Capacity())
	assert.Equal(t, 0, queue.Size())
}

func TestDisplayQueuePushPop(t *testing.T) {
	pool := newPool(t)
	queue := NewDisplayQueue(5)

	require.NoError(t, queue.Push(newDisplayFrame(t, pool, 7)))
	assert.Equal(t, 1, queue.Size())

	popped, ok := queue.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(7), popped.Sequence)
	popped.Handle.Release()
}

func TestDisplayQueuePushFullReleasesOldest(t *testing.T) {
	pool := newPool(t)
	queue := NewDisplayQueue(2)

	assert.NoError(t, queue.Push(newDisplayFrame(t, pool, 1)))
	assert.NoError(t, queue.Push(newDisplayFrame(t, pool, 2)))
	assert.Equal(t, 2, pool.Stats().InUse)

	err := queue.Push(newDisplayFrame(t, pool, 3))
	assert.ErrorIs(t, err, ErrFrameDropped)
	assert.Equal(t, 2, pool.Stats().InUse, "dropped frame returns to the pool")

	stats := queue.Stats()
	assert.Equal(t, int64(1), stats.DroppedFrames)
	assert.Equal(t, int64(3), stats.TotalFrames)

	for _, want := range []int64{2, 3} {
		popped, ok := queue.Pop()
		require.True(t, ok)
		assert.Equal(t, want, popped.Sequence)
		popped.Handle.Release()
	}
}

func TestDisplayQueueHoldsSecondReference(t *testing.T) {
	pool := newPool(t)
	queue := NewDisplayQueue(1)

	reference := newDisplayFrame(t, pool, 1)
	require.NoError(t, queue.Push(DisplayFrame{Handle: reference.Handle.Clone(), Sequence: 1}))
	require.ErrorIs(t, queue.Push(newDisplayFrame(t, pool, 2)), ErrFrameDropped)

	assert.Equal(t, 2, pool.Stats().InUse, "the reference holder keeps frame 1 alive")
	reference.Handle.Release()
	assert.Equal(t, 1, pool.Stats().InUse)

	queue.Close()
	assert.Equal(t, 0, pool.Stats().InUse)
}

func TestDisplayQueuePopEmpty(t *testing.T) {
	queue := NewDisplayQueue(5)

	_, ok := queue.Pop()
	assert.False(t, ok)
}

func TestDisplayQueueStats(t *testing.T) {
	pool := newPool(t)
	queue := NewDisplayQueue(3)

	for i := 0; i < 5; i++ {
		_ = queue.Push(newDisplayFrame(t, pool, int64(i)))
	}

	stats := queue.Stats()
	assert.Equal(t, int64(5), stats.TotalFrames)
	assert.Equal(t, int64(2), stats.DroppedFrames)
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, 3, stats.Capacity)

	dropRate := (float64(2) / float64(5)) * 100
	assert.InDelta(t, dropRate, stats.DropRate, 0.01)
	assert.Equal(t, "Queue: 3/3, Total: 5, Dropped: 2 (40.00%)", stats.String())

	queue.Close()
}

func TestDisplayQueueCloseReleasesFrames(t *testing.T) {
	pool := newPool(t)
	queue := NewDisplayQueue(5)

	_ = queue.Push(newDisplayFrame(t, pool, 1))
	_ = queue.Push(newDisplayFrame(t, pool, 2))
	queue.Close()

	assert.Equal(t, 0, pool.Stats().InUse)
	_, ok := queue.PopBlocking(context.Background())
	assert.False(t, ok)
}

func TestDisplayQueuePopBlockingCancelled(t *testing.T) {
	queue := NewDisplayQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := queue.PopBlocking(ctx)
	assert.False(t, ok)
}

func TestDisplayQueueConcurrent(t *testing.T) {
	pool := newPool(t)
	queue := NewDisplayQueue(4)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			handle, err := pool.GetFreeBuffer()
			if err != nil {
				return
			}
			_ = queue.Push(DisplayFrame{Handle: handle, Sequence: int64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if f, ok := queue.Pop(); ok {
				f.Handle.Release()
			}
			time.Sleep(time.Millisecond)
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(50), queue.Stats().TotalFrames)
	queue.Close()
	assert.Equal(t, 0, pool.Stats().InUse)
}

func BenchmarkDisplayQueuePush(b *testing.B) {
	pool := newPool(b)
	queue := NewDisplayQueue(16)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handle, err := pool.GetFreeBuffer()
		if err != nil {
			b.Fatal(err)
		}
		_ = queue.Push(DisplayFrame{Handle: handle, Sequence: int64(i)})
	}
	b.StopTimer()
	queue.Close()
}
