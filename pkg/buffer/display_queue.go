package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/T3-Labs/edge-av1/pkg/frame"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

var ErrFrameDropped = errors.New("display queue full: oldest frame dropped")

// DisplayFrame is a decoded frame waiting to be shown. The queue owns Handle
// until the frame is popped; the popper must release it.
type DisplayFrame struct {
	Handle    *frame.Handle
	Sequence  int64
	Timestamp time.Time
}

// DisplayQueue is a bounded queue of output frames. When it is full the oldest
// frame is dropped and its handle released so the pool can recycle the slot.
type DisplayQueue struct {
	mu            sync.Mutex
	buffer        chan DisplayFrame
	capacity      int
	droppedFrames int64
	totalFrames   int64
}

func NewDisplayQueue(capacity int) *DisplayQueue {
	return &DisplayQueue{
		buffer:   make(chan DisplayFrame, capacity),
		capacity: capacity,
	}
}

func (q *DisplayQueue) Push(f DisplayFrame) error {
	atomic.AddInt64(&q.totalFrames, 1)
	defer q.updateGauge()

	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.buffer <- f:
		return nil
	default:
		select {
		case dropped := <-q.buffer:
			dropped.Handle.Release()
		default:
		}
		q.buffer <- f
		atomic.AddInt64(&q.droppedFrames, 1)
		return ErrFrameDropped
	}
}

func (q *DisplayQueue) Pop() (DisplayFrame, bool) {
	defer q.updateGauge()
	select {
	case f := <-q.buffer:
		return f, true
	default:
		return DisplayFrame{}, false
	}
}

func (q *DisplayQueue) PopBlocking(ctx context.Context) (DisplayFrame, bool) {
	defer q.updateGauge()
	select {
	case <-ctx.Done():
		return DisplayFrame{}, false
	case f, ok := <-q.buffer:
		return f, ok
	}
}

func (q *DisplayQueue) Size() int {
	return len(q.buffer)
}

func (q *DisplayQueue) Capacity() int {
	return q.capacity
}

func (q *DisplayQueue) updateGauge() {
	metrics.DisplayQueueSize.Set(float64(len(q.buffer)))
}

func (q *DisplayQueue) Stats() QueueStats {
	dropped := atomic.LoadInt64(&q.droppedFrames)
	total := atomic.LoadInt64(&q.totalFrames)

	dropRate := float64(0)
	if total > 0 {
		dropRate = float64(dropped) / float64(total) * 100
	}

	return QueueStats{
		Size:          q.Size(),
		Capacity:      q.capacity,
		DroppedFrames: dropped,
		TotalFrames:   total,
		DropRate:      dropRate,
	}
}

// Close stops the queue and releases every frame still in it. Push must not
// be called afterwards.
func (q *DisplayQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	close(q.buffer)
	for f := range q.buffer {
		f.Handle.Release()
	}
	q.updateGauge()
}

type QueueStats struct {
	Size          int
	Capacity      int
	DroppedFrames int64
	TotalFrames   int64
	DropRate      float64
}

func (qs QueueStats) String() string {
	return fmt.Sprintf("Queue: %d/%d, Total: %d, Dropped: %d (%.2f%%)",
		qs.Size, qs.Capacity, qs.TotalFrames, qs.DroppedFrames, qs.DropRate)
}
