package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/T3-Labs/edge-av1/pkg/logger"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

var (
	ErrPoolClosed = errors.New("worker pool closed")
	ErrQueueFull  = errors.New("worker pool queue full")
)

// Pool is a fixed set of goroutines draining a bounded queue of closures.
// Queued work always runs, even while the pool is closing, so a caller waiting
// on a BlockingCounter for scheduled jobs can never hang.
type Pool struct {
	name    string
	jobs    chan func()
	workers int
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool

	processing     int32
	totalProcessed int64
	inline         int64
}

func NewPool(ctx context.Context, name string, workers int, bufferSize int) *Pool {
	if workers < 0 {
		workers = 0
	}
	if bufferSize < workers {
		bufferSize = workers
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &Pool{
		name:    name,
		jobs:    make(chan func(), bufferSize),
		workers: workers,
		cancel:  cancel,
	}

	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	go pool.statsReporter(ctx)

	logger.L().Infow("Worker pool started",
		"pool", name,
		"workers", workers,
		"buffer_size", bufferSize)

	return pool
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job func()) {
	atomic.AddInt32(&p.processing, 1)
	job()
	atomic.AddInt32(&p.processing, -1)
	atomic.AddInt64(&p.totalProcessed, 1)
}

func (p *Pool) statsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.Stats()
			metrics.WorkerPoolQueueSize.WithLabelValues(p.name).Set(float64(stats.QueueSize))
			metrics.WorkerPoolProcessing.WithLabelValues(p.name).Set(float64(stats.Processing))
			if stats.TotalProcessed > 0 {
				logger.L().Debugw("Worker pool stats", "pool", p.name, "stats", stats.String())
			}
		}
	}
}

// Schedule queues fn, blocking while the queue is full. A pool without
// workers, or one already closed, runs fn on the calling goroutine.
func (p *Pool) Schedule(fn func()) {
	p.mu.RLock()
	if p.closed || p.workers == 0 {
		p.mu.RUnlock()
		atomic.AddInt64(&p.inline, 1)
		p.run(fn)
		return
	}
	p.jobs <- fn
	p.mu.RUnlock()
}

// Submit queues fn without blocking.
func (p *Pool) Submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// NumThreads reports the number of worker goroutines, excluding the caller.
func (p *Pool) NumThreads() int {
	return p.workers
}

func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.L().Infow("Worker pool stopped", "pool", p.name, "processed", atomic.LoadInt64(&p.totalProcessed))
	case <-time.After(5 * time.Second):
		logger.L().Warnw("Timeout waiting for worker pool", "pool", p.name, "processing", atomic.LoadInt32(&p.processing))
	}
	p.cancel()
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:        p.workers,
		QueueSize:      len(p.jobs),
		Processing:     int(atomic.LoadInt32(&p.processing)),
		Capacity:       cap(p.jobs),
		TotalProcessed: atomic.LoadInt64(&p.totalProcessed),
		Inline:         atomic.LoadInt64(&p.inline),
	}
}

type PoolStats struct {
	Workers        int
	QueueSize      int
	Processing     int
	Capacity       int
	TotalProcessed int64
	Inline         int64
}

func (ps PoolStats) String() string {
	return fmt.Sprintf("Workers: %d, Queue: %d/%d, Processing: %d, Total: %d (inline: %d)",
		ps.Workers, ps.QueueSize, ps.Capacity, ps.Processing, ps.TotalProcessed, ps.Inline)
}
