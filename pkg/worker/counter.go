package worker

import (
	"sync"

	"github.com/T3-Labs/edge-av1/pkg/assert"
)

// BlockingCounter is a countdown latch: Wait returns once Decrement has been
// called as many times as the initial count.
type BlockingCounter struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func NewBlockingCounter(count int) *BlockingCounter {
	assert.Assertf(count >= 0, "negative blocking counter %d", count)
	c := &BlockingCounter{count: count}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *BlockingCounter) Decrement() {
	c.mu.Lock()
	c.count--
	assert.Assertf(c.count >= 0, "blocking counter decremented below zero")
	done := c.count == 0
	c.mu.Unlock()
	if done {
		c.cond.Broadcast()
	}
}

func (c *BlockingCounter) Wait() {
	c.mu.Lock()
	for c.count > 0 {
		c.cond.Wait()
	}
	c.mu.Unlock()
}
