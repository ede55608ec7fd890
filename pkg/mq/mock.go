package mq

import (
	"context"
	"sync"
)

// MockPublisher records published payloads. PublishFunc, when set, decides
// the result of each call.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, source string, payload []byte) error
	CloseFunc   func() error

	mu        sync.Mutex
	published [][]byte
	closed    bool
}

func (m *MockPublisher) Publish(ctx context.Context, source string, payload []byte) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, source, payload); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.published = append(m.published, append([]byte(nil), payload...))
	m.mu.Unlock()
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Published returns copies of the payloads accepted so far.
func (m *MockPublisher) Published() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.published...)
}

func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
