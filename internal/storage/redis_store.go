package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps compressed frame dumps in Redis with a TTL.
type RedisStore struct {
	client  redis.Cmdable
	ttl     time.Duration
	enabled bool
}

func NewRedisStore(addr string, ttlSeconds int, enabled bool) *RedisStore {
	if !enabled {
		return &RedisStore{}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})
	return NewRedisStoreWithClient(rdb, ttlSeconds)
}

// NewRedisStoreWithClient wraps an existing client or cluster client.
func NewRedisStoreWithClient(client redis.Cmdable, ttlSeconds int) *RedisStore {
	return &RedisStore{
		client:  client,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: client != nil,
	}
}

func (r *RedisStore) Enabled() bool {
	return r.enabled
}

func (r *RedisStore) SaveDump(ctx context.Context, key string, data []byte) error {
	if !r.enabled {
		return nil
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save dump %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) LoadDump(ctx context.Context, key string) ([]byte, error) {
	if !r.enabled {
		return nil, fmt.Errorf("load dump %s: redis store disabled", key)
	}
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, fmt.Errorf("load dump %s: %w", key, err)
	}
	return data, nil
}

// Close releases the underlying client when it owns a connection pool.
func (r *RedisStore) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
