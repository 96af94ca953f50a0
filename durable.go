package portalgate

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DurableStore is the tier-2 backend: a key/value store that survives process
// restarts. Implementations must be safe for concurrent use.
type DurableStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// durableQueryTimeout bounds every round trip to the durable backend so a
// slow store cannot stall the volatile cache path.
const durableQueryTimeout = 5 * time.Second

// RedisStore is a DurableStore backed by Redis. Keys are namespaced under a
// prefix. The caller owns the redis.Client lifecycle.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ DurableStore = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed durable store. prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, durableQueryTimeout)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	data, err := s.client.Get(qctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Set(qctx, s.key(key), value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Del(qctx, s.key(key)).Err()
}

// Clear removes every key under the store's prefix. With an empty prefix it
// scans the whole keyspace, so give shared deployments a prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	pattern := "*"
	if s.prefix != "" {
		pattern = s.prefix + ":*"
	}

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(qctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(qctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
