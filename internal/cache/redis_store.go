// Package cache stores serialized comparison results in Redis.
package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = time.Hour

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// RedisStore caches comparison payloads. Snapshots are immutable once saved, so an
// entry for a (document, from, to) triple never goes stale and only expires by TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "parse redis url"), "REDIS_URL must look like redis://host:6379/0")
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connect to redis")
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "compare:v1:",
	}
}

// Key builds the cache key of the comparison of two snapshots of a document made by
// an engine with the given fingerprint.
func (s *RedisStore) Key(fingerprint, documentID, fromSnapshotID, toSnapshotID string) string {
	return s.prefix + fingerprint + ":" + documentID + ":" + fromSnapshotID + ":" + toSnapshotID
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return payload, nil
}

// Put stores payload under key. A non-positive ttl falls back to one hour.
func (s *RedisStore) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
