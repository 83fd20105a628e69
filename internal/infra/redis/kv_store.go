package redis

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"learner-progress-service/internal/domain"
)

// KVStore is a Redis implementation of app.KeyValueStore. Keys are
// namespaced by prefix; values larger than maxValueBytes and Redis OOM
// replies both surface as domain.ErrQuotaExceeded.
type KVStore struct {
	client        *redis.Client
	prefix        string
	ttl           time.Duration
	maxValueBytes int
}

// NewKVStore builds a store. ttl <= 0 keeps keys forever; maxValueBytes <= 0
// disables the per-value limit.
func NewKVStore(client *redis.Client, prefix string, ttl time.Duration, maxValueBytes int) *KVStore {
	return &KVStore{
		client:        client,
		prefix:        prefix,
		ttl:           ttl,
		maxValueBytes: maxValueBytes,
	}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "redis get %s", key)
	}
	return v, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if s.maxValueBytes > 0 && len(value) > s.maxValueBytes {
		return errors.Wrapf(domain.ErrQuotaExceeded, "value for %s is %d bytes, limit %d", key, len(value), s.maxValueBytes)
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		if isOOM(err) {
			return errors.Wrapf(domain.ErrQuotaExceeded, "redis set %s: %v", key, err)
		}
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (s *KVStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrapf(err, "redis del %s", key)
	}
	return nil
}

func (s *KVStore) key(key string) string {
	return s.prefix + key
}

func isOOM(err error) bool {
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return strings.HasPrefix(rerr.Error(), "OOM")
	}
	return false
}
