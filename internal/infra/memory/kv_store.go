package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"learner-progress-service/internal/domain"
)

// KVStore is an in-memory implementation of app.KeyValueStore with an
// optional byte quota, mirroring browser storage limits.
type KVStore struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int
	used  int
}

// NewKVStore returns a store holding at most quota bytes of keys and
// values. Zero means unlimited.
func NewKVStore(quota int) *KVStore {
	return &KVStore{
		data:  make(map[string]string),
		quota: quota,
	}
}

func (s *KVStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *KVStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used + len(key) + len(value)
	if old, ok := s.data[key]; ok {
		used -= len(key) + len(old)
	}
	if s.quota > 0 && used > s.quota {
		return errors.Wrapf(domain.ErrQuotaExceeded, "set %q: need %d of %d bytes", key, used, s.quota)
	}
	s.data[key] = value
	s.used = used
	return nil
}

func (s *KVStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.data[key]; ok {
		s.used -= len(key) + len(old)
		delete(s.data, key)
	}
	return nil
}

// Used reports the bytes currently stored.
func (s *KVStore) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}
