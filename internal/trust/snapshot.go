package trust

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MemorySnapshotStore keeps the last accepted signed document in process.
type MemorySnapshotStore struct {
	mu  sync.RWMutex
	doc string
	ok  bool
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (s *MemorySnapshotStore) SaveTrustList(_ context.Context, signedDoc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc, s.ok = signedDoc, true
	return nil
}

func (s *MemorySnapshotStore) LoadTrustList(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc, s.ok, nil
}

// RedisSnapshotStore shares the snapshot between replicas. The stored value
// is the signed document verbatim; it is re-verified on load.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

func NewRedisSnapshotStore(client *redis.Client, key string) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, key: key}
}

func (s *RedisSnapshotStore) SaveTrustList(ctx context.Context, signedDoc string) error {
	if err := s.client.Set(ctx, s.key, signedDoc, 0).Err(); err != nil {
		return fmt.Errorf("save trust list snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) LoadTrustList(ctx context.Context) (string, bool, error) {
	doc, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load trust list snapshot: %w", err)
	}
	return doc, true, nil
}
