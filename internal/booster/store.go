package booster

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"certpass/pkg/dgcerrors"
)

// GroupStore persists certificate groups and their booster state.
//
// UpdateState applies a mutation against the latest persisted snapshot of
// the group, so a slow recompute never clobbers certificates added or
// removed while it ran.
type GroupStore interface {
	All(ctx context.Context) ([]Group, error)
	Get(ctx context.Context, id uuid.UUID) (Group, error)
	Save(ctx context.Context, group Group) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateState(ctx context.Context, id uuid.UUID, apply func(*Group)) error
}

// MemoryGroupStore is the in-process GroupStore used by the single-replica
// deployment and by tests.
type MemoryGroupStore struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]Group
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[uuid.UUID]Group)}
}

func (s *MemoryGroupStore) All(ctx context.Context) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out, nil
}

func (s *MemoryGroupStore) Get(ctx context.Context, id uuid.UUID) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return Group{}, dgcerrors.New(dgcerrors.CodeNotFound, "certificate group not found")
	}
	return g, nil
}

func (s *MemoryGroupStore) Save(ctx context.Context, group Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group.ID] = group
	return nil
}

func (s *MemoryGroupStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	return nil
}

func (s *MemoryGroupStore) UpdateState(ctx context.Context, id uuid.UUID, apply func(*Group)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return dgcerrors.New(dgcerrors.CodeNotFound, "certificate group not found")
	}
	apply(&g)
	s.groups[id] = g
	return nil
}
