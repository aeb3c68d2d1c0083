// Package store provides the local rule, value set and country tables. The
// in-memory variants back unit tests and single-node deployments; the redis
// variants share state between replicas.
package store

import (
	"context"
	"sync"
	"time"

	"certpass/internal/rules"
)

// MemoryRuleStore is an in-memory rule table. One instance per rule kind.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]rules.Rule
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]rules.Rule)}
}

func (s *MemoryRuleStore) All(_ context.Context) ([]rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rules.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}

// Replace swaps the table to exactly keep+add in one step.
func (s *MemoryRuleStore) Replace(_ context.Context, keep []string, add []rules.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]rules.Rule, len(keep)+len(add))
	for _, key := range keep {
		if r, ok := s.rules[key]; ok {
			next[key] = r
		}
	}
	for _, r := range add {
		next[r.Key()] = r
	}
	s.rules = next
	return nil
}

// MemoryValueSetStore is an in-memory value set table.
type MemoryValueSetStore struct {
	mu   sync.RWMutex
	sets map[string]rules.ValueSet
}

func NewMemoryValueSetStore() *MemoryValueSetStore {
	return &MemoryValueSetStore{sets: make(map[string]rules.ValueSet)}
}

func (s *MemoryValueSetStore) All(_ context.Context) ([]rules.ValueSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rules.ValueSet, 0, len(s.sets))
	for _, v := range s.sets {
		out = append(out, v)
	}
	return out, nil
}

func (s *MemoryValueSetStore) Replace(_ context.Context, keep []string, add []rules.ValueSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]rules.ValueSet, len(keep)+len(add))
	for _, key := range keep {
		if v, ok := s.sets[key]; ok {
			next[key] = v
		}
	}
	for _, v := range add {
		next[v.Key()] = v
	}
	s.sets = next
	return nil
}

// MemoryCountryStore is an in-memory country list.
type MemoryCountryStore struct {
	mu        sync.RWMutex
	countries []string
}

func NewMemoryCountryStore() *MemoryCountryStore {
	return &MemoryCountryStore{}
}

func (s *MemoryCountryStore) All(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.countries...), nil
}

func (s *MemoryCountryStore) ReplaceAll(_ context.Context, countries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countries = append([]string(nil), countries...)
	return nil
}

// MemoryUpdateStore records last-sync timestamps per kind.
type MemoryUpdateStore struct {
	mu      sync.RWMutex
	updates map[string]time.Time
}

func NewMemoryUpdateStore() *MemoryUpdateStore {
	return &MemoryUpdateStore{updates: make(map[string]time.Time)}
}

func (s *MemoryUpdateStore) MarkUpdated(_ context.Context, kind string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[kind] = at
	return nil
}

func (s *MemoryUpdateStore) LastUpdated(_ context.Context, kind string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.updates[kind]
	return at, ok, nil
}
