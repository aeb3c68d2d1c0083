package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"certpass/internal/rules"
)

// RedisRuleStore keeps one rule table in a redis hash so several gateway
// replicas share the synced state. Replace rebuilds the hash inside a
// transaction pipeline: readers see either the old or the new table.
type RedisRuleStore struct {
	client *redis.Client
	key    string
}

// NewRedisRuleStore builds a store on the given hash key, e.g.
// "certpass:rules" or "certpass:boosterrules".
func NewRedisRuleStore(client *redis.Client, key string) *RedisRuleStore {
	return &RedisRuleStore{client: client, key: key}
}

func (s *RedisRuleStore) All(ctx context.Context) ([]rules.Rule, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read rule hash %s: %w", s.key, err)
	}
	out := make([]rules.Rule, 0, len(values))
	for field, raw := range values {
		var r rules.Rule
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode rule %s: %w", field, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisRuleStore) Replace(ctx context.Context, keep []string, add []rules.Rule) error {
	kept := make(map[string]string, len(keep))
	if len(keep) > 0 {
		values, err := s.client.HMGet(ctx, s.key, keep...).Result()
		if err != nil {
			return fmt.Errorf("read kept rules: %w", err)
		}
		for i, v := range values {
			if str, ok := v.(string); ok {
				kept[keep[i]] = str
			}
		}
	}

	fields := make(map[string]any, len(kept)+len(add))
	for key, raw := range kept {
		fields[key] = raw
	}
	for _, r := range add {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode rule %s: %w", r.Key(), err)
		}
		fields[r.Key()] = string(raw)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(fields) > 0 {
		pipe.HSet(ctx, s.key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace rule hash %s: %w", s.key, err)
	}
	return nil
}

// RedisValueSetStore keeps the value set table in a redis hash.
type RedisValueSetStore struct {
	client *redis.Client
	key    string
}

func NewRedisValueSetStore(client *redis.Client, key string) *RedisValueSetStore {
	return &RedisValueSetStore{client: client, key: key}
}

func (s *RedisValueSetStore) All(ctx context.Context) ([]rules.ValueSet, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read value set hash %s: %w", s.key, err)
	}
	out := make([]rules.ValueSet, 0, len(values))
	for field, raw := range values {
		var v rules.ValueSet
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode value set %s: %w", field, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *RedisValueSetStore) Replace(ctx context.Context, keep []string, add []rules.ValueSet) error {
	kept := make(map[string]string, len(keep))
	if len(keep) > 0 {
		values, err := s.client.HMGet(ctx, s.key, keep...).Result()
		if err != nil {
			return fmt.Errorf("read kept value sets: %w", err)
		}
		for i, v := range values {
			if str, ok := v.(string); ok {
				kept[keep[i]] = str
			}
		}
	}

	fields := make(map[string]any, len(kept)+len(add))
	for key, raw := range kept {
		fields[key] = raw
	}
	for _, v := range add {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode value set %s: %w", v.Key(), err)
		}
		fields[v.Key()] = string(raw)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(fields) > 0 {
		pipe.HSet(ctx, s.key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace value set hash %s: %w", s.key, err)
	}
	return nil
}

// RedisCountryStore keeps the country list under one key.
type RedisCountryStore struct {
	client *redis.Client
	key    string
}

func NewRedisCountryStore(client *redis.Client, key string) *RedisCountryStore {
	return &RedisCountryStore{client: client, key: key}
}

func (s *RedisCountryStore) All(ctx context.Context) ([]string, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read countries: %w", err)
	}
	var countries []string
	if err := json.Unmarshal([]byte(raw), &countries); err != nil {
		return nil, fmt.Errorf("decode countries: %w", err)
	}
	return countries, nil
}

func (s *RedisCountryStore) ReplaceAll(ctx context.Context, countries []string) error {
	raw, err := json.Marshal(countries)
	if err != nil {
		return fmt.Errorf("encode countries: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("replace countries: %w", err)
	}
	return nil
}

// RedisUpdateStore records last-sync timestamps per kind.
type RedisUpdateStore struct {
	client *redis.Client
	key    string
}

func NewRedisUpdateStore(client *redis.Client, key string) *RedisUpdateStore {
	return &RedisUpdateStore{client: client, key: key}
}

func (s *RedisUpdateStore) MarkUpdated(ctx context.Context, kind string, at time.Time) error {
	if err := s.client.HSet(ctx, s.key, kind, at.UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("mark %s updated: %w", kind, err)
	}
	return nil
}

func (s *RedisUpdateStore) LastUpdated(ctx context.Context, kind string) (time.Time, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, kind).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read %s last update: %w", kind, err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s last update: %w", kind, err)
	}
	return at, true, nil
}
