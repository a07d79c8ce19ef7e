// Package cache wraps Redis for the lot response cache and drops cached
// lot views when bookings or inventory change.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a thin key/value facade over Redis.  A Store built with a nil
// client is disabled: reads miss and writes succeed without effect.
type Store struct {
	rdb    *redis.Client
	prefix string
}

func NewStore(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "parking"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Enabled reports whether a Redis client is attached.
func (s *Store) Enabled() bool { return s != nil && s.rdb != nil }

// Get returns the value under key.  ok is false on a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set stores val under key for ttl.
func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	return s.rdb.Set(ctx, key, val, ttl).Err()
}

// Delete removes keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// DeleteMatch removes every key matching a glob pattern.  SCAN is used
// instead of KEYS so large keyspaces do not block the server.
func (s *Store) DeleteMatch(ctx context.Context, pattern string) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("del %s: %w", pattern, err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// LotKey names a cached view scoped to one lot.
func (s *Store) LotKey(lotID uint64, suffix string) string {
	return fmt.Sprintf("%s:lot:%d:%s", s.prefix, lotID, suffix)
}

// ListKey names a cached view spanning every lot.
func (s *Store) ListKey(suffix string) string {
	return fmt.Sprintf("%s:lots:%s", s.prefix, suffix)
}

func (s *Store) lotPattern(lotID uint64) string { return fmt.Sprintf("%s:lot:%d:*", s.prefix, lotID) }
func (s *Store) listPattern() string { return s.prefix + ":lots:*" }
