// Package redisstore backs the session and rate-limit stores with Redis so
// revocation and throttling survive process restarts and are shared across
// replicas.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vetcare.app/internal/auth"
)

const (
	sessionKeyPrefix = "session:"
	counterKeyPrefix = "rate_limit:"
)

var (
	_ auth.SessionStore   = (*Store)(nil)
	_ auth.RateLimitStore = (*Store)(nil)
)

// Store wraps a Redis client behind the auth store interfaces.
type Store struct {
	client *redis.Client
}

// Open connects to Redis and verifies the connection with a ping.
func Open(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStore wraps an existing client (useful for tests).
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error { return s.client.Close() }

// Ping reports backend health for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Put upserts the user's session under a TTL. SET on the same key replaces
// the prior session atomically, which is the single-session policy.
func (s *Store) Put(ctx context.Context, userID string, sess auth.Session, ttl time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+userID, payload, ttl).Err()
}

// Get returns the live session or nil once Redis has expired the key.
func (s *Store) Get(ctx context.Context, userID string) (*auth.Session, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess auth.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete removes the session; deleting an absent key succeeds.
func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, sessionKeyPrefix+userID).Err()
}

// Increment bumps the attempt counter and starts the window on first use.
func (s *Store) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	rkey := counterKeyPrefix + key
	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, rkey, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Clear removes the attempt counter.
func (s *Store) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, counterKeyPrefix+key).Err()
}
