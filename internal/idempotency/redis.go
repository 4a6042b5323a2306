// Package idempotency replays stored responses for retried requests carrying the same Idempotency-Key.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	Header = "Idempotency-Key"

	DefaultTTL     = 24 * time.Hour
	DefaultLockTTL = 30 * time.Second

	pendingMarker = "pending"
)

// ErrInFlight is returned while the first request with the same key is still being processed.
var ErrInFlight = errors.New("a request with this idempotency key is in progress")

// Response is a stored HTTP response.
type Response struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// RedisStore keeps responses in Redis under idem:checkout:{user}:{key}.
type RedisStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl, lockTTL time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, lockTTL: lockTTL}
}

func redisKey(userID uuid.UUID, key string) string {
	return fmt.Sprintf("idem:checkout:%s:%s", userID, key)
}

// ScopedKey binds a client supplied key to the resource it was sent for,
// so reusing a key on another cart never replays that cart's response.
func ScopedKey(resource uuid.UUID, key string) string {
	return resource.String() + ":" + key
}

// claimAttempts bounds SETNX retries when the key expires between SETNX and GET.
const claimAttempts = 2

// Begin claims the key for a new request. It returns the stored response when the
// key was already completed, and ErrInFlight when another request holds it.
func (s *RedisStore) Begin(ctx context.Context, userID uuid.UUID, key string) (*Response, error) {
	k := redisKey(userID, key)
	var raw []byte
	for attempt := 1; ; attempt++ {
		acquired, err := s.rdb.SetNX(ctx, k, pendingMarker, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if acquired {
			return nil, nil
		}
		raw, err = s.rdb.Get(ctx, k).Bytes()
		if err == nil {
			break
		}
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read idempotency key: %w", err)
		}
		if attempt == claimAttempts {
			return nil, ErrInFlight
		}
	}
	if string(raw) == pendingMarker {
		return nil, ErrInFlight
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode stored response: %w", err)
	}
	return &resp, nil
}

// Complete stores the final response for replay.
func (s *RedisStore) Complete(ctx context.Context, userID uuid.UUID, key string, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKey(userID, key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store response: %w", err)
	}
	return nil
}

// Release forgets the key so the request can be retried.
func (s *RedisStore) Release(ctx context.Context, userID uuid.UUID, key string) error {
	if err := s.rdb.Del(ctx, redisKey(userID, key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
