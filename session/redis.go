package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dialog:session:"

// RedisStore keeps sessions in Redis so turns for one call can be handled by
// any worker instance. Atomic read-modify-write is enforced with a WATCH
// transaction on the session key: a concurrent write between Load and Save
// fails the transaction and surfaces as ErrVersionConflict.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable at %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func redisKey(callID string) string { return redisKeyPrefix + callID }

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, callID string) (*Session, error) {
	data, err := r.client.Get(ctx, redisKey(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}
	return Decode(data)
}

// Save implements Store. The version check and the write happen inside one
// WATCH transaction, so two racing turns for the same call cannot both
// commit.
func (r *RedisStore) Save(ctx context.Context, s *Session, expectedVersion int64) error {
	key := redisKey(s.CallID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expectedVersion != 0 {
				return ErrVersionConflict
			}
		case err != nil:
			return fmt.Errorf("redis read: %w", err)
		default:
			cur, derr := Decode(data)
			if derr != nil {
				return fmt.Errorf("redis decode: %w", derr)
			}
			if cur.Version != expectedVersion {
				return ErrVersionConflict
			}
		}

		s.Version = expectedVersion + 1
		s.UpdatedAt = time.Now()
		encoded, err := Encode(s)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, callID string) error {
	return r.client.Del(ctx, redisKey(callID)).Err()
}

// DeleteExpired implements Store. Redis TTLs already expire idle sessions;
// this sweep only catches sessions whose TTL was refreshed but whose
// UpdatedAt is stale (e.g. after a TTL config change).
func (r *RedisStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}
		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			s, err := Decode(data)
			if err != nil || s.UpdatedAt.Before(before) {
				if r.client.Del(ctx, key).Err() == nil {
					removed++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error { return r.client.Close() }
