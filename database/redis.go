package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Key prefixes used by the Redis backend.
const (
	UsersPrefix       = "vehiclebot:users:"
	RedeemCodesPrefix = "vehiclebot:codes:"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info("✅ Connected to Redis")
	return client, nil
}

// Redis is a Table holding one JSON-encoded record per Redis key.
type Redis[T any] struct {
	client *redis.Client
	prefix string
}

// NewRedis returns a table whose keys live under prefix.
func NewRedis[T any](client *redis.Client, prefix string) *Redis[T] {
	return &Redis[T]{client: client, prefix: prefix}
}

func (r *Redis[T]) decode(b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("failed to decode record: %w", err)
	}
	return v, nil
}

func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get %s%s: %w", r.prefix, key, err)
	}
	v, err := r.decode(b)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (r *Redis[T]) Put(ctx context.Context, key string, value T) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, b, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s%s: %w", r.prefix, key, err)
	}
	return nil
}

func (r *Redis[T]) Update(ctx context.Context, key string, fn UpdateFunc[T]) (T, error) {
	var zero T
	redisKey := r.prefix + key

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var result T
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			var current T
			exists := true

			b, err := tx.Get(ctx, redisKey).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
				exists = false
			case err != nil:
				return err
			default:
				if current, err = r.decode(b); err != nil {
					return err
				}
			}

			next, err := fn(current, exists)
			if errors.Is(err, ErrSkipWrite) {
				result = current
				return nil
			}
			if err != nil {
				return err
			}

			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to encode record: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, redisKey, data, 0)
				return nil
			})
			if err != nil {
				return err
			}
			result = next
			return nil
		}, redisKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return zero, err
		}
		return result, nil
	}

	log.WithField("key", redisKey).Warn("⚠️ Redis update kept conflicting")
	return zero, ErrConflict
}

func (r *Redis[T]) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", r.prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

var _ Table[struct{}] = (*Redis[struct{}])(nil)
