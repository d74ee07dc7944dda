package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idem:payment:"

// releaseScript deletes the key only while it still points at the caller's
// reference.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore binds idempotency keys to transaction references with SET NX,
// so two concurrent initiations with the same key cannot both win.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// NewRedisClient builds a client and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key, reference string) (string, error) {
	redisKey := keyPrefix + key

	set, err := s.client.SetNX(ctx, redisKey, reference, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis SETNX error: %w", err)
	}
	if set {
		return "", nil
	}

	existing, err := s.client.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET; try once more.
		set, err = s.client.SetNX(ctx, redisKey, reference, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("redis SETNX error: %w", err)
		}
		if set {
			return "", nil
		}
		existing, err = s.client.Get(ctx, redisKey).Result()
	}
	if err != nil {
		return "", fmt.Errorf("redis GET error: %w", err)
	}

	s.logger.Info("Idempotency key already reserved", "reference", existing)
	return existing, nil
}

func (s *RedisStore) Release(ctx context.Context, key, reference string) error {
	if err := releaseScript.Run(ctx, s.client, []string{keyPrefix + key}, reference).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release error: %w", err)
	}
	return nil
}
