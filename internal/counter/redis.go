package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"admission/internal/models"
)

// incrementLua performs INCR and first-write PEXPIRE in one atomic script so
// the TTL is set exactly once per window bucket. Running it server-side keeps
// increments from different service instances exact under contention.
const incrementLua = `
local current = redis.call("INCR", KEYS[1])
if tonumber(current) == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`

// RedisStore implements Store on a shared Redis backend. It is the backend
// for multi-instance deployments: all instances observe the same counts.
type RedisStore struct {
	client          *redis.Client
	incrementScript *redis.Script
}

// NewRedisStore creates a Redis-backed counter store and verifies
// connectivity before returning.
func NewRedisStore(cfg models.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{
		client:          client,
		incrementScript: redis.NewScript(incrementLua),
	}, nil
}

// IncrementAndGet runs the pre-compiled increment script.
func (rs *RedisStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := rs.incrementScript.Run(ctx, rs.client, []string{key}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: increment %s: %v", ErrUnavailable, key, err)
	}

	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected script result %T", ErrUnavailable, res)
	}
	return count, nil
}

// Get reads the current count without touching the key.
func (rs *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	count, err := rs.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return count, nil
}

// Delete removes the given keys.
func (rs *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := rs.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying client.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
