package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the dedup window in Redis so that multiple gateway
// processes share one idempotency view. Expiry is delegated to Redis
// key TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient dials Redis and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return client, nil
}

// MarkSeen is a single SET NX round trip, so two gateway processes
// receiving the same delivery race on one atomic server-side insert.
func (s *RedisStore) MarkSeen(ctx context.Context, key string) (bool, error) {
	inserted, err := s.client.SetNX(ctx, s.redisKey(key), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup mark: %w", err)
	}
	return !inserted, nil
}

func (s *RedisStore) redisKey(key string) string {
	return "harvestd:dedup:" + key
}
