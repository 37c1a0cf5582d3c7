package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "processed:"

// RedisProcessedStore shares seen ids across replicas. Entries expire after
// ttl; Cloud API retries stop well before a day.
type RedisProcessedStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProcessedStore(client *redis.Client, ttl time.Duration) *RedisProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProcessedStore{client: client, ttl: ttl}
}

func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+provider+":"+eventID, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

var _ ProcessedStore = (*RedisProcessedStore)(nil)
