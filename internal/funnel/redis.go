package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const keyPrefix = "funnel:"

// RedisStore shares funnel states between replicas. Keys expire after ttl
// so abandoned funnels vanish even without a sweep.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore panics on a nil client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("funnel: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("dental.internal.funnel.redis"),
	}
}

func stateKey(phone string) string {
	return keyPrefix + phone
}

func (s *RedisStore) Get(ctx context.Context, phone string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "funnel.get")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("funnel: load state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("funnel: decode state: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Put(ctx context.Context, st State) error {
	ctx, span := s.tracer.Start(ctx, "funnel.put")
	defer span.End()

	data, err := json.Marshal(st)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("funnel: encode state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(st.Phone), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("funnel: persist state: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	if err := s.redis.Del(ctx, stateKey(phone)).Err(); err != nil {
		return fmt.Errorf("funnel: delete state: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]State, error) {
	ctx, span := s.tracer.Start(ctx, "funnel.list")
	defer span.End()

	var out []State
	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.redis.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("funnel: list states: %w", err)
		}
		var st State
		if err := json.Unmarshal(data, &st); err != nil {
			// skip corrupt entries
			continue
		}
		out = append(out, st)
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("funnel: scan states: %w", err)
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)
