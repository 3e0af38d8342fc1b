package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// counterTTL keeps day buckets around long enough for monthly reporting.
const counterTTL = 35 * 24 * time.Hour

// CounterStore keeps the day-bucketed governance metrics counters in
// Redis. Increments rely on Redis INCR atomicity, so concurrent
// validations can update the same bucket without any locking here.
// Buckets roll over implicitly with the date in the key; counters only
// ever increase within a bucket.
type CounterStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCounterStore creates a counter store on the given Redis client.
func NewCounterStore(client *redis.Client, logger *zap.Logger) *CounterStore {
	return &CounterStore{client: client, logger: logger}
}

// counterKey dates buckets in UTC so increments and reads agree on the
// day regardless of host timezone.
func counterKey(day time.Time, dimension string) string {
	return fmt.Sprintf("gov:counters:%s:%s", day.UTC().Format("2006-01-02"), dimension)
}

func (s *CounterStore) incr(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return nil
}

// IncrTotal increments the day's total violation counter.
func (s *CounterStore) IncrTotal(ctx context.Context, day time.Time) error {
	return s.incr(ctx, counterKey(day, "violations:total"))
}

// IncrSeverity increments the day's per-severity violation counter.
func (s *CounterStore) IncrSeverity(ctx context.Context, day time.Time, severity string) error {
	return s.incr(ctx, counterKey(day, "violations:severity:"+severity))
}

// IncrRule increments the day's per-rule violation counter.
func (s *CounterStore) IncrRule(ctx context.Context, day time.Time, ruleID string) error {
	return s.incr(ctx, counterKey(day, "violations:rule:"+ruleID))
}

// IncrActions increments the day's total-actions-attempted counter.
func (s *CounterStore) IncrActions(ctx context.Context, day time.Time) error {
	return s.incr(ctx, counterKey(day, "actions:total"))
}

func (s *CounterStore) get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter %s: %w", key, err)
	}
	return n, nil
}

// GetTotal returns the day's total violation count.
func (s *CounterStore) GetTotal(ctx context.Context, day time.Time) (int64, error) {
	return s.get(ctx, counterKey(day, "violations:total"))
}

// GetSeverity returns the day's violation count for one severity.
func (s *CounterStore) GetSeverity(ctx context.Context, day time.Time, severity string) (int64, error) {
	return s.get(ctx, counterKey(day, "violations:severity:"+severity))
}

// GetActions returns the day's total-actions-attempted count.
func (s *CounterStore) GetActions(ctx context.Context, day time.Time) (int64, error) {
	return s.get(ctx, counterKey(day, "actions:total"))
}
