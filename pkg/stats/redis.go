package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRecorder struct {
	rdb    *redis.Client
	prefix string
	// ttl applies to per-minute buckets only; totals never expire.
	ttl time.Duration
}

type RedisOption func(*RedisRecorder)

func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

func WithBucketTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

func NewRedisRecorder(rdb *redis.Client, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "underwriting:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRecorder) totalKey() string {
	return r.prefix + ":total"
}

func (r *RedisRecorder) bucketKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, minuteBucket(at))
}

func (r *RedisRecorder) cardKey(cardType string) string {
	return r.prefix + ":card:" + strings.ToLower(cardType)
}

func (r *RedisRecorder) Record(ctx context.Context, o Outcome) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.totalKey(), o.Status, 1)

	bucket := r.bucketKey(o.At)
	pipe.HIncrBy(ctx, bucket, o.Status, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucket, r.ttl)
	}

	if ct := strings.TrimSpace(o.CardType); ct != "" {
		pipe.HIncrBy(ctx, r.cardKey(ct), o.Status, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

func (r *RedisRecorder) Totals(ctx context.Context) (Totals, error) {
	raw, err := r.rdb.HGetAll(ctx, r.totalKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read totals: %w", err)
	}

	totals := make(Totals, len(raw))
	for status, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse total for %s: %w", status, err)
		}
		totals[status] = n
	}
	return totals, nil
}
