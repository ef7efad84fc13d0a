package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Dedup remembers processed event keys for TTLDedup.
type Dedup struct{ RDB redis.Cmdable }

func (d *Dedup) Seen(ctx context.Context, key string) (bool, error) {
	return Exists(ctx, d.RDB, key)
}

func (d *Dedup) Mark(ctx context.Context, key string) error {
	return d.RDB.Set(ctx, key, "1", TTLDedup).Err()
}
