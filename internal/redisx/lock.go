package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("order lock: timed out waiting")

// release deletes the key only if it still holds our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serializes mutations of one order across processes.
type Locker struct {
	RDB   redis.Cmdable
	TTL   time.Duration
	Retry time.Duration
}

func NewLocker(rdb redis.Cmdable) *Locker {
	return &Locker{RDB: rdb, TTL: TTLOrderLock, Retry: 50 * time.Millisecond}
}

// Lock blocks until the order lock is held or ctx ends. The returned func releases it.
func (l *Locker) Lock(ctx context.Context, orderID int64) (func(), error) {
	key := fmt.Sprintf(KeyOrderLock, orderID)
	token := uuid.NewString()
	for {
		ok, err := l.RDB.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("order lock %d: %w", orderID, err)
		}
		if ok {
			return func() {
				_ = release.Run(context.Background(), l.RDB, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: order %d: %v", ErrLockTimeout, orderID, ctx.Err())
		case <-time.After(l.Retry):
		}
	}
}
