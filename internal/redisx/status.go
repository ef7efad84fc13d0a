package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type CachedStatus struct {
	OrderID   int64     `json:"order_id"`
	State     string    `json:"state"`
	TxID      string    `json:"tx_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusCache fronts GET /api/orders/{id}; Postgres stays the source of truth.
type StatusCache struct {
	RDB redis.Cmdable
}

func (c *StatusCache) Get(ctx context.Context, orderID int64) (CachedStatus, bool, error) {
	var st CachedStatus
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return st, false, nil
	}
	if err != nil {
		return st, false, err
	}
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return st, false, nil
	}
	return st, true, nil
}

// putIfGen writes the status only while the generation still holds the token
// the reader saw before it went to Postgres.
var putIfGen = redis.NewScript(`
local cur = redis.call("GET", KEYS[2])
if not cur then cur = "" end
if cur ~= ARGV[2] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// Generation returns the token to hand to Put after reading the order from
// Postgres. An empty token means the order was never invalidated.
func (c *StatusCache) Generation(ctx context.Context, orderID int64) (string, error) {
	gen, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatusGen, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return gen, err
}

// Put caches st unless the order was invalidated after gen was read. It
// reports whether the value was written.
func (c *StatusCache) Put(ctx context.Context, st CachedStatus, gen string) (bool, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return false, err
	}
	keys := []string{fmt.Sprintf(KeyOrderStatus, st.OrderID), fmt.Sprintf(KeyOrderStatusGen, st.OrderID)}
	n, err := putIfGen.Run(ctx, c.RDB, keys, b, gen, TTLStatusCache.Milliseconds()).Int()
	return n == 1, err
}

// Invalidate drops the cached status and rotates the generation so a reader
// holding an older row cannot put it back.
func (c *StatusCache) Invalidate(ctx context.Context, orderID int64) error {
	_, err := c.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, fmt.Sprintf(KeyOrderStatusGen, orderID), uuid.NewString(), TTLStatusGen)
		p.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID))
		return nil
	})
	return err
}
