package redisx

import "time"

const (
	// Cached order status: order_status:{order_id} -> {"order_id":..,"state":"..","updated_at":".."}
	KeyOrderStatus = "order_status:%d"

	// Cache generation, rotated on every invalidation: order_status_gen:{order_id} -> random token
	KeyOrderStatusGen = "order_status_gen:%d"

	// Per-order mutation lock: lock:order:{order_id} -> random token
	KeyOrderLock = "lock:order:%d"

	// Reconciler dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLStatusGen   = time.Hour
	TTLOrderLock   = 30 * time.Second
	TTLDedup       = 48 * time.Hour
)
