package orders

import "strconv"

const (
	TopicOrderState       = "order.state.changed"
	TopicOpsNotifications = "ops.notifications"
)

// Partition key = order id, so every event of one order stays ordered.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
