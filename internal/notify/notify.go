// Package notify is the operator alert sink. Delivery (chat, telegram) happens
// downstream of the ops.notifications topic.
package notify

import (
	"context"

	"github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/renu-clearing/internal/kafka"
	"github.com/ariefcatur/renu-clearing/internal/logging"
	"github.com/ariefcatur/renu-clearing/internal/orders"
)

// Notifier is fire-and-forget: a failure to alert must never fail the caller.
type Notifier interface {
	Notify(ctx context.Context, orderID int64, text string)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

type Kafka struct {
	Producer Publisher
	Service  string
}

func (k *Kafka) Notify(_ context.Context, orderID int64, text string) {
	env := kafkax.NewEnvelope(orders.EventOpsNotification, k.Service, orderID, orders.OpsNotificationPayload{
		Text:    text,
		OrderID: orderID,
	})
	k.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(env), kafkax.Headers(orders.EventOpsNotification)...)
	logging.Log(logging.Fields{Service: k.Service, OrderID: orderID, EventID: env.EventID, Step: "notify", Status: "queued", Message: text})
}

// Log only writes the alert to the service log.
type Log struct{ Service string }

func (l Log) Notify(_ context.Context, orderID int64, text string) {
	logging.Log(logging.Fields{Service: l.Service, OrderID: orderID, Step: "notify", Status: "logged", Message: text})
}
