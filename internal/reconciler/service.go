// Package reconciler keeps polling the POS for orders that have been reported
// but have not reached a final state.
package reconciler

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	kafkax "github.com/ariefcatur/renu-clearing/internal/kafka"
	"github.com/ariefcatur/renu-clearing/internal/logging"
	"github.com/ariefcatur/renu-clearing/internal/orders"
	"github.com/ariefcatur/renu-clearing/internal/redisx"
)

type Syncer interface {
	SyncStatus(ctx context.Context, orderID int64) (orders.State, error)
}

type Dedup interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Lifecycle Syncer
	Dedup     Dedup
	// Events receives OrderPollDue for orders the POS has not moved yet.
	Events      Publisher
	ServiceName string
	// Delay gives the kitchen time to act before the next status poll.
	Delay time.Duration
	// Timeout bounds one poll, lock wait included.
	Timeout time.Duration
	// MaxPolls caps the polls of an order that never moves. Zero means no cap.
	MaxPolls int
}

// HandleStateChanged is the consumer handler for the order.state.changed topic.
// It reacts to state changes and to its own OrderPollDue events.
func (s *Service) HandleStateChanged(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		logging.Log(logging.Fields{Service: s.ServiceName, Step: "decode", Status: "skipped", Message: err.Error()})
		return nil // poison message; committing it beats blocking the partition
	}

	var (
		orderID int64
		known   orders.State
		attempt int
	)
	switch env.EventType {
	case orders.EventOrderStateChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStateChangedPayload](env.Payload)
		if err != nil {
			return nil
		}
		orderID, known = p.OrderID, p.To
	case orders.EventOrderPollDue:
		p, err := kafkax.UnwrapPayload[orders.OrderPollDuePayload](env.Payload)
		if err != nil {
			return nil
		}
		orderID, known, attempt = p.OrderID, p.State, p.Attempt
	default:
		return nil
	}

	// 2) only orders the POS already knows about and that can still move
	if known.Terminal() || known == orders.StateInit || known == "" {
		return nil
	}

	// 3) dedup by event id
	key := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if s.Dedup != nil {
		if seen, _ := s.Dedup.Seen(ctx, key); seen {
			return nil
		}
	}

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// 4) poll
	st, err := s.sync(ctx, orderID)
	f := logging.Fields{Service: s.ServiceName, OrderID: orderID, EventID: env.EventID, Step: "sync", Status: string(st)}
	if err != nil {
		f.Status, f.Message = "error", err.Error()
		if !retryable(err) {
			f.Status = "dropped"
			logging.Log(f)
			return nil
		}
		logging.Log(f)
		return err
	}
	logging.Log(f)

	// 5) a transition published its own event; an unchanged order needs another poll
	if st == known && st == orders.StateUnconfirmed {
		s.reschedule(orderID, st, attempt+1)
	}
	if s.Dedup != nil {
		_ = s.Dedup.Mark(ctx, key)
	}
	return nil
}

func (s *Service) sync(ctx context.Context, orderID int64) (orders.State, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.Lifecycle.SyncStatus(ctx, orderID)
}

func (s *Service) reschedule(orderID int64, st orders.State, attempt int) {
	if s.Events == nil {
		return
	}
	if s.MaxPolls > 0 && attempt > s.MaxPolls {
		logging.Log(logging.Fields{Service: s.ServiceName, OrderID: orderID, Step: "reschedule", Status: "gave_up",
			Message: fmt.Sprintf("still %s after %d polls", st, s.MaxPolls)})
		return
	}
	env := kafkax.NewEnvelope(orders.EventOrderPollDue, s.ServiceName, orderID, orders.OrderPollDuePayload{
		OrderID: orderID, State: st, Attempt: attempt,
	})
	s.Events.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(env), kafkax.Headers(orders.EventOrderPollDue)...)
}

// retryable reports whether another attempt could succeed. Missing records,
// bad config and lost races will fail the same way every time.
func retryable(err error) bool {
	switch failure.KindOf(err) {
	case failure.KindRequestFailed, failure.KindBadStatus, failure.KindMalformedResponse,
		failure.KindBreakerOpen, failure.KindInternal:
		return true
	}
	return false
}
