// Package lifecycle drives an order from checkout to the kitchen: payment
// page, payment callback, POS report and POS status.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	kafkax "github.com/ariefcatur/renu-clearing/internal/kafka"
	"github.com/ariefcatur/renu-clearing/internal/logging"
	"github.com/ariefcatur/renu-clearing/internal/notify"
	"github.com/ariefcatur/renu-clearing/internal/orders"
)

type Store interface {
	CreateOrder(ctx context.Context, venueID int64, items []orders.Item) (*orders.Order, error)
	GetOrder(ctx context.Context, id int64) (*orders.Order, error)
	SetTxID(ctx context.Context, id int64, txID string) (bool, error)
	UpdateState(ctx context.Context, id int64, from, to orders.State) (bool, error)
	MarkReported(ctx context.Context, id int64, from, to orders.State) (bool, error)
}

type Integrations interface {
	ClearingIntegration(ctx context.Context, venueID int64) (*orders.ClearingIntegration, error)
	ManagementIntegration(ctx context.Context, venueID int64) (*orders.ManagementIntegration, error)
}

type Locker interface {
	Lock(ctx context.Context, orderID int64) (func(), error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

type StatusCache interface {
	Invalidate(ctx context.Context, orderID int64) error
}

type Clearing interface {
	GetClearingPageLink(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) (string, error)
	ValidateTransaction(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) error
}

type Management interface {
	ReportOrder(ctx context.Context, o *orders.Order, mi *orders.ManagementIntegration) error
	GetOrderStatus(ctx context.Context, o *orders.Order, mi *orders.ManagementIntegration) (orders.State, error)
}

type Service struct {
	Orders       Store
	Integrations Integrations
	Locks        Locker
	Events       Publisher
	Cache        StatusCache // optional
	Notifier     notify.Notifier
	Clearing     Clearing
	Management   Management
	ServiceName  string

	// ValidateCallbacks asks the clearing provider to confirm the transaction
	// before a callback moves the order out of INIT.
	ValidateCallbacks bool
}

// Transition reasons carried on OrderStateChanged events.
const (
	ReasonCreated  = "created"
	ReasonCallback = "payment_callback"
	ReasonReported = "pos_report"
	ReasonPOS      = "pos_status"
	ReasonPaidFor  = "paid_for"
)

func (s *Service) CreateOrder(ctx context.Context, venueID int64, items []orders.Item) (*orders.Order, error) {
	o, err := s.Orders.CreateOrder(ctx, venueID, items)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.changed(ctx, o, "", orders.StateInit, ReasonCreated)
	return o, nil
}

// RequestPaymentLink returns the hosted payment page for an unpaid order.
func (s *Service) RequestPaymentLink(ctx context.Context, orderID int64) (string, error) {
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.State != orders.StateInit {
		return "", &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("order %d is %s, not awaiting payment", o.ID, o.State)}
	}
	ci, err := s.Integrations.ClearingIntegration(ctx, o.VenueID)
	if err != nil {
		return "", err
	}
	return s.Clearing.GetClearingPageLink(ctx, o, ci)
}

// HandlePaymentCallback applies a payment notification. It is safe to call
// again with the same callback: TxID is written once and every later step is
// skipped or repeated idempotently, so redelivery converges on the same state.
// Failures are reported to the notifier before being returned.
func (s *Service) HandlePaymentCallback(ctx context.Context, cb Callback) (err error) {
	defer func() {
		if err != nil {
			s.Alert(ctx, cb.OrderID, err)
		}
	}()

	if cb.StatusCode != StatusApproved {
		return &failure.ResponseCode{Provider: "payment callback", Code: cb.StatusCode, Message: "transaction not approved"}
	}
	if cb.TxID == "" {
		return &failure.NoTxID{OrderID: cb.OrderID}
	}

	unlock, err := s.Locks.Lock(ctx, cb.OrderID)
	if err != nil {
		return err
	}
	defer unlock()

	o, err := s.Orders.GetOrder(ctx, cb.OrderID)
	if err != nil {
		return err
	}
	if o.TxID != "" && o.TxID != cb.TxID {
		return &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("order %d already paid with transaction %s, callback carries %s", o.ID, o.TxID, cb.TxID)}
	}

	switch o.State {
	case orders.StateInit:
		if err := s.acceptPayment(ctx, o, cb.TxID); err != nil {
			return err
		}
	case orders.StateCancelled, orders.StatePaidFor:
		if o.TxID == "" {
			return &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("payment %s arrived for order %d in state %s", cb.TxID, o.ID, o.State)}
		}
		return nil
	}

	if !o.Reported {
		if err := s.report(ctx, o); err != nil {
			return err
		}
	}
	_, err = s.poll(ctx, o)
	return err
}

// acceptPayment records the transaction and moves INIT -> UNCONFIRMED.
func (s *Service) acceptPayment(ctx context.Context, o *orders.Order, txID string) error {
	if s.ValidateCallbacks {
		ci, err := s.Integrations.ClearingIntegration(ctx, o.VenueID)
		if err != nil {
			return err
		}
		candidate := *o
		candidate.TxID = txID
		if err := s.Clearing.ValidateTransaction(ctx, &candidate, ci); err != nil {
			return err
		}
	}

	applied, err := s.Orders.SetTxID(ctx, o.ID, txID)
	if err != nil {
		return fmt.Errorf("set tx id for order %d: %w", o.ID, err)
	}
	if !applied {
		// Lost a race with a writer that does not take the lock; trust the row.
		fresh, err := s.Orders.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if fresh.TxID != txID {
			return &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("order %d left INIT without transaction %s", o.ID, txID)}
		}
		*o = *fresh
		return nil
	}
	o.TxID = txID
	s.changed(ctx, o, orders.StateInit, orders.StateUnconfirmed, ReasonCallback)
	o.State = orders.StateUnconfirmed
	return nil
}

// report sends the order to the venue POS, then marks it reported and CONFIRMED
// in one conditional write.
func (s *Service) report(ctx context.Context, o *orders.Order) error {
	mi, err := s.Integrations.ManagementIntegration(ctx, o.VenueID)
	if err != nil {
		return err
	}
	if err := s.Management.ReportOrder(ctx, o, mi); err != nil {
		return err
	}
	from := o.State
	applied, err := s.Orders.MarkReported(ctx, o.ID, from, orders.StateConfirmed)
	if err != nil {
		return fmt.Errorf("mark order %d reported: %w", o.ID, err)
	}
	if !applied {
		return &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("order %d changed while being reported", o.ID)}
	}
	o.Reported = true
	if from != orders.StateConfirmed {
		s.changed(ctx, o, from, orders.StateConfirmed, ReasonReported)
		o.State = orders.StateConfirmed
	}
	return nil
}

// poll asks the POS for the order status and applies it when the transition is allowed.
func (s *Service) poll(ctx context.Context, o *orders.Order) (orders.State, error) {
	mi, err := s.Integrations.ManagementIntegration(ctx, o.VenueID)
	if err != nil {
		return o.State, err
	}
	st, err := s.Management.GetOrderStatus(ctx, o, mi)
	if err != nil {
		return o.State, err
	}
	err = s.apply(ctx, o, st, ReasonPOS)
	return o.State, err
}

func (s *Service) apply(ctx context.Context, o *orders.Order, to orders.State, reason string) error {
	if to == o.State {
		return nil
	}
	if !orders.CanTransition(o.State, to) {
		logging.Log(logging.Fields{Service: s.ServiceName, OrderID: o.ID, Step: "apply " + reason, Status: "skipped",
			Message: fmt.Sprintf("%s -> %s not allowed", o.State, to)})
		return nil
	}
	applied, err := s.Orders.UpdateState(ctx, o.ID, o.State, to)
	if err != nil {
		return fmt.Errorf("update order %d state: %w", o.ID, err)
	}
	if !applied {
		return &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("order %d is no longer %s", o.ID, o.State)}
	}
	from := o.State
	o.State = to
	s.changed(ctx, o, from, to, reason)
	return nil
}

// SyncStatus polls the POS for a reported, non-terminal order and returns the
// resulting state.
func (s *Service) SyncStatus(ctx context.Context, orderID int64) (orders.State, error) {
	unlock, err := s.Locks.Lock(ctx, orderID)
	if err != nil {
		return "", err
	}
	defer unlock()

	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.State.Terminal() || !o.Reported {
		return o.State, nil
	}
	if _, err := s.poll(ctx, o); err != nil {
		return o.State, err
	}
	return o.State, nil
}

// ValidatePayment asks the clearing provider whether the order's transaction
// went through, without changing the order.
func (s *Service) ValidatePayment(ctx context.Context, orderID int64) error {
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	ci, err := s.Integrations.ClearingIntegration(ctx, o.VenueID)
	if err != nil {
		return err
	}
	return s.Clearing.ValidateTransaction(ctx, o, ci)
}

// MarkPaidFor closes a served order once the clearing provider confirms the money.
func (s *Service) MarkPaidFor(ctx context.Context, orderID int64) error {
	unlock, err := s.Locks.Lock(ctx, orderID)
	if err != nil {
		return err
	}
	defer unlock()

	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.State == orders.StatePaidFor {
		return nil
	}
	if !orders.CanTransition(o.State, orders.StatePaidFor) {
		return &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("order %d is %s and cannot be marked paid", o.ID, o.State)}
	}
	ci, err := s.Integrations.ClearingIntegration(ctx, o.VenueID)
	if err != nil {
		return err
	}
	if err := s.Clearing.ValidateTransaction(ctx, o, ci); err != nil {
		return err
	}
	return s.apply(ctx, o, orders.StatePaidFor, ReasonPaidFor)
}

// Alert sends the standard operator message for a failed order step.
func (s *Service) Alert(ctx context.Context, orderID int64, err error) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(ctx, orderID, fmt.Sprintf("[%s] order %d: %s", failure.KindOf(err), orderID, err.Error()))
}

// changed publishes the transition, drops the cached status, and raises the
// refund alert when a paid order is cancelled.
func (s *Service) changed(ctx context.Context, o *orders.Order, from, to orders.State, reason string) {
	env := kafkax.NewEnvelope(orders.EventOrderStateChanged, s.ServiceName, o.ID, orders.OrderStateChangedPayload{
		OrderID: o.ID,
		VenueID: o.VenueID,
		From:    from,
		To:      to,
		TxID:    o.TxID,
		Reason:  reason,
	})
	if s.Events != nil {
		s.Events.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(env), kafkax.Headers(orders.EventOrderStateChanged)...)
	}
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, o.ID); err != nil {
			logging.Log(logging.Fields{Service: s.ServiceName, OrderID: o.ID, Step: "cache invalidate", Status: "error", Message: err.Error()})
		}
	}
	logging.Log(logging.Fields{
		Service: s.ServiceName,
		OrderID: o.ID,
		VenueID: o.VenueID,
		TxID:    o.TxID,
		EventID: env.EventID,
		Step:    reason,
		Status:  fmt.Sprintf("%s->%s", from, to),
	})

	if to == orders.StateCancelled && s.Notifier != nil {
		text := fmt.Sprintf("[REFUND] order %d was cancelled by the venue; refund needed", o.ID)
		if o.TxID != "" {
			text = fmt.Sprintf("[REFUND] order %d was cancelled by the venue; refund transaction %s", o.ID, o.TxID)
		}
		s.Notifier.Notify(ctx, o.ID, text)
	}
}
