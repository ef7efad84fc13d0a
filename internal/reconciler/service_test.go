package reconciler

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	kafkax "github.com/ariefcatur/renu-clearing/internal/kafka"
	"github.com/ariefcatur/renu-clearing/internal/orders"
)

type MockSyncer struct {
	calls []int64
	state orders.State
	err   error
}

func (m *MockSyncer) SyncStatus(_ context.Context, id int64) (orders.State, error) {
	m.calls = append(m.calls, id)
	if m.state == "" {
		return orders.StateConfirmed, m.err
	}
	return m.state, m.err
}

type MockPublisher struct{ envs []orders.Envelope }

func (p *MockPublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	env, err := kafkax.UnmarshalEnvelope(value)
	if err != nil {
		panic(err)
	}
	p.envs = append(p.envs, env)
}

func (p *MockPublisher) pollsDue(t *testing.T) []orders.OrderPollDuePayload {
	t.Helper()
	var out []orders.OrderPollDuePayload
	for _, env := range p.envs {
		require.Equal(t, orders.EventOrderPollDue, env.EventType)
		pd, err := kafkax.UnwrapPayload[orders.OrderPollDuePayload](env.Payload)
		require.NoError(t, err)
		out = append(out, pd)
	}
	return out
}

func pollDue(state orders.State, attempt int) kafkago.Message {
	env := kafkax.NewEnvelope(orders.EventOrderPollDue, "test", 42, orders.OrderPollDuePayload{
		OrderID: 42, State: state, Attempt: attempt,
	})
	return kafkago.Message{Key: orders.PartitionKey(42), Value: kafkax.MustMarshal(env)}
}

func message(to orders.State) kafkago.Message {
	env := kafkax.NewEnvelope(orders.EventOrderStateChanged, "test", 42, orders.OrderStateChangedPayload{
		OrderID: 42, From: orders.StateUnconfirmed, To: to,
	})
	return kafkago.Message{Key: orders.PartitionKey(42), Value: kafkax.MustMarshal(env)}
}

func TestHandleStateChanged_SyncsLiveOrders(t *testing.T) {
	sy := &MockSyncer{}
	s := &Service{Lifecycle: sy, ServiceName: "reconciler"}

	assert.NoError(t, s.HandleStateChanged(context.Background(), message(orders.StateConfirmed)))
	assert.NoError(t, s.HandleStateChanged(context.Background(), message(orders.StateUnconfirmed)))
	assert.Equal(t, []int64{42, 42}, sy.calls)
}

func TestHandleStateChanged_IgnoresFinalAndUnpaid(t *testing.T) {
	sy := &MockSyncer{}
	s := &Service{Lifecycle: sy, ServiceName: "reconciler"}

	for _, st := range []orders.State{orders.StateInit, orders.StateCancelled, orders.StatePaidFor} {
		assert.NoError(t, s.HandleStateChanged(context.Background(), message(st)))
	}
	assert.NoError(t, s.HandleStateChanged(context.Background(), kafkago.Message{Value: []byte("garbage")}))
	assert.Empty(t, sy.calls)
}

func TestHandleStateChanged_Dedup(t *testing.T) {
	sy := &MockSyncer{}
	d := &memDedup{seen: map[string]bool{}}
	s := &Service{Lifecycle: sy, ServiceName: "reconciler", Dedup: d}
	m := message(orders.StateConfirmed)

	assert.NoError(t, s.HandleStateChanged(context.Background(), m))
	assert.NoError(t, s.HandleStateChanged(context.Background(), m))
	assert.Len(t, sy.calls, 1)
}

func TestHandleStateChanged_FailedSyncIsRetried(t *testing.T) {
	sy := &MockSyncer{err: errors.New("pos down")}
	d := &memDedup{seen: map[string]bool{}}
	s := &Service{Lifecycle: sy, ServiceName: "reconciler", Dedup: d}
	m := message(orders.StateConfirmed)

	assert.Error(t, s.HandleStateChanged(context.Background(), m))
	sy.err = nil
	assert.NoError(t, s.HandleStateChanged(context.Background(), m))
	assert.Len(t, sy.calls, 2)
}

type memDedup struct{ seen map[string]bool }

func (d *memDedup) Seen(_ context.Context, key string) (bool, error) { return d.seen[key], nil }

func (d *memDedup) Mark(_ context.Context, key string) error {
	d.seen[key] = true
	return nil
}

func TestHandleStateChanged_ErrorLeavesOffset(t *testing.T) {
	sy := &MockSyncer{err: &failure.BreakerOpen{Provider: "Dorix"}}
	s := &Service{Lifecycle: sy, ServiceName: "reconciler"}

	err := s.HandleStateChanged(context.Background(), message(orders.StateConfirmed))
	var bo *failure.BreakerOpen
	assert.True(t, errors.As(err, &bo))
}

func TestHandleStateChanged_PermanentErrorIsDropped(t *testing.T) {
	for _, err := range []error{
		&failure.RecordNotFound{Entity: "order", ID: "42"},
		&failure.MissingConfig{Key: "DORIX_TOKEN"},
		&failure.ProviderMismatch{Expected: "DORIX", Actual: "RENU"},
	} {
		sy := &MockSyncer{err: err}
		pub := &MockPublisher{}
		s := &Service{Lifecycle: sy, Events: pub, ServiceName: "reconciler"}

		assert.NoError(t, s.HandleStateChanged(context.Background(), message(orders.StateUnconfirmed)), string(failure.KindOf(err)))
		assert.Empty(t, pub.envs)
	}
}

func TestHandleStateChanged_UnchangedOrderIsPolledAgain(t *testing.T) {
	sy := &MockSyncer{state: orders.StateUnconfirmed}
	pub := &MockPublisher{}
	s := &Service{Lifecycle: sy, Events: pub, ServiceName: "reconciler"}

	require.NoError(t, s.HandleStateChanged(context.Background(), message(orders.StateUnconfirmed)))
	due := pub.pollsDue(t)
	require.Len(t, due, 1)
	assert.Equal(t, orders.OrderPollDuePayload{OrderID: 42, State: orders.StateUnconfirmed, Attempt: 1}, due[0])

	// the follow-up poll finds the order still waiting and schedules the next one
	require.NoError(t, s.HandleStateChanged(context.Background(), pollDue(orders.StateUnconfirmed, 1)))
	due = pub.pollsDue(t)
	require.Len(t, due, 2)
	assert.Equal(t, 2, due[1].Attempt)
	assert.Equal(t, []int64{42, 42}, sy.calls)
}

func TestHandleStateChanged_MovedOrderIsNotRescheduled(t *testing.T) {
	pub := &MockPublisher{}

	// Unconfirmed -> Confirmed: the transition publishes its own event
	s := &Service{Lifecycle: &MockSyncer{state: orders.StateConfirmed}, Events: pub, ServiceName: "reconciler"}
	require.NoError(t, s.HandleStateChanged(context.Background(), message(orders.StateUnconfirmed)))

	// confirmed and unchanged: the kitchen has it
	s.Lifecycle = &MockSyncer{state: orders.StateConfirmed}
	require.NoError(t, s.HandleStateChanged(context.Background(), message(orders.StateConfirmed)))

	s.Lifecycle = &MockSyncer{state: orders.StateCancelled}
	require.NoError(t, s.HandleStateChanged(context.Background(), pollDue(orders.StateUnconfirmed, 3)))

	assert.Empty(t, pub.envs)
}

func TestHandleStateChanged_GivesUpAfterMaxPolls(t *testing.T) {
	sy := &MockSyncer{state: orders.StateUnconfirmed}
	pub := &MockPublisher{}
	s := &Service{Lifecycle: sy, Events: pub, ServiceName: "reconciler", MaxPolls: 3}

	require.NoError(t, s.HandleStateChanged(context.Background(), pollDue(orders.StateUnconfirmed, 2)))
	require.Len(t, pub.pollsDue(t), 1)

	require.NoError(t, s.HandleStateChanged(context.Background(), pollDue(orders.StateUnconfirmed, 3)))
	assert.Len(t, pub.envs, 1)
	assert.Len(t, sy.calls, 2)
}

func TestHandleStateChanged_FailedPollIsNotRescheduled(t *testing.T) {
	sy := &MockSyncer{state: orders.StateUnconfirmed, err: &failure.RequestFailed{URL: "https://dorix/v1/order/42/status", Err: errors.New("connection refused")}}
	pub := &MockPublisher{}
	s := &Service{Lifecycle: sy, Events: pub, ServiceName: "reconciler"}

	assert.Error(t, s.HandleStateChanged(context.Background(), message(orders.StateUnconfirmed)))
	assert.Empty(t, pub.envs, "the consumer retries the same message instead")
}
