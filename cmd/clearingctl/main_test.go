package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/orders"
)

type MockOps struct {
	validateErr error
	closed      bool
	lastID      int64
}

func (m *MockOps) RequestPaymentLink(_ context.Context, id int64) (string, error) {
	m.lastID = id
	return "https://pay/42", nil
}

func (m *MockOps) ValidatePayment(_ context.Context, id int64) error {
	m.lastID = id
	return m.validateErr
}

func (m *MockOps) SyncStatus(_ context.Context, id int64) (orders.State, error) {
	m.lastID = id
	return orders.StateConfirmed, nil
}

func (m *MockOps) MarkPaidFor(_ context.Context, id int64) error {
	m.lastID = id
	return nil
}

func run(t *testing.T, ops *MockOps, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd(func(context.Context) (Ops, func(), error) {
		return ops, func() { ops.closed = true }, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	ops := &MockOps{}

	out, err := run(t, ops, "link", "42")
	require.NoError(t, err)
	assert.Equal(t, "https://pay/42\n", out)
	assert.True(t, ops.closed)

	out, err = run(t, ops, "sync", "42")
	require.NoError(t, err)
	assert.Equal(t, "order 42: CONFIRMED\n", out)

	out, err = run(t, ops, "paid", "7")
	require.NoError(t, err)
	assert.Equal(t, "order 7: PAID_FOR\n", out)
	assert.Equal(t, int64(7), ops.lastID)
}

func TestValidate_ReportsKind(t *testing.T) {
	ops := &MockOps{validateErr: &failure.TransactionNotFound{Provider: "Payplus", TxID: "99"}}
	_, err := run(t, ops, "validate", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[TRANSACTION_NOT_FOUND]")
}

func TestBadOrderID(t *testing.T) {
	_, err := run(t, &MockOps{}, "sync", "abc")
	assert.EqualError(t, err, `invalid order id "abc"`)
}
