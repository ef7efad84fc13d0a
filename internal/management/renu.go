package management

import (
	"context"

	"github.com/ariefcatur/renu-clearing/internal/orders"
)

// Renu is the in-house POS. Staff confirm orders from the dashboard, so the
// report is accepted locally and the status stays UNCONFIRMED until then.
type Renu struct{}

func (Renu) ReportOrder(context.Context, *orders.Order, *orders.ManagementIntegration) error {
	return nil
}

func (Renu) OrderStatus(context.Context, *orders.Order, *orders.ManagementIntegration) (orders.State, error) {
	return orders.StateUnconfirmed, nil
}
