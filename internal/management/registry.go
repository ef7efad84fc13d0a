// Package management reports paid orders to the venue's point of sale and
// reads back what the kitchen did with them.
package management

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/logging"
	"github.com/ariefcatur/renu-clearing/internal/orders"
)

type Provider interface {
	ReportOrder(ctx context.Context, o *orders.Order, mi *orders.ManagementIntegration) error
	OrderStatus(ctx context.Context, o *orders.Order, mi *orders.ManagementIntegration) (orders.State, error)
}

// Observer has the same shape as clearing.Observer so one metrics hook serves both.
type Observer func(provider, op string, err error, took time.Duration)

type Registry struct {
	providers map[orders.ManagementProvider]Provider
	observe   Observer
}

func NewRegistry(providers map[orders.ManagementProvider]Provider, observe Observer) *Registry {
	return &Registry{providers: providers, observe: observe}
}

func (r *Registry) provider(mi *orders.ManagementIntegration) (Provider, error) {
	if mi == nil {
		return nil, &failure.MissingConfig{Key: "management integration"}
	}
	p, ok := r.providers[mi.Provider]
	if !ok {
		return nil, &failure.MissingConfig{Key: fmt.Sprintf("management provider %q", mi.Provider)}
	}
	return p, nil
}

func (r *Registry) done(mi *orders.ManagementIntegration, o *orders.Order, op string, start time.Time, err error) {
	took := time.Since(start)
	if r.observe != nil {
		r.observe(string(mi.Provider), op, err, took)
	}
	f := logging.Fields{
		Service:    "management",
		OrderID:    o.ID,
		VenueID:    o.VenueID,
		Provider:   string(mi.Provider),
		Step:       op,
		Status:     "ok",
		DurationMS: took.Milliseconds(),
	}
	if err != nil {
		f.Status = string(failure.KindOf(err))
		f.Message = err.Error()
	}
	logging.Log(f)
}

func (r *Registry) ReportOrder(ctx context.Context, o *orders.Order, mi *orders.ManagementIntegration) error {
	p, err := r.provider(mi)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.ReportOrder(ctx, o, mi)
	r.done(mi, o, "report", start, err)
	if err != nil {
		return fmt.Errorf("report order %d: %w", o.ID, err)
	}
	return nil
}

func (r *Registry) GetOrderStatus(ctx context.Context, o *orders.Order, mi *orders.ManagementIntegration) (orders.State, error) {
	p, err := r.provider(mi)
	if err != nil {
		return "", err
	}
	start := time.Now()
	st, err := p.OrderStatus(ctx, o, mi)
	r.done(mi, o, "status", start, err)
	if err != nil {
		return "", fmt.Errorf("order %d status: %w", o.ID, err)
	}
	return st, nil
}
