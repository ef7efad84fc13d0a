// Package clearing dispatches payment-page and validation calls to the gateway
// a venue is configured for.
package clearing

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/logging"
	"github.com/ariefcatur/renu-clearing/internal/orders"
)

// Provider is one payment gateway. Implementations must reject an integration
// configured for another provider with *failure.ProviderMismatch.
type Provider interface {
	PageLink(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) (string, error)
	Validate(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) error
}

// Observer is told about every provider call; metrics hook in here.
type Observer func(provider, op string, err error, took time.Duration)

type Registry struct {
	providers map[orders.ClearingProvider]Provider
	observe   Observer
}

func NewRegistry(providers map[orders.ClearingProvider]Provider, observe Observer) *Registry {
	return &Registry{providers: providers, observe: observe}
}

func (r *Registry) provider(ci *orders.ClearingIntegration) (Provider, error) {
	if ci == nil {
		return nil, &failure.MissingConfig{Key: "clearing integration"}
	}
	p, ok := r.providers[ci.Provider]
	if !ok {
		return nil, &failure.MissingConfig{Key: fmt.Sprintf("clearing provider %q", ci.Provider)}
	}
	return p, nil
}

func (r *Registry) done(ci *orders.ClearingIntegration, o *orders.Order, op string, start time.Time, err error) {
	took := time.Since(start)
	if r.observe != nil {
		r.observe(string(ci.Provider), op, err, took)
	}
	f := logging.Fields{
		Service:    "clearing",
		OrderID:    o.ID,
		TxID:       o.TxID,
		Provider:   string(ci.Provider),
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

func (r *Registry) GetClearingPageLink(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) (string, error) {
	p, err := r.provider(ci)
	if err != nil {
		return "", err
	}
	start := time.Now()
	link, err := p.PageLink(ctx, o, ci)
	r.done(ci, o, "page_link", start, err)
	if err != nil {
		return "", fmt.Errorf("clearing page link for order %d: %w", o.ID, err)
	}
	return link, nil
}

func (r *Registry) ValidateTransaction(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) error {
	p, err := r.provider(ci)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.Validate(ctx, o, ci)
	r.done(ci, o, "validate", start, err)
	if err != nil {
		return fmt.Errorf("validate transaction for order %d: %w", o.ID, err)
	}
	return nil
}
