package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IntegrationRepo reads per-venue provider configuration. It never writes.
type IntegrationRepo struct{ DB *pgxpool.Pool }

func (r *IntegrationRepo) ClearingIntegration(ctx context.Context, venueID int64) (*ClearingIntegration, error) {
	var (
		ci       ClearingIntegration
		provider string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT venue_id, provider, terminal, vendor_data
		FROM clearing_integrations WHERE venue_id=$1
	`, venueID).Scan(&ci.VenueID, &provider, &ci.Terminal, &ci.VendorData)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("clearing integration for venue", venueID)
	}
	if err != nil {
		return nil, err
	}
	ci.Provider = ClearingProvider(provider)
	return &ci, nil
}

func (r *IntegrationRepo) ManagementIntegration(ctx context.Context, venueID int64) (*ManagementIntegration, error) {
	var (
		mi       ManagementIntegration
		provider string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT venue_id, provider, vendor_data
		FROM management_integrations WHERE venue_id=$1
	`, venueID).Scan(&mi.VenueID, &provider, &mi.VendorData)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("management integration for venue", venueID)
	}
	if err != nil {
		return nil, err
	}
	mi.Provider = ManagementProvider(provider)
	return &mi, nil
}
