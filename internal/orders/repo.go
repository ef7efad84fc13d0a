package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/renu-clearing/internal/failure"
)

type Repo struct{ DB *pgxpool.Pool }

func notFound(entity string, id int64) error {
	return &failure.RecordNotFound{Entity: entity, ID: strconv.FormatInt(id, 10)}
}

func (r *Repo) CreateOrder(ctx context.Context, venueID int64, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, &failure.RecordInvalid{Entity: "order", Reason: "no items"}
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("invalid quantity for item %d", it.ItemID)}
		}
		if it.Price < 0 {
			return nil, &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("negative price for item %d", it.ItemID)}
		}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	o := &Order{VenueID: venueID, State: StateInit, Items: items}
	err = r.DB.QueryRow(ctx, `
		INSERT INTO orders(venue_id, state, items)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, venueID, StateInit, raw).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, id int64) (*Order, error) {
	var (
		o     Order
		state string
		txID  *string
		raw   []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, venue_id, state, tx_id, reported, items, created_at, updated_at
		FROM orders WHERE id=$1
	`, id).Scan(&o.ID, &o.VenueID, &state, &txID, &o.Reported, &raw, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("order", id)
	}
	if err != nil {
		return nil, err
	}
	o.State = State(state)
	if !o.State.Valid() {
		return nil, &failure.RecordInvalid{Entity: "order", Reason: "unknown state " + state}
	}
	if txID != nil {
		o.TxID = *txID
	}
	if err := json.Unmarshal(raw, &o.Items); err != nil {
		return nil, &failure.RecordInvalid{Entity: "order", Reason: "items: " + err.Error()}
	}
	return &o, nil
}

func (r *Repo) GetOrderState(ctx context.Context, id int64) (State, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT state FROM orders WHERE id=$1`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound("order", id)
	}
	if err != nil {
		return "", err
	}
	return State(s), nil
}

// SetTxID records the clearing transaction and moves INIT -> UNCONFIRMED.
// tx_id is only ever written while it is NULL; applied=false means another
// delivery got there first.
func (r *Repo) SetTxID(ctx context.Context, id int64, txID string) (applied bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET tx_id=$2, state=$3, updated_at=now()
		WHERE id=$1 AND state=$4 AND tx_id IS NULL
	`, id, txID, StateUnconfirmed, StateInit)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// UpdateState is a compare-and-set on the order state.
func (r *Repo) UpdateState(ctx context.Context, id int64, from, to State) (applied bool, err error) {
	if !CanTransition(from, to) {
		return false, &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("transition %s -> %s not allowed", from, to)}
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET state=$3, updated_at=now()
		WHERE id=$1 AND state=$2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// MarkReported flags the POS acknowledgement and applies the follow-up state in one write.
func (r *Repo) MarkReported(ctx context.Context, id int64, from, to State) (applied bool, err error) {
	if from != to && !CanTransition(from, to) {
		return false, &failure.RecordInvalid{Entity: "order", Reason: fmt.Sprintf("transition %s -> %s not allowed", from, to)}
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET reported=true, state=$3, updated_at=now()
		WHERE id=$1 AND state=$2 AND reported=false
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
