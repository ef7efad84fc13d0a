package orders

import (
	"encoding/json"
	"fmt"
	"time"
)

type Order struct {
	ID        int64
	VenueID   int64
	State     State // see status.go
	TxID      string
	Reported  bool
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Item struct {
	ItemID    int64      `json:"item_id"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	Price     int64      `json:"price"` // minor units (agorot)
	Comment   string     `json:"comment,omitempty"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
}

// UnitTotal is the per-unit price including modifier add-ons, in minor units.
func (it Item) UnitTotal() int64 {
	total := it.Price
	for _, m := range it.Modifiers {
		total += ModifierPrice(m)
	}
	return total
}

func (it Item) LineTotal() int64 {
	return it.UnitTotal() * int64(it.Quantity)
}

// Total is the order amount in minor units.
func (o *Order) Total() int64 {
	var total int64
	for _, it := range o.Items {
		total += it.LineTotal()
	}
	return total
}

type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionCash   TransactionType = "CASH"
)

// Transaction is derived from an order when it is reported to a POS.
type Transaction struct {
	ID     string
	Amount int64 // minor units
	Type   TransactionType
}

func (o *Order) Transaction() Transaction {
	tx := Transaction{ID: o.TxID, Amount: o.Total(), Type: TransactionCredit}
	if o.TxID == "" {
		tx.ID = fmt.Sprintf("cash-%d", o.ID)
		tx.Type = TransactionCash
	}
	return tx
}

// ---- integrations ----

type ClearingProvider string

const (
	ClearingCreditGuard ClearingProvider = "CREDIT_GUARD"
	ClearingPayPlus     ClearingProvider = "PAY_PLUS"
)

type ClearingIntegration struct {
	VenueID    int64
	Provider   ClearingProvider
	Terminal   string
	VendorData json.RawMessage
}

type ManagementProvider string

const (
	ManagementDorix ManagementProvider = "DORIX"
	ManagementRenu  ManagementProvider = "RENU"
)

type ManagementIntegration struct {
	VenueID    int64
	Provider   ManagementProvider
	VendorData json.RawMessage
}
