package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderStateChanged = "OrderStateChanged"
	EventOpsNotification   = "OpsNotification"
	EventOrderPollDue      = "OrderPollDue"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "renu-clearing"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually the order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderStateChangedPayload struct {
	OrderID int64  `json:"order_id"`
	VenueID int64  `json:"venue_id"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	TxID    string `json:"tx_id,omitempty"`
	Reason  string `json:"reason,omitempty"` // e.g. payment_callback, pos_report, pos_status
}

// OrderPollDuePayload asks the reconciler to poll the POS again for an order
// whose state the last poll left unchanged.
type OrderPollDuePayload struct {
	OrderID int64 `json:"order_id"`
	State   State `json:"state"`
	Attempt int   `json:"attempt"`
}

type OpsNotificationPayload struct {
	Text    string `json:"text"`
	OrderID int64  `json:"order_id,omitempty"`
}
