package lifecycle

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/schema"
)

// StatusApproved is the only transaction status_code that counts as paid.
const StatusApproved = "000"

// Callback is the part of a payment notification the lifecycle acts on.
type Callback struct {
	OrderID    int64
	TxID       string
	StatusCode string
}

type callbackBody struct {
	Transaction struct {
		StatusCode string `json:"status_code"`
		UID        string `json:"uid"`
		MoreInfo   string `json:"more_info"`
		UserData1  string `json:"userData1"`
	} `json:"transaction"`
}

// ParseCallback validates the body against the callback schema and pulls out
// the order id (more_info, falling back to userData1) and transaction uid.
func ParseCallback(body []byte) (Callback, error) {
	if err := schema.PaymentCallback.Validate(body); err != nil {
		return Callback{}, &failure.RecordInvalid{Entity: "payment callback", Reason: err.Error()}
	}
	var b callbackBody
	if err := json.Unmarshal(body, &b); err != nil {
		return Callback{}, &failure.RecordInvalid{Entity: "payment callback", Reason: err.Error()}
	}
	ref := strings.TrimSpace(b.Transaction.MoreInfo)
	if ref == "" {
		ref = strings.TrimSpace(b.Transaction.UserData1)
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return Callback{}, &failure.RecordInvalid{Entity: "payment callback", Reason: "order reference " + strconv.Quote(ref) + " is not an order id"}
	}
	return Callback{
		OrderID:    id,
		TxID:       b.Transaction.UID,
		StatusCode: b.Transaction.StatusCode,
	}, nil
}
