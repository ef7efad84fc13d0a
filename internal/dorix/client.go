package dorix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/renu-clearing/internal/breaker"
	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/money"
	"github.com/ariefcatur/renu-clearing/internal/orders"
	"github.com/ariefcatur/renu-clearing/internal/schema"
	"github.com/ariefcatur/renu-clearing/internal/transport"
)

// Name keys the Dorix breaker.
const Name = "Dorix"

const (
	source        = "RENU"
	orderType     = "PICKUP"
	desiredOffset = 10 * time.Minute
)

// Dorix order statuses that map to something other than CONFIRMED.
const (
	statusAwaiting    = "AWAITING_TO_BE_RECEIVED"
	statusFailed      = "FAILED"
	statusUnreachable = "UNREACHABLE"
)

type Env struct {
	Transport *transport.Client
	Breakers  *breaker.Registry
	BaseURL   string
	Token     string
	Now       func() time.Time
}

func (env Env) now() time.Time {
	if env.Now != nil {
		return env.Now()
	}
	return time.Now()
}

type VendorData struct {
	BranchID string `json:"branchId"`
}

func ParseVendorData(mi *orders.ManagementIntegration) (VendorData, error) {
	if mi.Provider != orders.ManagementDorix {
		return VendorData{}, &failure.ProviderMismatch{Expected: string(orders.ManagementDorix), Actual: string(mi.Provider)}
	}
	if err := schema.DorixVendorData.Validate(mi.VendorData); err != nil {
		return VendorData{}, &failure.ProviderMismatch{Expected: string(orders.ManagementDorix), Actual: string(mi.Provider), Reason: err.Error()}
	}
	var vd VendorData
	if err := json.Unmarshal(mi.VendorData, &vd); err != nil {
		return VendorData{}, &failure.ProviderMismatch{Expected: string(orders.ManagementDorix), Actual: string(mi.Provider), Reason: err.Error()}
	}
	return vd, nil
}

// ---- wire types ----

type transaction struct {
	ID     string      `json:"id"`
	Amount json.Number `json:"amount"`
	Type   string      `json:"type"`
}

type payment struct {
	TotalAmount  json.Number   `json:"totalAmount"`
	Transactions []transaction `json:"transactions"`
}

type item struct {
	ID        string      `json:"id"`
	Name      string      `json:"name,omitempty"`
	Price     json.Number `json:"price"`
	Quantity  int         `json:"quantity"`
	Notes     string      `json:"notes"`
	Modifiers []any       `json:"modifiers"`
}

type customer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type orderRequest struct {
	ExternalID  string         `json:"externalId"`
	Payment     payment        `json:"payment"`
	Items       []item         `json:"items"`
	Source      string         `json:"source"`
	BranchID    string         `json:"branchId"`
	DesiredTime string         `json:"desiredTime"`
	Type        string         `json:"type"`
	Customer    customer       `json:"customer"`
	Discounts   []any          `json:"discounts"`
	Metadata    map[string]any `json:"metadata"`
}

type ackResponse struct {
	Ack     *bool  `json:"ack"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// notes folds the free-text comment and the modifiers into one line; Dorix
// gets modifiers as text, not as structured entries.
func notes(it orders.Item) string {
	parts := make([]string, 0, len(it.Modifiers)+1)
	for _, m := range it.Modifiers {
		parts = append(parts, orders.Describe(m))
	}
	if it.Comment != "" {
		parts = append(parts, it.Comment)
	}
	return strings.Join(parts, "; ")
}

func buildOrder(o *orders.Order, branchID string, now time.Time) orderRequest {
	tx := o.Transaction()
	req := orderRequest{
		ExternalID: strconv.FormatInt(o.ID, 10),
		Payment: payment{
			TotalAmount: money.MajorJSON(o.Total()),
			Transactions: []transaction{{
				ID:     tx.ID,
				Amount: money.MajorJSON(tx.Amount),
				Type:   string(tx.Type),
			}},
		},
		Source:      source,
		BranchID:    branchID,
		DesiredTime: now.Add(desiredOffset).UTC().Format(time.RFC3339),
		Type:        orderType,
		Discounts:   []any{},
		Metadata:    map[string]any{},
	}
	for _, it := range o.Items {
		req.Items = append(req.Items, item{
			ID:        strconv.FormatInt(it.ItemID, 10),
			Name:      it.Name,
			Price:     money.MajorJSON(it.UnitTotal()),
			Quantity:  it.Quantity,
			Notes:     notes(it),
			Modifiers: []any{},
		})
	}
	return req
}

func (env Env) endpoint(path string) (string, error) {
	if env.BaseURL == "" {
		return "", &failure.MissingConfig{Key: "DORIX_URL"}
	}
	if env.Token == "" {
		return "", &failure.MissingConfig{Key: "DORIX_TOKEN"}
	}
	return strings.TrimRight(env.BaseURL, "/") + path, nil
}

// ReportOrder posts the paid order to the branch. Only an explicit ack:true is success.
func ReportOrder(ctx context.Context, env Env, o *orders.Order, branchID string) error {
	endpoint, err := env.endpoint("/v1/order")
	if err != nil {
		return err
	}
	body := buildOrder(o, branchID, env.now())

	_, err = breaker.Execute(env.Breakers, Name, func() (struct{}, error) {
		res, err := env.Transport.Request(ctx, endpoint, transport.Options{
			Method:  http.MethodPost,
			Headers: map[string]string{"Authorization": "Bearer " + env.Token},
			JSON:    body,
		})
		if err != nil {
			return struct{}{}, err
		}
		if err := res.ExpectOK(); err != nil {
			return struct{}{}, err
		}
		var out ackResponse
		if err := res.JSON(&out); err != nil {
			return struct{}{}, &failure.MalformedResponse{Provider: Name, Reason: "order ack body", Err: err}
		}
		if out.Ack == nil {
			return struct{}{}, &failure.MalformedResponse{Provider: Name, Reason: "missing ack"}
		}
		if !*out.Ack {
			return struct{}{}, &failure.ReportOrderFailed{Provider: Name, OrderID: o.ID, Message: out.Message}
		}
		return struct{}{}, nil
	})
	return err
}

func mapStatus(s string) orders.State {
	switch s {
	case statusAwaiting:
		return orders.StateUnconfirmed
	case statusFailed, statusUnreachable:
		return orders.StateCancelled
	default:
		return orders.StateConfirmed
	}
}

// GetOrderStatus asks the branch what happened to the order.
func GetOrderStatus(ctx context.Context, env Env, orderID int64, branchID string) (orders.State, error) {
	endpoint, err := env.endpoint(fmt.Sprintf("/v1/order/%d/status", orderID))
	if err != nil {
		return "", err
	}
	q := url.Values{"branchId": {branchID}, "source": {source}}
	endpoint += "?" + q.Encode()

	return breaker.Execute(env.Breakers, Name, func() (orders.State, error) {
		res, err := env.Transport.Request(ctx, endpoint, transport.Options{
			Method:  http.MethodGet,
			Headers: map[string]string{"Authorization": "Bearer " + env.Token},
		})
		if err != nil {
			return "", err
		}
		if err := res.ExpectOK(); err != nil {
			return "", err
		}
		var out statusResponse
		if err := res.JSON(&out); err != nil {
			return "", &failure.MalformedResponse{Provider: Name, Reason: "status body", Err: err}
		}
		if out.Status == "" {
			return "", &failure.MalformedResponse{Provider: Name, Reason: "missing status"}
		}
		return mapStatus(out.Status), nil
	})
}

// Management adapts Dorix to the management registry.
type Management struct {
	Transport *transport.Client
	Breakers  *breaker.Registry
	BaseURL   string
	Token     string
}

func (m *Management) env() Env {
	return Env{Transport: m.Transport, Breakers: m.Breakers, BaseURL: m.BaseURL, Token: m.Token}
}

func (m *Management) ReportOrder(ctx context.Context, o *orders.Order, mi *orders.ManagementIntegration) error {
	vd, err := ParseVendorData(mi)
	if err != nil {
		return err
	}
	return ReportOrder(ctx, m.env(), o, vd.BranchID)
}

func (m *Management) OrderStatus(ctx context.Context, o *orders.Order, mi *orders.ManagementIntegration) (orders.State, error) {
	vd, err := ParseVendorData(mi)
	if err != nil {
		return "", err
	}
	return GetOrderStatus(ctx, m.env(), o.ID, vd.BranchID)
}
