package payplus

import (
	"context"
	"encoding/json"
	"net/http"
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

// Name keys the PayPlus breaker.
const Name = "Payplus"

const (
	pathGenerateLink = "/PaymentPages/generateLink"
	pathGetDocuments = "/Invoice/GetDocuments"

	statusSuccess    = "success"
	invoiceNotFound  = "cannot-find-invoice-for-this-transaction"
	pageExpiryMins   = "30"
	dateFilterLayout = "2006-01-02"
)

type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

type Env struct {
	Transport   *transport.Client
	Breakers    *breaker.Registry
	BaseURL     string
	Credentials Credentials
	CallbackURL string
	Now         func() time.Time
}

func (env Env) now() time.Time {
	if env.Now != nil {
		return env.Now()
	}
	return time.Now()
}

func ParseCredentials(ci *orders.ClearingIntegration) (Credentials, error) {
	if ci.Provider != orders.ClearingPayPlus {
		return Credentials{}, &failure.ProviderMismatch{Expected: string(orders.ClearingPayPlus), Actual: string(ci.Provider)}
	}
	if err := schema.PayPlusVendorData.Validate(ci.VendorData); err != nil {
		return Credentials{}, &failure.ProviderMismatch{Expected: string(orders.ClearingPayPlus), Actual: string(ci.Provider), Reason: err.Error()}
	}
	var c Credentials
	if err := json.Unmarshal(ci.VendorData, &c); err != nil {
		return Credentials{}, &failure.ProviderMismatch{Expected: string(orders.ClearingPayPlus), Actual: string(ci.Provider), Reason: err.Error()}
	}
	return c, nil
}

// ---- wire types ----

type pageItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	VatType  int    `json:"vat_type"`
}

type generateLinkRequest struct {
	PaymentPageUID string     `json:"payment_page_uid"`
	Amount         int64      `json:"amount"`
	CurrencyCode   string     `json:"currency_code"`
	Items          []pageItem `json:"items"`
	MoreInfo       string     `json:"more_info"`
	MoreInfo1      string     `json:"more_info_1"`
	ExpiryDatetime string     `json:"expiry_datetime"`
	RefURLCallback string     `json:"refURL_callback,omitempty"`
}

type results struct {
	Status      string `json:"status"`
	Code        int    `json:"code"`
	Description string `json:"description"`
}

type generateLinkResponse struct {
	Results results `json:"results"`
	Data    struct {
		PageRequestUID  string `json:"page_request_uid"`
		PaymentPageLink string `json:"payment_page_link"`
	} `json:"data"`
}

type documentsFilter struct {
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`
}

type getDocumentsRequest struct {
	TransactionUID string          `json:"transaction_uid"`
	Filter         documentsFilter `json:"filter"`
}

type invoice struct {
	Status         string `json:"status"`
	OriginalDocURL string `json:"original_doc_url"`
	CopyDocURL     string `json:"copy_doc_url"`
}

type getDocumentsResponse struct {
	Results  *results  `json:"results,omitempty"`
	Invoices []invoice `json:"invoices"`
}

// ---- calls ----

func (env Env) post(ctx context.Context, path string, body any) (*transport.Response, error) {
	if env.BaseURL == "" {
		return nil, &failure.MissingConfig{Key: "PAYPLUS_URL"}
	}
	auth, err := json.Marshal(env.Credentials)
	if err != nil {
		return nil, err
	}
	res, err := env.Transport.Request(ctx, strings.TrimRight(env.BaseURL, "/")+path, transport.Options{
		Method:  http.MethodPost,
		Headers: map[string]string{"Authorization": string(auth)},
		JSON:    body,
	})
	if err != nil {
		return nil, err
	}
	if err := res.ExpectOK(); err != nil {
		return nil, err
	}
	return res, nil
}

type PageParams struct {
	Terminal string // payment_page_uid
	Order    *orders.Order
}

// GeneratePageLink opens a PayPlus payment page for the order. Item prices are
// sent in minor units.
func GeneratePageLink(ctx context.Context, env Env, p PageParams) (string, error) {
	req := generateLinkRequest{
		PaymentPageUID: p.Terminal,
		Amount:         p.Order.Total(),
		CurrencyCode:   money.Currency,
		MoreInfo:       strconv.FormatInt(p.Order.ID, 10),
		MoreInfo1:      strconv.FormatInt(p.Order.VenueID, 10),
		ExpiryDatetime: pageExpiryMins,
		RefURLCallback: env.CallbackURL,
	}
	for _, it := range p.Order.Items {
		req.Items = append(req.Items, pageItem{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.UnitTotal(),
			VatType:  0,
		})
	}

	return breaker.Execute(env.Breakers, Name, func() (string, error) {
		res, err := env.post(ctx, pathGenerateLink, req)
		if err != nil {
			return "", err
		}
		var out generateLinkResponse
		if err := res.JSON(&out); err != nil {
			return "", &failure.MalformedResponse{Provider: Name, Reason: "generateLink body", Err: err}
		}
		if out.Results.Status != statusSuccess {
			return "", &failure.ResponseCode{Provider: Name, Code: out.Results.Status, Message: out.Results.Description}
		}
		if out.Data.PaymentPageLink == "" {
			return "", &failure.MalformedResponse{Provider: Name, Reason: "missing data.payment_page_link"}
		}
		return out.Data.PaymentPageLink, nil
	})
}

func isNotFoundSentinel(s string) bool {
	s = strings.TrimSpace(s)
	return strings.Trim(s, `"`) == invoiceNotFound
}

// ValidateTransaction succeeds only when PayPlus lists at least one invoice for
// the order's transaction and every listed invoice is successful.
func ValidateTransaction(ctx context.Context, env Env, o *orders.Order) error {
	if o.TxID == "" {
		return &failure.NoTxID{OrderID: o.ID}
	}
	now := env.now()
	req := getDocumentsRequest{
		TransactionUID: o.TxID,
		Filter: documentsFilter{
			FromDate: now.AddDate(0, 0, -1).Format(dateFilterLayout),
			ToDate:   now.AddDate(0, 0, 1).Format(dateFilterLayout),
		},
	}

	_, err := breaker.Execute(env.Breakers, Name, func() (struct{}, error) {
		res, err := env.post(ctx, pathGetDocuments, req)
		if err != nil {
			return struct{}{}, err
		}
		if isNotFoundSentinel(res.Text()) {
			return struct{}{}, &failure.TransactionNotFound{Provider: Name, TxID: o.TxID}
		}
		var out getDocumentsResponse
		if err := res.JSON(&out); err != nil {
			return struct{}{}, &failure.MalformedResponse{Provider: Name, Reason: "GetDocuments body", Err: err}
		}
		if out.Results != nil && isNotFoundSentinel(out.Results.Description) {
			return struct{}{}, &failure.TransactionNotFound{Provider: Name, TxID: o.TxID}
		}
		if len(out.Invoices) == 0 {
			return struct{}{}, &failure.TransactionNotFound{Provider: Name, TxID: o.TxID}
		}
		for _, inv := range out.Invoices {
			if inv.Status != statusSuccess {
				return struct{}{}, &failure.InvoiceNotSuccessful{TxID: o.TxID, Status: inv.Status, DocURL: inv.OriginalDocURL}
			}
		}
		return struct{}{}, nil
	})
	return err
}

// Clearing adapts PayPlus to the clearing registry.
type Clearing struct {
	Transport   *transport.Client
	Breakers    *breaker.Registry
	BaseURL     string
	CallbackURL string
}

func (c *Clearing) env(ci *orders.ClearingIntegration) (Env, error) {
	creds, err := ParseCredentials(ci)
	if err != nil {
		return Env{}, err
	}
	return Env{Transport: c.Transport, Breakers: c.Breakers, BaseURL: c.BaseURL, Credentials: creds, CallbackURL: c.CallbackURL}, nil
}

func (c *Clearing) PageLink(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) (string, error) {
	env, err := c.env(ci)
	if err != nil {
		return "", err
	}
	return GeneratePageLink(ctx, env, PageParams{Terminal: ci.Terminal, Order: o})
}

func (c *Clearing) Validate(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) error {
	env, err := c.env(ci)
	if err != nil {
		return err
	}
	return ValidateTransaction(ctx, env, o)
}
